// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package outcome

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/livematch/pkg/config"
	"github.com/AccelByte/livematch/pkg/constants"
	"github.com/AccelByte/livematch/pkg/models"
	"github.com/AccelByte/livematch/pkg/storage"
	"github.com/AccelByte/livematch/pkg/storage/memory"
	"github.com/AccelByte/livematch/pkg/testsetup"
)

func completedMatch() (models.Match, []models.ParticipantState) {
	match := models.Match{
		MatchID:  "match-1",
		CourseID: "canyon",
		Status:   models.MatchStatusCompleted,
		Participants: []models.MatchParticipant{
			{PlayerID: "winner", ShipID: "ship-w", Rating: 1000},
			{PlayerID: "loser", ShipID: "ship-l", Rating: 1000},
		},
		Capacity:  8,
		CreatedAt: time.Now().UTC().Add(-5 * time.Minute),
		StartedAt: time.Now().UTC().Add(-4 * time.Minute),
		EndedAt:   time.Now().UTC(),
	}
	states := []models.ParticipantState{
		{PlayerID: "winner", ShipID: "ship-w", Finished: true, FinishTime: 61 * time.Second, FinishPosition: 1},
		{PlayerID: "loser", ShipID: "ship-l", Finished: true, FinishTime: 64 * time.Second, FinishPosition: 2},
	}
	return match, states
}

func TestFinalizeAppliesDeltasAndHistory(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	store.SeedRating("winner", 1000)
	store.SeedRating("loser", 1000)
	notifier := testsetup.NewRecordingNotifier()
	f := NewFinalizer(cfg, store, notifier, testsetup.NewMetrics())

	match, states := completedMatch()
	f.Finalize(testsetup.NewTestScope(), match, states)

	ctx := context.Background()
	winnerRating, err := store.GetRating(ctx, "winner")
	require.NoError(t, err)
	loserRating, err := store.GetRating(ctx, "loser")
	require.NoError(t, err)
	assert.Equal(t, 1016, winnerRating)
	assert.Equal(t, 984, loserRating)

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "winner", history[0].PlayerID)
	assert.Equal(t, 1, history[0].Position)
	assert.Equal(t, 16, history[0].RatingDelta)
	assert.Equal(t, "loser", history[1].PlayerID)
	assert.Equal(t, 2, history[1].Position)
	assert.Equal(t, -16, history[1].RatingDelta)
	assert.Equal(t, match.MatchID, history[0].MatchID)

	results := notifier.EventsNamed(constants.EventRaceResults)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []string{"winner", "loser"}, []string{results[0].Target, results[1].Target})
}

func TestFinalizeDNFReceivesLastPlace(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	notifier := testsetup.NewRecordingNotifier()
	f := NewFinalizer(cfg, store, notifier, testsetup.NewMetrics())

	match, states := completedMatch()
	states[1].Finished = false
	states[1].FinishTime = 0
	states[1].DNF = true

	f.Finalize(testsetup.NewTestScope(), match, states)

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "loser", history[1].PlayerID)
	assert.True(t, history[1].DNF)
	assert.Equal(t, 2, history[1].Position)
	assert.Equal(t, -16, history[1].RatingDelta, "a DNF loses rating like a last-place finish")
}

func TestFinalizeRetriesTransientStoreFailures(t *testing.T) {
	cfg := config.Default()
	cfg.FinalizeBaseDelayMs = 1
	store := memory.New()
	store.SeedRating("winner", 1000)
	store.SeedRating("loser", 1000)
	notifier := testsetup.NewRecordingNotifier()
	f := NewFinalizer(cfg, store, notifier, testsetup.NewMetrics())

	store.FailNext(2)

	match, states := completedMatch()
	f.Finalize(testsetup.NewTestScope(), match, states)

	winnerRating, err := store.GetRating(context.Background(), "winner")
	require.NoError(t, err)
	assert.Equal(t, 1016, winnerRating, "retry should eventually apply the delta")
	assert.Len(t, store.History(), 2)
}

func TestFinalizeNotifiesEvenWhenPersistenceFails(t *testing.T) {
	cfg := config.Default()
	cfg.FinalizeBaseDelayMs = 1
	cfg.FinalizeMaxRetries = 1
	store := memory.New()
	notifier := testsetup.NewRecordingNotifier()
	f := NewFinalizer(cfg, store, notifier, testsetup.NewMetrics())

	// enough failures to exhaust every retry budget
	store.FailNext(100)

	match, states := completedMatch()
	f.Finalize(testsetup.NewTestScope(), match, states)

	results := notifier.EventsNamed(constants.EventRaceResults)
	assert.Len(t, results, 2, "players still learn the outcome")
	assert.Empty(t, store.History())
}

// playerGatedStore stalls one player's rating write until the gate opens,
// leaving every other participant untouched.
type playerGatedStore struct {
	*memory.Store
	gate     chan struct{}
	playerID string
}

func (s *playerGatedStore) ApplyRatingDelta(ctx context.Context, playerID string, delta int) error {
	if playerID == s.playerID {
		<-s.gate
	}
	return s.Store.ApplyRatingDelta(ctx, playerID, delta)
}

func TestFinalizeParticipantsPersistIndependently(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	store.SeedRating("winner", 1000)
	store.SeedRating("loser", 1000)
	gated := &playerGatedStore{Store: store, gate: make(chan struct{}), playerID: "winner"}
	notifier := testsetup.NewRecordingNotifier()
	f := NewFinalizer(cfg, gated, notifier, testsetup.NewMetrics())

	match, states := completedMatch()
	done := make(chan struct{})
	go func() {
		f.Finalize(testsetup.NewTestScope(), match, states)
		close(done)
	}()

	require.Eventually(t, func() bool {
		events := notifier.EventsNamed(constants.EventRaceResults)
		return len(events) == 1 && events[0].Target == "loser"
	}, time.Second, 5*time.Millisecond, "a stalled participant must not hold up the others")

	close(gated.gate)
	<-done

	winnerRating, err := store.GetRating(context.Background(), "winner")
	require.NoError(t, err)
	assert.Equal(t, 1016, winnerRating)
	assert.Len(t, notifier.EventsNamed(constants.EventRaceResults), 2)
}

func TestFinalizeSkipsNonCompletedMatches(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	notifier := testsetup.NewRecordingNotifier()
	f := NewFinalizer(cfg, store, notifier, testsetup.NewMetrics())

	match, states := completedMatch()
	match.Status = models.MatchStatusAborted

	f.Finalize(testsetup.NewTestScope(), match, states)

	assert.Empty(t, store.History())
	assert.Empty(t, notifier.EventsNamed(constants.EventRaceResults))
}

func TestIsRetryableClassification(t *testing.T) {
	assert.True(t, storage.IsRetryable(storage.ErrRetryable))
	assert.False(t, storage.IsRetryable(context.Canceled))
	assert.False(t, storage.IsRetryable(nil))
}
