// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/livematch/pkg/models"
	"github.com/AccelByte/livematch/pkg/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "livematch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestGetRatingDefaultsForUnknownPlayer(t *testing.T) {
	s := openTestStore(t)
	rating, err := s.GetRating(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultRating, rating)
}

func TestApplyRatingDeltaUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// first delta creates the row from the default rating
	require.NoError(t, s.ApplyRatingDelta(ctx, "alice", 16))
	rating, err := s.GetRating(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultRating+16, rating)

	// subsequent deltas accumulate
	require.NoError(t, s.ApplyRatingDelta(ctx, "alice", -48))
	rating, err = s.GetRating(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultRating-32, rating)
}

func TestAppendRaceHistoryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	record := models.HistoryRecord{
		PlayerID:       "alice",
		MatchID:        "match-1",
		CourseID:       "canyon",
		ShipID:         "interceptor",
		CompletionTime: 61500 * time.Millisecond,
		Position:       1,
		RacedAt:        time.Now().UTC(),
		RatingDelta:    16,
		ReplayBlob:     []byte{0x01, 0x02},
	}
	require.NoError(t, s.AppendRaceHistory(ctx, record))

	var (
		matchID      string
		completionMS int64
		position     int
		dnf          int
		delta        int
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT match_id, completion_ms, position, dnf, rating_delta
		 FROM race_history WHERE player_id = ?`, "alice").
		Scan(&matchID, &completionMS, &position, &dnf, &delta)
	require.NoError(t, err)
	assert.Equal(t, "match-1", matchID)
	assert.Equal(t, int64(61500), completionMS)
	assert.Equal(t, 1, position)
	assert.Equal(t, 0, dnf)
	assert.Equal(t, 16, delta)
}

func TestCreateMatchRecordUpsertsStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	match := models.Match{
		MatchID:   "match-1",
		CourseID:  "canyon",
		Status:    models.MatchStatusForming,
		Capacity:  8,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateMatchRecord(ctx, match))

	match.Status = models.MatchStatusCompleted
	match.StartedAt = time.Now().UTC()
	match.EndedAt = time.Now().UTC()
	require.NoError(t, s.CreateMatchRecord(ctx, match))

	var status string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT status FROM matches WHERE match_id = ?`, "match-1").Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, string(models.MatchStatusCompleted), status)

	var count int
	require.NoError(t, s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches`).Scan(&count))
	assert.Equal(t, 1, count)
}
