// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package outcome turns a completed race into durable effects: rating
// deltas applied against the durable store, per-participant history
// records, and private result notifications.
package outcome

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/AccelByte/livematch/pkg/config"
	"github.com/AccelByte/livematch/pkg/constants"
	"github.com/AccelByte/livematch/pkg/envelope"
	"github.com/AccelByte/livematch/pkg/metrics"
	"github.com/AccelByte/livematch/pkg/models"
	"github.com/AccelByte/livematch/pkg/notify"
	"github.com/AccelByte/livematch/pkg/rating"
	"github.com/AccelByte/livematch/pkg/storage"
)

// Finalizer applies race outcomes exactly once per completed match. Rating
// deltas are computed from the pre-race rating snapshot captured at match
// formation, never from ratings re-read at finalize time.
type Finalizer struct {
	cfg      *config.Config
	store    storage.Store
	notifier notify.Notifier
	metrics  metrics.LiveMatchMetrics
	calc     rating.Calculator
}

func NewFinalizer(cfg *config.Config, store storage.Store, notifier notify.Notifier, m metrics.LiveMatchMetrics) *Finalizer {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Finalizer{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		metrics:  m,
		calc:     rating.New(cfg.RatingKFactor),
	}
}

// Finalize computes standings and deltas for the match and persists them
// per participant. One participant's persistence failure never blocks the
// others, and result notifications go out regardless of persistence
// outcome.
func (f *Finalizer) Finalize(rootScope *envelope.Scope, match models.Match, states []models.ParticipantState) {
	scope := rootScope.NewChildScope("outcome.Finalize")
	defer scope.Finish()
	scope.SetAttributes(envelope.MatchIDTag, match.MatchID)

	if match.Status != models.MatchStatusCompleted {
		scope.Log.WithField("matchID", match.MatchID).WithField("status", match.Status).
			Warn("skipping finalize for non-completed match")
		return
	}

	preRace := make(map[string]models.MatchParticipant, len(match.Participants))
	for _, p := range match.Participants {
		preRace[p.PlayerID] = p
	}

	standings := make([]rating.Standing, 0, len(states))
	for _, s := range states {
		standings = append(standings, rating.Standing{
			PlayerID:   s.PlayerID,
			Rating:     preRace[s.PlayerID].Rating,
			FinishTime: s.FinishTime,
			Finished:   s.Finished,
		})
	}

	ranked := rating.Rank(standings)
	deltas := f.calc.Deltas(standings)

	stateByID := make(map[string]models.ParticipantState, len(states))
	for _, s := range states {
		stateByID[s.PlayerID] = s
	}

	results := make([]models.RaceResult, 0, len(ranked))
	records := make([]models.HistoryRecord, 0, len(ranked))
	for i, s := range ranked {
		ps := stateByID[s.PlayerID]
		results = append(results, models.RaceResult{
			PlayerID:    s.PlayerID,
			Position:    i + 1,
			FinishTime:  s.FinishTime,
			DNF:         !s.Finished,
			RatingDelta: deltas[s.PlayerID],
		})
		records = append(records, models.HistoryRecord{
			PlayerID:       s.PlayerID,
			MatchID:        match.MatchID,
			CourseID:       match.CourseID,
			ShipID:         ps.ShipID,
			CompletionTime: s.FinishTime,
			Position:       i + 1,
			DNF:            !s.Finished,
			RacedAt:        match.EndedAt,
			RatingDelta:    deltas[s.PlayerID],
			ReplayBlob:     ps.Replay,
		})
	}

	// Each participant persists on its own goroutine so one player's retry
	// stall cannot hold up another player's results.
	var wg sync.WaitGroup
	for i, rec := range records {
		wg.Add(1)
		go func(rec models.HistoryRecord, you models.RaceResult) {
			defer wg.Done()
			f.persistParticipant(scope, rec)
			f.notifier.SendToUser(rec.PlayerID, constants.EventRaceResults, map[string]interface{}{
				"match_id": match.MatchID,
				"you":      you,
				"results":  results,
			})
		}(rec, results[i])
	}
	wg.Wait()

	scope.Log.WithField("matchID", match.MatchID).
		WithField("participants", len(records)).Info("match finalized")
}

// persistParticipant applies the rating delta and appends the history
// record, each with its own retry budget. Retryable store errors back off
// exponentially; anything else fails fast.
func (f *Finalizer) persistParticipant(scope *envelope.Scope, rec models.HistoryRecord) {
	applyDelta := func(ctx context.Context) error {
		return f.store.ApplyRatingDelta(ctx, rec.PlayerID, rec.RatingDelta)
	}
	appendHistory := func(ctx context.Context) error {
		return f.store.AppendRaceHistory(ctx, rec)
	}

	if err := f.withRetry(scope, constants.ApplyRatingFunction, applyDelta); err != nil {
		scope.Log.WithError(err).WithField("playerID", rec.PlayerID).
			Error("failed to apply rating delta")
		if f.metrics != nil {
			f.metrics.AddFinalizeFailure(constants.ApplyRatingFunction)
		}
	}
	if err := f.withRetry(scope, constants.AppendHistoryFunction, appendHistory); err != nil {
		scope.Log.WithError(err).WithField("playerID", rec.PlayerID).
			Error("failed to append race history")
		if f.metrics != nil {
			f.metrics.AddFinalizeFailure(constants.AppendHistoryFunction)
		}
	}
}

func (f *Finalizer) withRetry(scope *envelope.Scope, function string, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = f.cfg.FinalizeBaseDelay()
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(f.cfg.FinalizeMaxRetries)), ctx)

	return backoff.RetryNotify(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if storage.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, next time.Duration) {
		scope.Log.WithError(err).WithField("function", function).
			WithField("retryIn", next).Debug("retrying finalize operation")
		if f.metrics != nil {
			f.metrics.AddFinalizeRetry(function)
		}
	})
}
