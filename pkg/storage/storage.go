// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package storage declares the durable-store boundary consumed by the
// matchmaking queue and the outcome finalizer. The live-match core only
// suspends at this boundary; in-memory transitions never wait on it.
package storage

import (
	"context"
	"errors"

	"github.com/AccelByte/livematch/pkg/models"
)

// DefaultRating is assumed for players the store has never seen.
const DefaultRating = 1000

// Store is the synchronous request/response surface of the durable store.
type Store interface {
	// GetRating returns the player's current rating, or DefaultRating for
	// an unknown player.
	GetRating(ctx context.Context, playerID string) (int, error)

	// ApplyRatingDelta adjusts the player's stored rating by delta.
	ApplyRatingDelta(ctx context.Context, playerID string, delta int) error

	// AppendRaceHistory appends one per-participant race record.
	AppendRaceHistory(ctx context.Context, record models.HistoryRecord) error

	// CreateMatchRecord persists match bookkeeping outside the hot path.
	CreateMatchRecord(ctx context.Context, match models.Match) error
}

// ErrRetryable marks transient failures the finalizer should retry with
// backoff. Implementations wrap it, callers test with errors.Is.
var ErrRetryable = errors.New("retryable storage error")

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}
