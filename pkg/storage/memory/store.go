// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package memory provides an in-memory storage.Store used by tests and as
// a development default.
package memory

import (
	"context"
	"sync"

	"github.com/AccelByte/livematch/pkg/models"
	"github.com/AccelByte/livematch/pkg/storage"
)

type Store struct {
	mu      sync.RWMutex
	ratings map[string]int
	history []models.HistoryRecord
	matches map[string]models.Match

	// FailNext makes the next n mutating calls fail with ErrRetryable.
	// Tests use it to exercise the finalizer retry path.
	failNext int
}

func New() *Store {
	return &Store{
		ratings: make(map[string]int),
		matches: make(map[string]models.Match),
	}
}

var _ storage.Store = (*Store)(nil)

// SeedRating sets a player's stored rating directly.
func (s *Store) SeedRating(playerID string, rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[playerID] = rating
}

// FailNext arms the store to fail the next n mutations with a retryable
// error.
func (s *Store) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *Store) takeFailure() bool {
	if s.failNext > 0 {
		s.failNext--
		return true
	}
	return false
}

func (s *Store) GetRating(_ context.Context, playerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rating, ok := s.ratings[playerID]; ok {
		return rating, nil
	}
	return storage.DefaultRating, nil
}

func (s *Store) ApplyRatingDelta(_ context.Context, playerID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.takeFailure() {
		return storage.ErrRetryable
	}
	current, ok := s.ratings[playerID]
	if !ok {
		current = storage.DefaultRating
	}
	s.ratings[playerID] = current + delta
	return nil
}

func (s *Store) AppendRaceHistory(_ context.Context, record models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.takeFailure() {
		return storage.ErrRetryable
	}
	s.history = append(s.history, record)
	return nil
}

func (s *Store) CreateMatchRecord(_ context.Context, match models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.takeFailure() {
		return storage.ErrRetryable
	}
	s.matches[match.MatchID] = match
	return nil
}

// History returns a copy of the appended race records.
func (s *Store) History() []models.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.HistoryRecord, len(s.history))
	copy(out, s.history)
	return out
}

// MatchRecord returns the persisted match bookkeeping row, if any.
func (s *Store) MatchRecord(matchID string) (models.Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[matchID]
	return m, ok
}
