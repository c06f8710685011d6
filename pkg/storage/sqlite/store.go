// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package sqlite provides a SQLite-backed storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AccelByte/livematch/pkg/models"
	"github.com/AccelByte/livematch/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
  player_id TEXT PRIMARY KEY,
  rating    INTEGER NOT NULL DEFAULT 1000
);
CREATE TABLE IF NOT EXISTS matches (
  match_id   TEXT PRIMARY KEY,
  course_id  TEXT NOT NULL,
  status     TEXT NOT NULL,
  capacity   INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  started_at INTEGER,
  ended_at   INTEGER
);
CREATE TABLE IF NOT EXISTS race_history (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  player_id       TEXT NOT NULL,
  match_id        TEXT NOT NULL,
  course_id       TEXT NOT NULL,
  ship_id         TEXT NOT NULL,
  completion_ms   INTEGER NOT NULL,
  position        INTEGER NOT NULL,
  dnf             INTEGER NOT NULL DEFAULT 0,
  raced_at        INTEGER NOT NULL,
  rating_delta    INTEGER NOT NULL,
  replay_blob     BLOB
);
CREATE INDEX IF NOT EXISTS idx_history_player ON race_history (player_id);
CREATE INDEX IF NOT EXISTS idx_history_match ON race_history (match_id);
`

// Store persists ratings, match bookkeeping and race history in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite store and ensures the schema exists.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// classify wraps transient SQLite failures so the finalizer retries them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "busy") {
		return fmt.Errorf("%w: %v", storage.ErrRetryable, err)
	}
	return err
}

func (s *Store) GetRating(ctx context.Context, playerID string) (int, error) {
	var rating int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT rating FROM players WHERE player_id = ?`, playerID).Scan(&rating)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DefaultRating, nil
	}
	if err != nil {
		return 0, classify(err)
	}
	return rating, nil
}

func (s *Store) ApplyRatingDelta(ctx context.Context, playerID string, delta int) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO players (player_id, rating) VALUES (?, ? + ?)
		 ON CONFLICT (player_id) DO UPDATE SET rating = players.rating + ?`,
		playerID, storage.DefaultRating, delta, delta)
	return classify(err)
}

func (s *Store) AppendRaceHistory(ctx context.Context, record models.HistoryRecord) error {
	dnf := 0
	if record.DNF {
		dnf = 1
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO race_history (
		   player_id, match_id, course_id, ship_id,
		   completion_ms, position, dnf, raced_at, rating_delta, replay_blob
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.PlayerID,
		record.MatchID,
		record.CourseID,
		record.ShipID,
		record.CompletionTime.Milliseconds(),
		record.Position,
		dnf,
		toMillis(record.RacedAt),
		record.RatingDelta,
		record.ReplayBlob,
	)
	return classify(err)
}

func (s *Store) CreateMatchRecord(ctx context.Context, match models.Match) error {
	var startedAt, endedAt interface{}
	if !match.StartedAt.IsZero() {
		startedAt = toMillis(match.StartedAt)
	}
	if !match.EndedAt.IsZero() {
		endedAt = toMillis(match.EndedAt)
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO matches (match_id, course_id, status, capacity, created_at, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (match_id) DO UPDATE SET
		   status = excluded.status,
		   started_at = excluded.started_at,
		   ended_at = excluded.ended_at`,
		match.MatchID,
		match.CourseID,
		string(match.Status),
		match.Capacity,
		toMillis(match.CreatedAt),
		startedAt,
		endedAt,
	)
	return classify(err)
}
