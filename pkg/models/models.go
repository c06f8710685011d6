// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package models declares the data types shared by the matchmaking queue,
// the party manager, the live session registry and the outcome finalizer.
package models

import (
	"time"

	"github.com/AccelByte/livematch/pkg/common"
)

// MatchStatus values. Transitions are monotonic: forming -> in_progress ->
// completed, with aborted reachable from any non-terminal status.
type MatchStatus string

const (
	MatchStatusForming    MatchStatus = "forming"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusCompleted  MatchStatus = "completed"
	MatchStatusAborted    MatchStatus = "aborted"
)

// Terminal reports whether no further status transition is allowed.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusAborted
}

// CanTransitionTo enforces the monotonic status order.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case MatchStatusInProgress:
		return s == MatchStatusForming
	case MatchStatusCompleted:
		return s == MatchStatusInProgress
	case MatchStatusAborted:
		return true
	default:
		return false
	}
}

// ChatMessage is one entry in a party's bounded chat log.
type ChatMessage struct {
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Party is a pre-match social grouping of players queueing together.
// Members are kept in join order; the leader is always a member.
type Party struct {
	PartyID    string            `json:"party_id"`
	LeaderID   string            `json:"leader_id"`
	Members    []string          `json:"members"`
	ShipIDs    map[string]string `json:"ship_ids"`
	Ready      bool              `json:"ready"`
	Chat       []ChatMessage     `json:"chat"`
	Spectators []string          `json:"spectators"`
	CreatedAt  time.Time         `json:"created_at"`
}

// HasMember reports whether playerID races in this party.
func (p *Party) HasMember(playerID string) bool {
	return common.Contains(p.Members, playerID)
}

// HasSpectator reports whether playerID watches this party.
func (p *Party) HasSpectator(playerID string) bool {
	return common.Contains(p.Spectators, playerID)
}

// AppendChat appends a message and evicts the oldest entries beyond limit.
func (p *Party) AppendChat(msg ChatMessage, limit int) {
	p.Chat = append(p.Chat, msg)
	if limit > 0 && len(p.Chat) > limit {
		p.Chat = p.Chat[len(p.Chat)-limit:]
	}
}

// QueueEntry is a player's record while awaiting a match. Rating is
// snapshotted at enqueue time; party members share the party mean.
type QueueEntry struct {
	PlayerID   string    `json:"player_id"`
	Rating     int       `json:"rating"`
	ShipID     string    `json:"ship_id"`
	PartyID    string    `json:"party_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueState values reported by status polling.
type QueueState string

const (
	QueueStateNotQueued  QueueState = "not_queued"
	QueueStateSearching  QueueState = "searching"
	QueueStateMatchFound QueueState = "match_found"
)

// QueueStatus is the answer to a status poll.
type QueueStatus struct {
	State            QueueState    `json:"state"`
	WaitTime         time.Duration `json:"wait_time,omitempty"`
	BucketPopulation int           `json:"bucket_population,omitempty"`
	MatchID          string        `json:"match_id,omitempty"`
}

// MatchParticipant is the identity and ship a player brings into a match.
type MatchParticipant struct {
	PlayerID string `json:"player_id"`
	ShipID   string `json:"ship_id"`
	PartyID  string `json:"party_id,omitempty"`
	Rating   int    `json:"rating"`
}

// Match is the authoritative record of one race and its participants.
type Match struct {
	MatchID      string             `json:"match_id"`
	CourseID     string             `json:"course_id"`
	Status       MatchStatus        `json:"status"`
	Participants []MatchParticipant `json:"participants"`
	Capacity     int                `json:"capacity"`
	CreatedAt    time.Time          `json:"created_at"`
	StartedAt    time.Time          `json:"started_at,omitempty"`
	EndedAt      time.Time          `json:"ended_at,omitempty"`
}

// ParticipantIDs lists participant player ids in join order.
func (m *Match) ParticipantIDs() []string {
	ids := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		ids = append(ids, p.PlayerID)
	}
	return ids
}

// HasParticipant reports whether playerID races in this match.
func (m *Match) HasParticipant(playerID string) bool {
	for _, p := range m.Participants {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}

// TransientState is the last-known volatile physics state of a racer.
// It is overwritten on every update and never touches durable storage.
type TransientState struct {
	PositionX float64   `json:"position_x"`
	PositionY float64   `json:"position_y"`
	VelocityX float64   `json:"velocity_x"`
	VelocityY float64   `json:"velocity_y"`
	Fuel      float64   `json:"fuel"`
	Timestamp time.Time `json:"timestamp"`
}

// ParticipantState is the registry-owned per-(match, player) state.
// DisconnectedAt is non-zero only while the reconnect grace window is open.
type ParticipantState struct {
	PlayerID       string          `json:"player_id"`
	ShipID         string          `json:"ship_id"`
	Connected      bool            `json:"connected"`
	Ready          bool            `json:"ready"`
	Transient      *TransientState `json:"transient,omitempty"`
	LastSnapshot   *TransientState `json:"last_snapshot,omitempty"`
	FinishTime     time.Duration   `json:"finish_time,omitempty"`
	FinishPosition int             `json:"finish_position,omitempty"`
	Finished       bool            `json:"finished"`
	DNF            bool            `json:"dnf"`
	DisconnectedAt time.Time       `json:"disconnected_at,omitempty"`
	Replay         []byte          `json:"-"`
}

// Settled reports whether the participant no longer blocks match completion.
func (ps *ParticipantState) Settled() bool {
	return ps.Finished || ps.DNF
}

// PlayerView is one row of a full match snapshot sent to reconnecting
// players and spectators.
type PlayerView struct {
	PlayerID  string          `json:"player_id"`
	ShipID    string          `json:"ship_id"`
	Connected bool            `json:"connected"`
	Ready     bool            `json:"ready"`
	Transient *TransientState `json:"transient,omitempty"`
	Finished  bool            `json:"finished"`
	DNF       bool            `json:"dnf"`

	FinishTime     time.Duration `json:"finish_time,omitempty"`
	FinishPosition int           `json:"finish_position,omitempty"`
}

// RaceResult is the private per-participant outcome broadcast by the
// finalizer.
type RaceResult struct {
	PlayerID    string        `json:"player_id"`
	Position    int           `json:"position"`
	FinishTime  time.Duration `json:"finish_time,omitempty"`
	DNF         bool          `json:"dnf"`
	RatingDelta int           `json:"rating_delta"`
}

// HistoryRecord is the persisted per-participant race record.
type HistoryRecord struct {
	PlayerID       string        `json:"player_id"`
	MatchID        string        `json:"match_id"`
	CourseID       string        `json:"course_id"`
	ShipID         string        `json:"ship_id"`
	CompletionTime time.Duration `json:"completion_time"`
	Position       int           `json:"position"`
	DNF            bool          `json:"dnf"`
	RacedAt        time.Time     `json:"raced_at"`
	RatingDelta    int           `json:"rating_delta"`
	ReplayBlob     []byte        `json:"replay_blob,omitempty"`
}
