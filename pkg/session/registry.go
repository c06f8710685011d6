// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package session owns the authoritative state of in-progress races: per
// participant transient state, connectivity, and the disconnect/reconnect
// grace machinery. Each match is its own locking aggregate so unrelated
// matches never serialize on each other.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/AccelByte/livematch/pkg/config"
	"github.com/AccelByte/livematch/pkg/constants"
	"github.com/AccelByte/livematch/pkg/envelope"
	"github.com/AccelByte/livematch/pkg/metrics"
	"github.com/AccelByte/livematch/pkg/models"
	"github.com/AccelByte/livematch/pkg/notify"
	"github.com/AccelByte/livematch/pkg/storage"
)

// OutcomeFinalizer consumes a completed match. The registry guarantees it
// is invoked exactly once per match, off the match lock.
type OutcomeFinalizer interface {
	Finalize(scope *envelope.Scope, match models.Match, states []models.ParticipantState)
}

// Registry is the process-scoped table of live matches.
type Registry struct {
	cfg       *config.Config
	store     storage.Store
	notifier  notify.Notifier
	metrics   metrics.LiveMatchMetrics
	finalizer OutcomeFinalizer
	pool      *models.Pool

	mu       sync.RWMutex
	matches  map[string]*matchEntry
	byPlayer map[string]string
}

type matchEntry struct {
	mu    sync.Mutex
	match models.Match
	states map[string]*models.ParticipantState

	graceTimers    map[string]*time.Timer
	formationTimer *time.Timer

	finalizeStarted bool
	finalizeDone    bool
}

func NewRegistry(cfg *config.Config, store storage.Store, finalizer OutcomeFinalizer, notifier notify.Notifier, m metrics.LiveMatchMetrics) *Registry {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Registry{
		cfg:       cfg,
		store:     store,
		notifier:  notifier,
		metrics:   m,
		finalizer: finalizer,
		pool:      models.NewPool(),
		matches:   make(map[string]*matchEntry),
		byPlayer:  make(map[string]string),
	}
}

func (r *Registry) entry(matchID string) (*matchEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.matches[matchID]
	if !ok {
		return nil, models.ErrMatchNotFound
	}
	return e, nil
}

// Register takes ownership of a freshly formed match from the matchmaking
// queue. The formation timer starts immediately.
func (r *Registry) Register(rootScope *envelope.Scope, match models.Match) {
	scope := rootScope.NewChildScope("session.Register")
	defer scope.Finish()
	scope.SetAttributes(envelope.MatchIDTag, match.MatchID)

	e := &matchEntry{
		match:       match,
		states:      make(map[string]*models.ParticipantState, len(match.Participants)),
		graceTimers: make(map[string]*time.Timer),
	}
	for _, p := range match.Participants {
		e.states[p.PlayerID] = &models.ParticipantState{
			PlayerID:  p.PlayerID,
			ShipID:    p.ShipID,
			Connected: true,
		}
	}

	matchID := match.MatchID
	e.formationTimer = time.AfterFunc(r.cfg.FormationTimeout(), func() {
		r.formationExpired(matchID)
	})

	r.mu.Lock()
	r.matches[matchID] = e
	for _, p := range match.Participants {
		r.byPlayer[p.PlayerID] = matchID
	}
	active := len(r.matches)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetActiveSessions(active)
	}
	scope.Log.WithField("matchID", matchID).
		WithField("players", len(match.Participants)).
		Info("session registered")

	r.persist(match)
}

// persist writes match bookkeeping outside the hot path. Never called
// while holding a match lock.
func (r *Registry) persist(match models.Match) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.store.CreateMatchRecord(ctx, match); err != nil {
			// bookkeeping only; the in-memory registry stays authoritative
			scopeless := envelope.NewRootScope(context.Background(), "session.persist", "")
			defer scopeless.Finish()
			scopeless.Log.WithError(err).WithField("matchID", match.MatchID).Warn("failed to persist match record")
		}
	}()
}

// MarkReady flags the participant ready; when everyone is ready the match
// starts.
func (r *Registry) MarkReady(rootScope *envelope.Scope, matchID, playerID string) error {
	scope := rootScope.NewChildScope("session.MarkReady")
	defer scope.Finish()

	e, err := r.entry(matchID)
	if err != nil {
		return models.ErrNotInSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ps, ok := e.states[playerID]
	if !ok || e.match.Status != models.MatchStatusForming {
		return models.ErrNotInSession
	}
	ps.Ready = true
	r.notifier.SendToRoom(notify.MatchRoom(matchID), constants.EventPlayerReady, map[string]interface{}{
		"player_id": playerID,
	})

	for _, s := range e.states {
		if !s.Ready && !s.Settled() {
			return nil
		}
	}
	r.startLocked(scope, e)
	return nil
}

// ForceStart lets a participant start the race before everyone is ready.
func (r *Registry) ForceStart(rootScope *envelope.Scope, matchID, playerID string) error {
	scope := rootScope.NewChildScope("session.ForceStart")
	defer scope.Finish()

	e, err := r.entry(matchID)
	if err != nil {
		return models.ErrNotInSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.states[playerID]; !ok || e.match.Status != models.MatchStatusForming {
		return models.ErrNotInSession
	}
	r.startLocked(scope, e)
	return nil
}

// startLocked transitions forming -> in_progress. Caller holds the match
// lock.
func (r *Registry) startLocked(scope *envelope.Scope, e *matchEntry) {
	if !e.match.Status.CanTransitionTo(models.MatchStatusInProgress) {
		return
	}
	e.match.Status = models.MatchStatusInProgress
	e.match.StartedAt = time.Now().UTC()
	if e.formationTimer != nil {
		e.formationTimer.Stop()
		e.formationTimer = nil
	}
	scope.Log.WithField("matchID", e.match.MatchID).Info("match started")
	r.notifier.SendToRoom(notify.MatchRoom(e.match.MatchID), constants.EventMatchStarted, map[string]interface{}{
		"match_id":   e.match.MatchID,
		"started_at": e.match.StartedAt,
	})
	r.persist(e.match)
}

// formationExpired fires when a match lingers in forming past the
// formation timeout. Racing a legitimate start is resolved by re-checking
// status under the lock.
func (r *Registry) formationExpired(matchID string) {
	scope := envelope.NewRootScope(context.Background(), "session.formationExpired", "")
	defer scope.Finish()

	e, err := r.entry(matchID)
	if err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.match.Status != models.MatchStatusForming {
		return
	}

	ready := 0
	for _, s := range e.states {
		if s.Ready {
			ready++
		}
	}
	if ready >= r.cfg.MinPlayers {
		// enough players are waiting; the stragglers ride along
		r.startLocked(scope, e)
		return
	}
	r.abortLocked(scope, e, constants.AbortReasonFormationTimeout)
}

// RecordUpdate overwrites the player's transient state and fans it out to
// the room. This is the high-frequency path: no durable storage, no
// registry-wide lock.
func (r *Registry) RecordUpdate(rootScope *envelope.Scope, matchID, playerID string, state models.TransientState) error {
	e, err := r.entry(matchID)
	if err != nil {
		return models.ErrNotInSession
	}

	e.mu.Lock()
	ps, ok := e.states[playerID]
	if !ok || e.match.Status != models.MatchStatusInProgress || ps.Settled() {
		e.mu.Unlock()
		return models.ErrNotInSession
	}
	if state.Timestamp.IsZero() {
		state.Timestamp = time.Now().UTC()
	}
	ps.Transient = &state
	e.mu.Unlock()

	payload := map[string]interface{}{
		"player_id": playerID,
		"state":     state,
	}
	r.notifier.SendToRoom(notify.MatchRoom(matchID), constants.EventPlayerUpdate, payload)
	r.notifier.SendToRoom(notify.SpectatorRoom(matchID), constants.EventPlayerUpdate, payload)
	return nil
}

// RecordDisconnect opens the reconnect grace window for the player and
// snapshots their last transient state. Driven by transport-level
// connection loss, so an unknown player or settled participant is a
// no-op, not an error.
func (r *Registry) RecordDisconnect(rootScope *envelope.Scope, matchID, playerID string) {
	scope := rootScope.NewChildScope("session.RecordDisconnect")
	defer scope.Finish()

	e, err := r.entry(matchID)
	if err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ps, ok := e.states[playerID]
	if !ok || e.match.Status.Terminal() || !ps.Connected || ps.Settled() {
		return
	}

	now := time.Now().UTC()
	ps.Connected = false
	ps.DisconnectedAt = now
	if ps.Transient != nil {
		snap := *ps.Transient
		ps.LastSnapshot = &snap
	}

	e.graceTimers[playerID] = time.AfterFunc(r.cfg.GraceWindow(), func() {
		r.expireDisconnect(matchID, playerID)
	})

	scope.Log.WithField("matchID", matchID).WithField("playerID", playerID).Info("participant disconnected")
	r.notifier.SendToRoom(notify.MatchRoom(matchID), constants.EventPlayerDisconnected, map[string]interface{}{
		"player_id":     playerID,
		"grace_seconds": r.cfg.GraceWindowSecond,
	})

	if r.disconnectedCountLocked(e)*2 > len(e.states) {
		r.abortLocked(scope, e, constants.AbortReasonTooManyDisconnects)
	}
}

// Reconnect restores a disconnected participant, cancels the pending
// expiry, and hands the requester a full match snapshot. The grace timer
// racing this call loses: it re-checks DisconnectedAt under the lock.
func (r *Registry) Reconnect(rootScope *envelope.Scope, playerID string) ([]models.PlayerView, error) {
	scope := rootScope.NewChildScope("session.Reconnect")
	defer scope.Finish()

	r.mu.RLock()
	matchID, ok := r.byPlayer[playerID]
	r.mu.RUnlock()
	if !ok {
		return nil, models.ErrNotInSession
	}

	e, err := r.entry(matchID)
	if err != nil {
		return nil, models.ErrNotInSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ps, ok := e.states[playerID]
	if !ok || e.match.Status.Terminal() || ps.Connected || ps.Settled() {
		return nil, models.ErrNotInSession
	}

	if timer, ok := e.graceTimers[playerID]; ok {
		timer.Stop()
		delete(e.graceTimers, playerID)
	}

	ps.Connected = true
	ps.DisconnectedAt = time.Time{}
	if ps.LastSnapshot != nil {
		restored := *ps.LastSnapshot
		ps.Transient = &restored
	}

	scope.Log.WithField("matchID", matchID).WithField("playerID", playerID).Info("participant reconnected")
	r.notifier.SendToRoom(notify.MatchRoom(matchID), constants.EventPlayerReconnected, map[string]interface{}{
		"player_id": playerID,
		"state":     ps.Transient,
	})

	views := r.snapshotLocked(e)
	r.notifier.SendToUser(playerID, constants.EventMatchSnapshot, map[string]interface{}{
		"match":   e.match,
		"players": views,
	})
	return views, nil
}

// expireDisconnect is the scheduled end of a grace window. A reconnect
// that won the race already cleared DisconnectedAt, making this a no-op.
func (r *Registry) expireDisconnect(matchID, playerID string) {
	scope := envelope.NewRootScope(context.Background(), "session.expireDisconnect", "")
	defer scope.Finish()

	e, err := r.entry(matchID)
	if err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ps, ok := e.states[playerID]
	if !ok || e.match.Status.Terminal() || ps.Connected || ps.Settled() || ps.DisconnectedAt.IsZero() {
		return
	}

	ps.DNF = true
	ps.DisconnectedAt = time.Time{}
	ps.Transient = nil
	delete(e.graceTimers, playerID)

	scope.Log.WithField("matchID", matchID).WithField("playerID", playerID).Info("grace window expired, participant marked DNF")
	r.notifier.SendToRoom(notify.MatchRoom(matchID), constants.EventPlayerTimeout, map[string]interface{}{
		"player_id": playerID,
	})

	if r.disconnectedCountLocked(e)*2 > len(e.states) {
		r.abortLocked(scope, e, constants.AbortReasonTooManyDisconnects)
		return
	}
	if e.match.Status == models.MatchStatusInProgress && r.allSettledLocked(e) {
		r.completeLocked(scope, e)
	}
}

// RecordFinish stores the player's result. When every participant has
// finished or DNF'd the match completes and finalization is launched
// exactly once.
func (r *Registry) RecordFinish(rootScope *envelope.Scope, matchID, playerID string, finishTime time.Duration, position int, replay []byte) error {
	scope := rootScope.NewChildScope("session.RecordFinish")
	defer scope.Finish()

	e, err := r.entry(matchID)
	if err != nil {
		return models.ErrNotInSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ps, ok := e.states[playerID]
	if !ok || e.match.Status != models.MatchStatusInProgress || ps.Settled() {
		return models.ErrNotInSession
	}

	ps.Finished = true
	ps.FinishTime = finishTime
	ps.FinishPosition = position
	ps.Replay = replay

	scope.Log.WithField("matchID", matchID).WithField("playerID", playerID).
		WithField("finishTime", finishTime).Info("participant finished")
	r.notifier.SendToRoom(notify.MatchRoom(matchID), constants.EventPlayerFinished, map[string]interface{}{
		"player_id": playerID,
		"time":      finishTime,
		"position":  position,
	})

	if r.allSettledLocked(e) {
		r.completeLocked(scope, e)
	}
	return nil
}

func (r *Registry) allSettledLocked(e *matchEntry) bool {
	for _, s := range e.states {
		if !s.Settled() {
			return false
		}
	}
	return true
}

func (r *Registry) disconnectedCountLocked(e *matchEntry) int {
	count := 0
	for _, s := range e.states {
		if !s.Connected && !s.Finished {
			count++
		}
	}
	return count
}

// completeLocked transitions in_progress -> completed and hands the match
// to the finalizer off the lock.
func (r *Registry) completeLocked(scope *envelope.Scope, e *matchEntry) {
	if !e.match.Status.CanTransitionTo(models.MatchStatusCompleted) {
		return
	}
	e.match.Status = models.MatchStatusCompleted
	e.match.EndedAt = time.Now().UTC()
	r.stopTimersLocked(e)
	scope.Log.WithField("matchID", e.match.MatchID).Info("match completed")
	r.persist(e.match)
	r.launchFinalizeLocked(e)
}

// abortLocked transitions any non-terminal status to aborted, marks every
// still-disconnected participant DNF, and notifies the room with the
// reason code.
func (r *Registry) abortLocked(scope *envelope.Scope, e *matchEntry, reason string) {
	if !e.match.Status.CanTransitionTo(models.MatchStatusAborted) {
		return
	}
	e.match.Status = models.MatchStatusAborted
	e.match.EndedAt = time.Now().UTC()
	for _, s := range e.states {
		if !s.Connected && !s.Finished {
			s.DNF = true
			s.DisconnectedAt = time.Time{}
		}
	}
	r.stopTimersLocked(e)
	e.finalizeDone = true // aborted matches carry no rating outcome

	scope.Log.WithField("matchID", e.match.MatchID).WithField("reason", reason).Warn("match aborted")
	if r.metrics != nil {
		r.metrics.AddSessionAborted(reason)
	}
	r.notifier.SendToRoom(notify.MatchRoom(e.match.MatchID), constants.EventMatchAborted, map[string]interface{}{
		"match_id": e.match.MatchID,
		"reason":   reason,
	})
	r.persist(e.match)
}

func (r *Registry) stopTimersLocked(e *matchEntry) {
	if e.formationTimer != nil {
		e.formationTimer.Stop()
		e.formationTimer = nil
	}
	for id, timer := range e.graceTimers {
		timer.Stop()
		delete(e.graceTimers, id)
	}
}

// launchFinalizeLocked starts outcome finalization exactly once, with
// copies of the match and participant states so no lock is held across
// the durable-store boundary.
func (r *Registry) launchFinalizeLocked(e *matchEntry) {
	if e.finalizeStarted || r.finalizer == nil {
		if r.finalizer == nil {
			e.finalizeDone = true
		}
		return
	}
	e.finalizeStarted = true

	match := e.match
	states := make([]models.ParticipantState, 0, len(e.states))
	for _, p := range e.match.Participants {
		if s, ok := e.states[p.PlayerID]; ok {
			states = append(states, *s)
		}
	}
	matchID := match.MatchID

	go func() {
		scope := envelope.NewRootScope(context.Background(), "session.finalize", "")
		defer scope.Finish()
		r.finalizer.Finalize(scope, match, states)
		r.markFinalized(matchID)
	}()
}

func (r *Registry) markFinalized(matchID string) {
	e, err := r.entry(matchID)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.finalizeDone = true
	e.mu.Unlock()
}
