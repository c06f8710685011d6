// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"context"
	"time"

	"github.com/AccelByte/livematch/pkg/constants"
	"github.com/AccelByte/livematch/pkg/envelope"
	"github.com/AccelByte/livematch/pkg/models"
)

// snapshotLocked assembles per-player views. The pooled slice is only a
// scratch buffer; callers get an exact-size copy they can hold freely.
func (r *Registry) snapshotLocked(e *matchEntry) []models.PlayerView {
	scratch := r.pool.PlayerViews.Get()
	scratch = scratch[:0]

	for _, p := range e.match.Participants {
		s, ok := e.states[p.PlayerID]
		if !ok {
			continue
		}
		scratch = append(scratch, models.PlayerView{
			PlayerID:       s.PlayerID,
			ShipID:         s.ShipID,
			Connected:      s.Connected,
			Ready:          s.Ready,
			Finished:       s.Finished,
			DNF:            s.DNF,
			FinishTime:     s.FinishTime,
			FinishPosition: s.FinishPosition,
			Transient:      s.Transient,
		})
	}

	views := make([]models.PlayerView, len(scratch))
	copy(views, scratch)

	r.pool.PlayerViews.Put(scratch[:0])
	return views
}

// Snapshot returns the current state of a live match.
func (r *Registry) Snapshot(rootScope *envelope.Scope, matchID string) (models.Match, []models.PlayerView, error) {
	e, err := r.entry(matchID)
	if err != nil {
		return models.Match{}, nil, models.ErrMatchNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.match.Status.Terminal() {
		return models.Match{}, nil, models.ErrMatchNotFound
	}
	return e.match, r.snapshotLocked(e), nil
}

// MatchFor reports which live match, if any, the player belongs to.
func (r *Registry) MatchFor(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matchID, ok := r.byPlayer[playerID]
	return matchID, ok
}

// Spectate subscribes a viewer to a live match and sends them an initial
// snapshot. Spectators never affect match state.
func (r *Registry) Spectate(rootScope *envelope.Scope, matchID, viewerID string) error {
	scope := rootScope.NewChildScope("session.Spectate")
	defer scope.Finish()

	e, err := r.entry(matchID)
	if err != nil {
		return models.ErrMatchNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.match.Status.Terminal() {
		return models.ErrMatchNotFound
	}

	r.notifier.SendToUser(viewerID, constants.EventMatchSnapshot, map[string]interface{}{
		"match":   e.match,
		"players": r.snapshotLocked(e),
	})
	return nil
}

// Reap drops terminal matches whose finalization finished and aborts
// forming matches nobody ever readied up for. Returns how many entries
// were removed.
func (r *Registry) Reap(rootScope *envelope.Scope) int {
	scope := rootScope.NewChildScope("session.Reap")
	defer scope.Finish()

	r.mu.Lock()
	candidates := make([]*matchEntry, 0, len(r.matches))
	for _, e := range r.matches {
		candidates = append(candidates, e)
	}
	r.mu.Unlock()

	now := time.Now().UTC()
	removable := make([]string, 0)

	for _, e := range candidates {
		e.mu.Lock()
		switch {
		case e.match.Status.Terminal() && e.finalizeDone:
			removable = append(removable, e.match.MatchID)
		case e.match.Status == models.MatchStatusForming && now.Sub(e.match.CreatedAt) > r.cfg.StaleForming():
			ready := 0
			for _, s := range e.states {
				if s.Ready {
					ready++
				}
			}
			if ready == 0 {
				r.abortLocked(scope, e, constants.AbortReasonFormationTimeout)
				removable = append(removable, e.match.MatchID)
			}
		}
		e.mu.Unlock()
	}

	if len(removable) == 0 {
		return 0
	}

	r.mu.Lock()
	for _, matchID := range removable {
		e, ok := r.matches[matchID]
		if !ok {
			continue
		}
		for _, p := range e.match.Participants {
			if r.byPlayer[p.PlayerID] == matchID {
				delete(r.byPlayer, p.PlayerID)
			}
		}
		delete(r.matches, matchID)
	}
	active := len(r.matches)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetActiveSessions(active)
	}
	scope.Log.WithField("reaped", len(removable)).Debug("session reap pass")
	return len(removable)
}

// Start runs the periodic reap loop until ctx is cancelled.
func (r *Registry) Start(ctx context.Context, rootScope *envelope.Scope) {
	ticker := time.NewTicker(r.cfg.ReapInterval())
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Reap(rootScope)
			}
		}
	}()
}
