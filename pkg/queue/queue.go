// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package queue owns the pool of solo players and queued parties awaiting
// a match. Entries are indexed into rating buckets; every enqueue triggers
// an evaluation of the affected bucket.
package queue

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/AccelByte/livematch/pkg/config"
	"github.com/AccelByte/livematch/pkg/constants"
	"github.com/AccelByte/livematch/pkg/envelope"
	"github.com/AccelByte/livematch/pkg/metrics"
	"github.com/AccelByte/livematch/pkg/models"
	"github.com/AccelByte/livematch/pkg/notify"
	"github.com/AccelByte/livematch/pkg/party"
	"github.com/AccelByte/livematch/pkg/storage"
)

// assignedCacheLimit bounds the match-found cache consulted by status
// polls after an entry has been removed.
const assignedCacheLimit = 4096

// DefaultCourseID is used when no course picker is configured.
const DefaultCourseID = "random"

// SessionHandoff receives the participant set the moment a match forms.
// Ownership of the involved players transfers with the call.
type SessionHandoff interface {
	Register(scope *envelope.Scope, match models.Match)
}

// Queue owns Queue Entries and Rating Buckets until a match is formed.
type Queue struct {
	cfg      *config.Config
	store    storage.Store
	notifier notify.Notifier
	metrics  metrics.LiveMatchMetrics
	parties  *party.Manager
	handoff  SessionHandoff

	// PickCourse selects the course for a forming match.
	PickCourse func() string

	mu      sync.Mutex
	entries map[string]*models.QueueEntry
	buckets map[int]map[string]struct{}

	// assigned caches playerID -> matchID so pending status polls observe
	// MatchFound after the entry itself is gone. FIFO-bounded.
	assigned      map[string]string
	assignedOrder []string
}

func New(cfg *config.Config, store storage.Store, parties *party.Manager, handoff SessionHandoff, notifier notify.Notifier, m metrics.LiveMatchMetrics) *Queue {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Queue{
		cfg:        cfg,
		store:      store,
		notifier:   notifier,
		metrics:    m,
		parties:    parties,
		handoff:    handoff,
		PickCourse: func() string { return DefaultCourseID },
		entries:    make(map[string]*models.QueueEntry),
		buckets:    make(map[int]map[string]struct{}),
		assigned:   make(map[string]string),
	}
}

// bucketFor floors the rating onto its bucket key.
func (q *Queue) bucketFor(rating int) int {
	w := q.cfg.BucketWidth
	b := rating / w
	if rating < 0 && rating%w != 0 {
		b--
	}
	return b * w
}

// EnqueueSolo creates a queue entry for a single player and evaluates the
// entry's bucket.
func (q *Queue) EnqueueSolo(rootScope *envelope.Scope, playerID string, rating int, shipID string) error {
	scope := rootScope.NewChildScope("queue.EnqueueSolo")
	defer scope.Finish()
	scope.SetAttributes(envelope.PlayerIDTag, playerID)

	q.mu.Lock()
	if _, queued := q.entries[playerID]; queued {
		q.mu.Unlock()
		return models.ErrAlreadyQueued
	}
	bucket := q.insertLocked(&models.QueueEntry{
		PlayerID:   playerID,
		Rating:     rating,
		ShipID:     shipID,
		EnqueuedAt: time.Now().UTC(),
	})
	formation := q.evaluateLocked(scope, bucket)
	q.mu.Unlock()

	scope.Log.WithField("playerID", playerID).WithField("bucket", bucket).Info("player enqueued")
	q.finishFormation(scope, formation)
	return nil
}

// EnqueueParty enqueues every member of the party atomically under the
// party's mean rating. Rating lookups hit the durable store before the
// queue lock is taken.
func (q *Queue) EnqueueParty(rootScope *envelope.Scope, partyID string) error {
	scope := rootScope.NewChildScope("queue.EnqueueParty")
	defer scope.Finish()
	scope.SetAttributes(envelope.PartyIDTag, partyID)

	p, err := q.parties.Get(partyID)
	if err != nil {
		return err
	}
	for _, member := range p.Members {
		if _, ok := p.ShipIDs[member]; !ok {
			return models.ErrIncompleteSelection
		}
	}

	ratings := make([]float64, 0, len(p.Members))
	for _, member := range p.Members {
		r, err := q.store.GetRating(scope.Ctx, member)
		if err != nil {
			return err
		}
		ratings = append(ratings, float64(r))
	}
	meanRating := int(stat.Mean(ratings, nil))

	now := time.Now().UTC()

	q.mu.Lock()
	for _, member := range p.Members {
		if _, queued := q.entries[member]; queued {
			q.mu.Unlock()
			return models.ErrAlreadyQueued
		}
	}
	var bucket int
	for _, member := range p.Members {
		bucket = q.insertLocked(&models.QueueEntry{
			PlayerID:   member,
			Rating:     meanRating,
			ShipID:     p.ShipIDs[member],
			PartyID:    partyID,
			EnqueuedAt: now,
		})
	}
	formation := q.evaluateLocked(scope, bucket)
	q.mu.Unlock()

	scope.Log.WithField("partyID", partyID).
		WithField("members", len(p.Members)).
		WithField("rating", meanRating).
		Info("party enqueued")
	q.finishFormation(scope, formation)
	return nil
}

// Cancel removes the player's entry and bucket membership. It is
// idempotent: cancelling a player who is not queued is a no-op.
func (q *Queue) Cancel(rootScope *envelope.Scope, playerID string) {
	scope := rootScope.NewChildScope("queue.Cancel")
	defer scope.Finish()

	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[playerID]
	if !ok {
		return
	}
	q.removeLocked(entry)
	scope.Log.WithField("playerID", playerID).Info("queue entry cancelled")
}

// Status answers a poll for the player's matchmaking state.
func (q *Queue) Status(rootScope *envelope.Scope, playerID string) models.QueueStatus {
	scope := rootScope.NewChildScope("queue.Status")
	defer scope.Finish()

	q.mu.Lock()
	defer q.mu.Unlock()

	if matchID, ok := q.assigned[playerID]; ok {
		return models.QueueStatus{State: models.QueueStateMatchFound, MatchID: matchID}
	}
	entry, ok := q.entries[playerID]
	if !ok {
		return models.QueueStatus{State: models.QueueStateNotQueued}
	}
	bucket := q.bucketFor(entry.Rating)
	return models.QueueStatus{
		State:            models.QueueStateSearching,
		WaitTime:         time.Since(entry.EnqueuedAt),
		BucketPopulation: len(q.buckets[bucket]),
	}
}

// insertLocked adds the entry to the pool and its bucket, returning the
// bucket key.
func (q *Queue) insertLocked(entry *models.QueueEntry) int {
	bucket := q.bucketFor(entry.Rating)
	q.entries[entry.PlayerID] = entry
	// a re-enqueue invalidates any previously assigned match for this player
	delete(q.assigned, entry.PlayerID)
	members, ok := q.buckets[bucket]
	if !ok {
		members = make(map[string]struct{})
		q.buckets[bucket] = members
	}
	members[entry.PlayerID] = struct{}{}
	if q.metrics != nil {
		q.metrics.SetBucketPopulation(bucket, len(members))
	}
	return bucket
}

// removeLocked drops the entry from the pool and its bucket.
func (q *Queue) removeLocked(entry *models.QueueEntry) {
	bucket := q.bucketFor(entry.Rating)
	delete(q.entries, entry.PlayerID)
	if members, ok := q.buckets[bucket]; ok {
		delete(members, entry.PlayerID)
		if len(members) == 0 {
			delete(q.buckets, bucket)
		}
		if q.metrics != nil {
			q.metrics.SetBucketPopulation(bucket, len(members))
		}
	}
}

// recordAssignedLocked caches the formed match id for status polls.
func (q *Queue) recordAssignedLocked(playerID, matchID string) {
	if _, exists := q.assigned[playerID]; !exists {
		q.assignedOrder = append(q.assignedOrder, playerID)
	}
	q.assigned[playerID] = matchID
	for len(q.assignedOrder) > assignedCacheLimit {
		oldest := q.assignedOrder[0]
		q.assignedOrder = q.assignedOrder[1:]
		delete(q.assigned, oldest)
	}
}

// finishFormation runs the side effects of a formed match outside the
// queue lock: registry handoff, party teardown, and participant
// notifications.
func (q *Queue) finishFormation(scope *envelope.Scope, f *formation) {
	if f == nil {
		return
	}
	scope.SetAttributes(envelope.MatchIDTag, f.match.MatchID)
	scope.Log.WithField("matchID", f.match.MatchID).
		WithField("players", len(f.match.Participants)).
		Info("match formed")

	if q.metrics != nil {
		q.metrics.AddMatchFormed(len(f.match.Participants))
	}

	q.handoff.Register(scope, f.match)

	for _, partyID := range f.partyIDs {
		q.parties.Destroy(partyID)
	}

	for _, p := range f.match.Participants {
		opponents := make([]models.MatchParticipant, 0, len(f.match.Participants)-1)
		for _, other := range f.match.Participants {
			if other.PlayerID != p.PlayerID {
				opponents = append(opponents, other)
			}
		}
		q.notifier.SendToUser(p.PlayerID, constants.EventMatchFound, map[string]interface{}{
			"match_id":  f.match.MatchID,
			"course_id": f.match.CourseID,
			"players":   opponents,
		})
	}
}

// QueuedCount reports the number of active entries, for observability.
func (q *Queue) QueuedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
