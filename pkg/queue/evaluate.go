// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package queue

import (
	"time"

	pie "github.com/elliotchance/pie/v2"

	"github.com/AccelByte/livematch/pkg/common"
	"github.com/AccelByte/livematch/pkg/constants"
	"github.com/AccelByte/livematch/pkg/envelope"
	"github.com/AccelByte/livematch/pkg/models"
)

// group is a queued party, or a solo player as a singleton group. Groups
// are the unit of selection: a party is never split across two matches.
type group struct {
	key        string
	partyID    string
	entries    []*models.QueueEntry
	enqueuedAt time.Time
}

// formation is the outcome of a successful evaluation, finished outside
// the queue lock.
type formation struct {
	match    models.Match
	partyIDs []string
}

// groupBucketLocked collects the bucket's entries into selection groups,
// oldest first.
func (q *Queue) groupBucketLocked(bucket int) []group {
	byKey := make(map[string]*group)
	var order []string
	for playerID := range q.buckets[bucket] {
		entry := q.entries[playerID]
		key := entry.PartyID
		if key == "" {
			key = entry.PlayerID
		}
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, partyID: entry.PartyID, enqueuedAt: entry.EnqueuedAt}
			byKey[key] = g
			order = append(order, key)
		}
		g.entries = append(g.entries, entry)
		if entry.EnqueuedAt.Before(g.enqueuedAt) {
			g.enqueuedAt = entry.EnqueuedAt
		}
	}

	groups := make([]group, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return pie.SortUsing(groups, groupLess)
}

// groupLess orders groups oldest first, key as a deterministic tie-break.
func groupLess(a, b group) bool {
	if !a.enqueuedAt.Equal(b.enqueuedAt) {
		return a.enqueuedAt.Before(b.enqueuedAt)
	}
	return a.key < b.key
}

// selectGroups picks the longest-waiting admissible combination whose
// total size lands within [MinPlayers, MaxPlayers]. Greedy oldest-first
// keeps worst-case wait bounded; a group that would overflow MaxPlayers is
// skipped, never split.
func (q *Queue) selectGroups(groups []group) []group {
	var selected []group
	total := 0
	for _, g := range groups {
		if total+len(g.entries) > q.cfg.MaxPlayers {
			continue
		}
		selected = append(selected, g)
		total += len(g.entries)
		if total == q.cfg.MaxPlayers {
			break
		}
	}
	if total < q.cfg.MinPlayers {
		return nil
	}
	return selected
}

// evaluateLocked runs match evaluation for the bucket. When the oldest
// group has waited past MaxWait the rating constraint is relaxed to the
// adjacent buckets. Returns a formation when a match was formed, nil
// otherwise. Caller holds the queue lock; entry and bucket removal is
// therefore atomic with respect to concurrent Cancel calls.
func (q *Queue) evaluateLocked(scope *envelope.Scope, bucket int) *formation {
	started := time.Now()
	defer func() {
		if q.metrics != nil {
			q.metrics.AddEvaluateElapsedTimeMs(time.Since(started))
		}
	}()

	scope.SetAttributes(envelope.BucketTag, bucket)

	groups := q.groupBucketLocked(bucket)
	if len(groups) == 0 {
		return nil
	}

	selected := q.selectGroups(groups)
	if selected == nil && time.Since(groups[0].enqueuedAt) >= q.cfg.MaxWait() {
		// max-wait fallback: widen to the adjacent buckets
		widened := groups
		widened = append(widened, q.groupBucketLocked(bucket-q.cfg.BucketWidth)...)
		widened = append(widened, q.groupBucketLocked(bucket+q.cfg.BucketWidth)...)
		widened = pie.SortUsing(widened, groupLess)
		selected = q.selectGroups(widened)
	}
	if selected == nil {
		if q.metrics != nil {
			reason := constants.ReasonNotEnoughPlayers
			if q.countPlayers(groups) >= q.cfg.MinPlayers {
				reason = constants.ReasonNoFitWithinMax
			}
			q.metrics.AddUnmatchedReason(bucket, reason)
		}
		return nil
	}

	return q.formLocked(scope, selected)
}

func (q *Queue) countPlayers(groups []group) int {
	total := 0
	for _, g := range groups {
		total += len(g.entries)
	}
	return total
}

// formLocked removes the selected entries and bucket memberships, records
// the assigned match id for pending status polls, and builds the Match
// handed to the session registry.
func (q *Queue) formLocked(scope *envelope.Scope, selected []group) *formation {
	matchID := common.GenerateMatchID()

	var participants []models.MatchParticipant
	var partyIDs []string
	for _, g := range selected {
		if g.partyID != "" {
			partyIDs = append(partyIDs, g.partyID)
		}
		for _, entry := range g.entries {
			participants = append(participants, models.MatchParticipant{
				PlayerID: entry.PlayerID,
				ShipID:   entry.ShipID,
				PartyID:  entry.PartyID,
				Rating:   entry.Rating,
			})
			q.removeLocked(entry)
			q.recordAssignedLocked(entry.PlayerID, matchID)
		}
	}

	scope.SetAttributes(envelope.MatchIDTag, matchID)
	scope.SetAttributes(envelope.ParticipantsTag, len(participants))
	scope.Log.WithField("matchID", matchID).
		WithField("groups", len(selected)).
		Debug("selected groups for match")

	return &formation{
		match: models.Match{
			MatchID:      matchID,
			CourseID:     q.PickCourse(),
			Status:       models.MatchStatusForming,
			Participants: participants,
			Capacity:     q.cfg.MaxPlayers,
			CreatedAt:    time.Now().UTC(),
		},
		partyIDs: partyIDs,
	}
}
