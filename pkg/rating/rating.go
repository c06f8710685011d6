// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package rating computes per-participant Elo deltas for an N-player race.
// The calculator is a pure function over one consistent pre-race rating
// snapshot: no participant's delta depends on another's updated rating.
package rating

import (
	"math"
	"sort"
	"time"
)

// DefaultKFactor matches the classic Elo K used by the game.
const DefaultKFactor = 32

// Standing is one participant's pre-race rating and outcome.
type Standing struct {
	PlayerID   string
	Rating     int
	FinishTime time.Duration
	Finished   bool
}

// Calculator holds the tunables of the rating update.
type Calculator struct {
	KFactor int
}

// New returns a Calculator with the given K factor, falling back to
// DefaultKFactor when k is not positive.
func New(k int) Calculator {
	if k <= 0 {
		k = DefaultKFactor
	}
	return Calculator{KFactor: k}
}

// Rank orders standings into final positions: finishers by earliest finish
// time first, DNFs last tie-broken by player id so the order is
// deterministic. The returned slice is a sorted copy; position i holds rank
// i+1.
func Rank(standings []Standing) []Standing {
	ranked := make([]Standing, len(standings))
	copy(ranked, standings)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Finished != b.Finished {
			return a.Finished
		}
		if !a.Finished {
			return a.PlayerID < b.PlayerID
		}
		if a.FinishTime != b.FinishTime {
			return a.FinishTime < b.FinishTime
		}
		return a.PlayerID < b.PlayerID
	})
	return ranked
}

// Deltas computes the rating delta per participant from the pre-race
// snapshot, keyed by player id. For participant p at rank i against every
// opponent q:
//
//	expected(p,q) = 1 / (1 + 10^((rating(q)-rating(p))/400))
//	actual(p,q)   = 1 if p ranks ahead of q, else 0
//	delta(p)      = K * sum(actual - expected), rounded to an integer
func (c Calculator) Deltas(standings []Standing) map[string]int {
	ranked := Rank(standings)

	position := make(map[string]int, len(ranked))
	for i, s := range ranked {
		position[s.PlayerID] = i
	}

	deltas := make(map[string]int, len(ranked))
	for _, p := range ranked {
		var sum float64
		for _, q := range ranked {
			if q.PlayerID == p.PlayerID {
				continue
			}
			expected := 1.0 / (1.0 + math.Pow(10, float64(q.Rating-p.Rating)/400.0))
			actual := 0.0
			if position[p.PlayerID] < position[q.PlayerID] {
				actual = 1.0
			}
			sum += actual - expected
		}
		deltas[p.PlayerID] = int(math.Round(float64(c.KFactor) * sum))
	}
	return deltas
}
