package testsetup

import (
	"time"

	"github.com/AccelByte/livematch/pkg/metrics"
)

type stubMetricsCollection struct{}

func (s stubMetricsCollection) SetBucketPopulation(bucket int, players int) {}

func (s stubMetricsCollection) AddMatchFormed(players int) {}

func (s stubMetricsCollection) AddUnmatchedReason(bucket int, reason string) {}

func (s stubMetricsCollection) AddEvaluateElapsedTimeMs(elapsedTime time.Duration) {}

func (s stubMetricsCollection) SetActiveSessions(count int) {}

func (s stubMetricsCollection) AddSessionAborted(reason string) {}

func (s stubMetricsCollection) AddFinalizeRetry(function string) {}

func (s stubMetricsCollection) AddFinalizeFailure(function string) {}

func NewMetrics() metrics.LiveMatchMetrics {
	return stubMetricsCollection{}
}
