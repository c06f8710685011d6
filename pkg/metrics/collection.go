// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	bucketPopulation prometheus.GaugeVec
	matchesFormed    prometheus.CounterVec
	unmatchedReasons prometheus.CounterVec
	evaluateElapsed  prometheus.HistogramVec
	activeSessions   prometheus.Gauge
	sessionsAborted  prometheus.CounterVec
	finalizeRetries  prometheus.CounterVec
	finalizeFailures prometheus.CounterVec
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	bucketPopulation := factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livematch_bucket_population",
			Help: "Number of queued players per rating bucket",
		}, []string{"bucket"})

	matchesFormed := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livematch_matches_formed_total",
			Help: "Matches formed, labeled by participant count",
		}, []string{"players"})

	unmatchedReasons := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livematch_unmatched_reasons_total",
			Help: "Reasons a bucket evaluation did not form a match",
		}, []string{"bucket", "reason"})

	//nolint:promlinter
	evaluateElapsed := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livematch_evaluate_elapsed_time_ms",
			Help:    "A histogram of bucket evaluation elapsed time in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{})

	activeSessions := factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "livematch_active_sessions",
			Help: "Matches currently tracked by the live session registry",
		})

	sessionsAborted := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livematch_sessions_aborted_total",
			Help: "Aborted matches by reason",
		}, []string{"reason"})

	finalizeRetries := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livematch_finalize_retries_total",
			Help: "Durable-store retries during outcome finalization",
		}, []string{"function"})

	finalizeFailures := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livematch_finalize_failures_total",
			Help: "Durable-store operations that exhausted their retry budget",
		}, []string{"function"})

	return prometheusMetrics{
		bucketPopulation: *bucketPopulation,
		matchesFormed:    *matchesFormed,
		unmatchedReasons: *unmatchedReasons,
		evaluateElapsed:  *evaluateElapsed,
		activeSessions:   activeSessions,
		sessionsAborted:  *sessionsAborted,
		finalizeRetries:  *finalizeRetries,
		finalizeFailures: *finalizeFailures,
	}
}

func (metrics prometheusMetrics) SetBucketPopulation(bucket int, players int) {
	metrics.bucketPopulation.With(prometheus.Labels{"bucket": strconv.Itoa(bucket)}).Set(float64(players))
}

func (metrics prometheusMetrics) AddMatchFormed(players int) {
	metrics.matchesFormed.With(prometheus.Labels{"players": strconv.Itoa(players)}).Add(1)
}

func (metrics prometheusMetrics) AddUnmatchedReason(bucket int, reason string) {
	metrics.unmatchedReasons.With(prometheus.Labels{"bucket": strconv.Itoa(bucket), "reason": reason}).Add(1)
}

func (metrics prometheusMetrics) AddEvaluateElapsedTimeMs(elapsedTime time.Duration) {
	metrics.evaluateElapsed.With(prometheus.Labels{}).Observe(float64(elapsedTime.Milliseconds()))
}

func (metrics prometheusMetrics) SetActiveSessions(count int) {
	metrics.activeSessions.Set(float64(count))
}

func (metrics prometheusMetrics) AddSessionAborted(reason string) {
	metrics.sessionsAborted.With(prometheus.Labels{"reason": reason}).Add(1)
}

func (metrics prometheusMetrics) AddFinalizeRetry(function string) {
	metrics.finalizeRetries.With(prometheus.Labels{"function": function}).Add(1)
}

func (metrics prometheusMetrics) AddFinalizeFailure(function string) {
	metrics.finalizeFailures.With(prometheus.Labels{"function": function}).Add(1)
}
