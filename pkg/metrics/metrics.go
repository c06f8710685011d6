// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type LiveMatchMetrics interface {
	SetBucketPopulation(bucket int, players int)
	AddMatchFormed(players int)
	AddUnmatchedReason(bucket int, reason string)
	AddEvaluateElapsedTimeMs(elapsedTime time.Duration)
	SetActiveSessions(count int)
	AddSessionAborted(reason string)
	AddFinalizeRetry(function string)
	AddFinalizeFailure(function string)
}

func NewMetrics(registry *prometheus.Registry) LiveMatchMetrics {
	return setupPrometheusMetrics(registry)
}
