// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"github.com/drawbridge-dev/drawbridge/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
)

type Monitor struct {
	apiRequestsTimer *prometheus.HistogramVec
}

func NewAPIMonitor(registry *monitoring.Registry) Monitor {
	apiRequestsTimer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "drawbridge_api_request_duration_seconds",
		Help:    "Duration of API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "pattern", "status"})
	registry.MustRegister(apiRequestsTimer)
	return Monitor{apiRequestsTimer: apiRequestsTimer}
}
