// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"github.com/drawbridge-dev/drawbridge/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
)

type Monitor struct {
	connectionAttempts prometheus.Counter
	connectionFailures prometheus.Counter
}

func NewDBMonitor(registry *monitoring.Registry) Monitor {
	connectionAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drawbridge_db_connection_attempts_total",
		Help: "Total number of attempts to connect to the database",
	})
	connectionFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drawbridge_db_connection_failures_total",
		Help: "Total number of failed database liveness pings",
	})
	registry.MustRegister(connectionAttempts, connectionFailures)
	return Monitor{
		connectionAttempts: connectionAttempts,
		connectionFailures: connectionFailures,
	}
}
