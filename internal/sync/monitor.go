// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sync

import (
	"github.com/drawbridge-dev/drawbridge/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
)

type Monitor struct {
	PipelineStageTimer              *prometheus.HistogramVec
	PipelineRequestProcessedCounter *prometheus.CounterVec
	SnapshotTablesGauge             *prometheus.GaugeVec
	SnapshotRowsGauge               *prometheus.GaugeVec
}

func NewPipelineMonitor(registry *monitoring.Registry) Monitor {
	pipelineStageTimer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "drawbridge_sync_stage_duration_seconds",
		Help:    "Duration of one sync pipeline stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	pipelineRequestProcessedCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drawbridge_sync_requests_processed_total",
		Help: "Number of processed sync requests",
	}, []string{"stage", "result"})
	snapshotTablesGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "drawbridge_sync_snapshot_tables",
		Help: "Number of tables in the last extracted snapshot",
	}, []string{"link_type"})
	snapshotRowsGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "drawbridge_sync_snapshot_rows",
		Help: "Number of rows in the last extracted snapshot",
	}, []string{"link_type"})
	registry.MustRegister(
		pipelineStageTimer,
		pipelineRequestProcessedCounter,
		snapshotTablesGauge,
		snapshotRowsGauge,
	)
	return Monitor{
		PipelineStageTimer:              pipelineStageTimer,
		PipelineRequestProcessedCounter: pipelineRequestProcessedCounter,
		SnapshotTablesGauge:             snapshotTablesGauge,
		SnapshotRowsGauge:               snapshotRowsGauge,
	}
}
