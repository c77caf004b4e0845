// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/drawbridge-dev/drawbridge/internal/conf"
	"github.com/drawbridge-dev/drawbridge/internal/sync/dispatch"
	"github.com/drawbridge-dev/drawbridge/internal/sync/jobs"
	"github.com/drawbridge-dev/drawbridge/internal/sync/source"
)

// Stage names, used for logging and monitoring.
const (
	StageValidate = "validate"
	StageExtract  = "extract"
	StagePersist  = "persist"
	StageDispatch = "dispatch"
)

// The sync dispatch pipeline.
//
// Stages run strictly in order: validate, introspect+extract, persist,
// dispatch. A job record is only created after the source data could be
// read, so no record ever exists for data that was never extracted. A
// failed dispatch leaves the record standing and reports the id together
// with the error, so the caller can reconcile out-of-band.
type Pipeline interface {
	// Run one sync request through all stages.
	//
	// On success the returned id identifies the created job. On failure
	// the error is one of the stage error kinds; the id is non-empty
	// only for DispatchError, where a job record already exists.
	Run(ctx context.Context, rawRequest []byte) (string, error)
}

type pipeline struct {
	config     conf.SyncConfig
	registry   *source.Registry
	store      jobs.Store
	dispatcher dispatch.Dispatcher
	monitor    Monitor
}

func NewPipeline(
	config conf.SyncConfig,
	registry *source.Registry,
	store jobs.Store,
	dispatcher dispatch.Dispatcher,
	monitor Monitor,
) Pipeline {
	return &pipeline{
		config:     config,
		registry:   registry,
		store:      store,
		dispatcher: dispatcher,
		monitor:    monitor,
	}
}

func (p *pipeline) Run(ctx context.Context, rawRequest []byte) (string, error) {
	if p.config.RequestTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(
			ctx, time.Duration(p.config.RequestTimeoutSeconds)*time.Second,
		)
		defer cancel()
	}

	request, err := p.validate(rawRequest)
	if err != nil {
		return "", err
	}
	snapshot, err := p.extract(ctx, request)
	if err != nil {
		return "", err
	}
	jobID, err := p.persist(ctx, request)
	if err != nil {
		return "", err
	}
	if err := p.dispatch(ctx, jobID, request, snapshot); err != nil {
		// The job record stays; its id is the reconciliation handle.
		return jobID, err
	}
	return jobID, nil
}

func (p *pipeline) validate(rawRequest []byte) (*SyncRequest, error) {
	defer p.timed(StageValidate)()
	request, err := ValidateSyncRequest(rawRequest)
	if err != nil {
		p.count(StageValidate, "error")
		return nil, err
	}
	p.count(StageValidate, "success")
	return request, nil
}

// Introspect the source and snapshot all of its tables. A source with
// zero tables yields an empty snapshot and is not treated as a failure.
func (p *pipeline) extract(ctx context.Context, request *SyncRequest) (source.Snapshot, error) {
	defer p.timed(StageExtract)()
	descriptor, ok := p.registry.Lookup(request.LinkType)
	if !ok {
		p.count(StageExtract, "error")
		return nil, &UnknownLinkTypeError{LinkType: request.LinkType}
	}
	creds := source.Credentials(request.InternalCredentials)
	tables, err := source.Introspect(ctx, descriptor, creds)
	if err != nil {
		p.count(StageExtract, "error")
		return nil, err
	}
	snapshot := source.Snapshot{}
	if len(tables) > 0 {
		snapshot, err = source.Extract(
			ctx, descriptor, creds, tables, p.config.MaxParallelTables,
		)
		if err != nil {
			p.count(StageExtract, "error")
			return nil, err
		}
	}
	rows := 0
	for _, tableRows := range snapshot {
		rows += len(tableRows)
	}
	if p.monitor.SnapshotTablesGauge != nil {
		p.monitor.SnapshotTablesGauge.
			WithLabelValues(request.LinkType).Set(float64(len(snapshot)))
	}
	if p.monitor.SnapshotRowsGauge != nil {
		p.monitor.SnapshotRowsGauge.
			WithLabelValues(request.LinkType).Set(float64(rows))
	}
	slog.Info(
		"extracted snapshot",
		"organization", request.Organization,
		"linkType", request.LinkType,
		"tables", len(snapshot),
		"rows", rows,
	)
	p.count(StageExtract, "success")
	return snapshot, nil
}

func (p *pipeline) persist(ctx context.Context, request *SyncRequest) (string, error) {
	defer p.timed(StagePersist)()
	credentials, err := json.Marshal(request.InternalCredentials)
	if err != nil {
		p.count(StagePersist, "error")
		return "", &PersistenceError{Err: err}
	}
	destination, err := json.Marshal(request.DestinationConfig)
	if err != nil {
		p.count(StagePersist, "error")
		return "", &PersistenceError{Err: err}
	}
	jobID, err := p.store.Create(ctx, &jobs.SyncJob{
		Organization:        request.Organization,
		InternalWarehouse:   request.InternalWarehouse,
		LinkType:            request.LinkType,
		InternalCredentials: string(credentials),
		DestinationConfig:   string(destination),
		Status:              jobs.StatusActive,
	})
	if err != nil {
		p.count(StagePersist, "error")
		return "", &PersistenceError{Err: err}
	}
	p.count(StagePersist, "success")
	return jobID, nil
}

// Trigger the provisioning workflow, retrying with exponential backoff.
// Dispatch is the least reliable external call of the pipeline, so it is
// the only stage with a retry policy.
func (p *pipeline) dispatch(
	ctx context.Context,
	jobID string,
	request *SyncRequest,
	snapshot source.Snapshot,
) error {
	defer p.timed(StageDispatch)()
	payload, err := dispatch.EncodeSnapshot(snapshot)
	if err != nil {
		p.count(StageDispatch, "error")
		return &DispatchError{JobID: jobID, Err: err}
	}
	dispatchRequest := dispatch.Request{
		SyncID:            jobID,
		Organization:      request.Organization,
		InternalWarehouse: request.InternalWarehouse,
		LinkType:          request.LinkType,
		Payload:           payload,
	}

	attempts := max(1, p.config.Dispatch.Attempts)
	backoff := time.Duration(p.config.Dispatch.BackoffSeconds) * time.Second
	if backoff <= 0 {
		backoff = time.Second
	}
	for attempt := 1; ; attempt++ {
		err = p.dispatcher.Dispatch(ctx, dispatchRequest)
		if err == nil {
			p.count(StageDispatch, "success")
			return nil
		}
		slog.Error(
			"dispatch attempt failed",
			"jobID", jobID,
			"attempt", attempt,
			"of", attempts,
			"error", err,
		)
		if attempt >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			p.count(StageDispatch, "error")
			return &DispatchError{JobID: jobID, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	p.count(StageDispatch, "error")
	return &DispatchError{JobID: jobID, Err: err}
}

func (p *pipeline) timed(stage string) func() {
	if p.monitor.PipelineStageTimer == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.monitor.PipelineStageTimer.
			WithLabelValues(stage).
			Observe(time.Since(start).Seconds())
	}
}

func (p *pipeline) count(stage, result string) {
	if p.monitor.PipelineRequestProcessedCounter == nil {
		return
	}
	p.monitor.PipelineRequestProcessedCounter.WithLabelValues(stage, result).Inc()
}
