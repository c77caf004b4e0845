// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/drawbridge-dev/drawbridge/internal/db"
	"github.com/drawbridge-dev/drawbridge/internal/mqtt"
	"github.com/google/uuid"
)

// Returned when no job exists for the given id.
var ErrNotFound = errors.New("sync job not found")

// Returned when a status transition would not move the job forward.
var ErrStatusRegression = errors.New("sync job status may only move forward")

// Durable store for sync job records.
//
// Jobs are insert-only: every accepted sync request produces exactly one
// new record, and records are never deleted here.
type Store interface {
	// Create the necessary database tables if they do not exist.
	Init(ctx context.Context)
	// Insert exactly one new record and return its generated id.
	Create(ctx context.Context, job *SyncJob) (string, error)
	// Transition the job status monotonically forward.
	UpdateStatus(ctx context.Context, id, status string) error
	// Fetch one job by id.
	GetByID(ctx context.Context, id string) (*SyncJob, error)
	// List all jobs of one organization, newest first.
	ListByOrganization(ctx context.Context, organization string) ([]SyncJob, error)
}

type store struct {
	db         db.DB
	mqttClient mqtt.Client
}

func NewStore(database db.DB, mqttClient mqtt.Client) Store {
	return &store{db: database, mqttClient: mqttClient}
}

func (s *store) Init(ctx context.Context) {
	if err := s.db.CreateTable(s.db.AddTable(SyncJob{})); err != nil {
		panic(err)
	}
}

func (s *store) Create(ctx context.Context, job *SyncJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusActive
	}
	if _, ok := statusRank[job.Status]; !ok {
		return "", fmt.Errorf("unknown sync job status %q", job.Status)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Insert(job); err != nil {
		return "", fmt.Errorf("failed to insert sync job: %w", err)
	}
	slog.Info("created sync job", "id", job.ID, "organization", job.Organization)
	s.publishEvent(job)
	return job.ID, nil
}

func (s *store) UpdateStatus(ctx context.Context, id, status string) error {
	newRank, ok := statusRank[status]
	if !ok {
		return fmt.Errorf("unknown sync job status %q", status)
	}
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if newRank <= statusRank[job.Status] {
		return fmt.Errorf(
			"%w: %s -> %s for job %s",
			ErrStatusRegression, job.Status, status, id,
		)
	}
	// Guard on the previous status so concurrent transitions can't race
	// past the monotonicity check.
	result, err := s.db.WithContext(ctx).Exec(
		"UPDATE sync_jobs SET status = :status WHERE id = :id AND status = :previous",
		map[string]any{"status": status, "id": id, "previous": job.Status},
	)
	if err != nil {
		return fmt.Errorf("failed to update sync job status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sync job %s was modified concurrently", id)
	}
	slog.Info("updated sync job status", "id", id, "from", job.Status, "to", status)
	job.Status = status
	s.publishEvent(job)
	return nil
}

func (s *store) GetByID(ctx context.Context, id string) (*SyncJob, error) {
	var job SyncJob
	err := s.db.WithContext(ctx).SelectOne(
		&job, "SELECT * FROM sync_jobs WHERE id = :id",
		map[string]any{"id": id},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select sync job: %w", err)
	}
	return &job, nil
}

func (s *store) ListByOrganization(ctx context.Context, organization string) ([]SyncJob, error) {
	var result []SyncJob
	_, err := s.db.WithContext(ctx).Select(
		&result,
		"SELECT * FROM sync_jobs WHERE organization = :organization ORDER BY created_at DESC",
		map[string]any{"organization": organization},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	return result, nil
}

func (s *store) publishEvent(job *SyncJob) {
	if s.mqttClient == nil {
		return
	}
	s.mqttClient.Publish(EventTopic(job.Organization, job.ID), Event{
		ID:           job.ID,
		Organization: job.Organization,
		Status:       job.Status,
		Timestamp:    time.Now().UTC(),
	})
}
