// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"time"
)

const (
	// The job was accepted and handed to the provisioned worker (or is
	// waiting for its dispatch to be reconciled).
	StatusActive = "active"
	// The replication failed terminally.
	StatusFailed = "failed"
	// The provisioned worker reported the replication as done.
	StatusCompleted = "completed"
)

// Status order for the monotonic transition rule. A transition is legal
// only when it strictly increases the rank, so terminal states never
// regress and never flip into each other.
var statusRank = map[string]int{
	StatusActive:    0,
	StatusFailed:    1,
	StatusCompleted: 1,
}

// One durable record of a single attempted replication from a source
// warehouse to a destination. Never deleted by the pipeline; the id is
// the reconciliation handle handed back to callers.
type SyncJob struct {
	ID                string `db:"id,primarykey" json:"id"`
	Organization      string `db:"organization" json:"organization"`
	InternalWarehouse string `db:"internal_warehouse" json:"internalWarehouse"`
	// Normalized to lowercase.
	LinkType string `db:"link_type" json:"linkType"`
	// Source credentials as JSON. Kept out of API responses.
	InternalCredentials string `db:"internal_credentials,size:16384" json:"-"`
	// Destination config as JSON, with defaults resolved.
	DestinationConfig string    `db:"destination_config,size:16384" json:"destinationConfig"`
	Status            string    `db:"status" json:"status"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

// Table in which the sync jobs are stored.
func (j SyncJob) TableName() string { return "sync_jobs" }

// Lifecycle event published to the mqtt broker on job creation and on
// every status transition.
type Event struct {
	ID           string    `json:"id"`
	Organization string    `json:"organization"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

// Topic on which lifecycle events for one job are published.
func EventTopic(organization, id string) string {
	return "drawbridge/sync/" + organization + "/" + id
}
