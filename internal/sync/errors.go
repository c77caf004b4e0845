// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sync

import (
	"fmt"
	"strings"
)

// One field-level problem found while validating a sync request.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// The request body was malformed. Recoverable by the caller correcting
// their input; carries every violated field, not just the first.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		fields = append(fields, issue.Field)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// The link type names a warehouse technology this deployment does not
// support.
type UnknownLinkTypeError struct {
	LinkType string
}

func (e *UnknownLinkTypeError) Error() string {
	return fmt.Sprintf("unsupported link type %q", e.LinkType)
}

// Writing the job record failed. No job id exists when this is raised.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist sync job: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// The provisioning trigger was rejected or unreachable. The job record
// already exists when this is raised; JobID is the reconciliation handle.
type DispatchError struct {
	JobID string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to dispatch provisioning for job %s: %v", e.JobID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
