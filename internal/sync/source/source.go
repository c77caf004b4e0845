// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
)

// Opaque source credentials. The required keys depend on the link type
// and are declared by the link type's Descriptor.
type Credentials map[string]string

// A single cell value with the source column type attached, so the
// destination side can reconstruct schema without a second round trip.
type Value struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// One row of a source table.
type Row map[string]Value

// Full row contents of a source table set, captured once per sync attempt.
// An empty source yields an empty (non-nil) map; a table with no rows
// yields an empty (non-nil) row slice.
type Snapshot map[string][]Row

// A warehouse technology the pipeline can snapshot from.
//
// Implementations are stateless; connections are opened per call and
// released by the caller.
type Warehouse interface {
	// Open a connection pool to the source and verify it with a ping.
	Open(ctx context.Context, creds Credentials) (*sql.DB, error)
	// List the table names visible to the credentials.
	Tables(ctx context.Context, db *sql.DB) ([]string, error)
	// Quote a table identifier for interpolation into a SELECT.
	QuoteIdentifier(name string) string
}

// Capability descriptor for one link type.
type Descriptor struct {
	// The lowercased link type identifier, e.g. "clickhouse".
	LinkType string
	// Credential keys that must be present before any connection attempt.
	RequiredFields []string
	// Construct the warehouse driver.
	New func() Warehouse
}

// Registry of link types, open for extension without touching the
// pipeline logic.
type Registry struct {
	descriptors map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{descriptors: map[string]Descriptor{}}
}

// Registry with the built-in link types.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(ClickHouseDescriptor())
	registry.Register(PostgresDescriptor())
	return registry
}

func (r *Registry) Register(d Descriptor) {
	r.descriptors[strings.ToLower(d.LinkType)] = d
}

func (r *Registry) Lookup(linkType string) (Descriptor, bool) {
	d, ok := r.descriptors[strings.ToLower(linkType)]
	return d, ok
}

// The link types known to this registry, sorted.
func (r *Registry) LinkTypes() []string {
	types := make([]string, 0, len(r.descriptors))
	for linkType := range r.descriptors {
		types = append(types, linkType)
	}
	slices.Sort(types)
	return types
}

// Check the credential shape against the descriptor's required fields.
// Returns the sorted list of missing fields, empty when the shape is valid.
func (d Descriptor) MissingFields(creds Credentials) []string {
	var missing []string
	for _, field := range d.RequiredFields {
		if creds[field] == "" {
			missing = append(missing, field)
		}
	}
	slices.Sort(missing)
	return missing
}

// The source credentials are missing fields required for the declared
// link type. Raised before any connection attempt.
type CredentialShapeError struct {
	LinkType string
	Missing  []string
}

func (e *CredentialShapeError) Error() string {
	return fmt.Sprintf(
		"credentials for link type %q are missing required fields: %s",
		e.LinkType, strings.Join(e.Missing, ", "),
	)
}

// The source warehouse could not be reached or refused authentication.
type ConnectionError struct {
	LinkType string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s source: %v", e.LinkType, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// The source warehouse rejected a query during introspection or extraction.
type QueryError struct {
	LinkType string
	Table    string
	Err      error
}

func (e *QueryError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s source query failed: %v", e.LinkType, e.Err)
	}
	return fmt.Sprintf("%s source query failed for table %q: %v", e.LinkType, e.Table, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
