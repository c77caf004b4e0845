// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"database/sql"
	"log/slog"
	"slices"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Enumerate the tables visible to the given credentials.
//
// The credential shape is checked before any network call, so malformed
// credentials fail fast and distinctly from an unreachable source. The
// returned list is sorted and deduplicated. The connection is released
// regardless of outcome.
func Introspect(ctx context.Context, d Descriptor, creds Credentials) ([]string, error) {
	if missing := d.MissingFields(creds); len(missing) > 0 {
		return nil, &CredentialShapeError{LinkType: d.LinkType, Missing: missing}
	}
	warehouse := d.New()
	db, err := warehouse.Open(ctx, creds)
	if err != nil {
		return nil, &ConnectionError{LinkType: d.LinkType, Err: err}
	}
	defer db.Close()

	tables, err := warehouse.Tables(ctx, db)
	if err != nil {
		return nil, &QueryError{LinkType: d.LinkType, Err: err}
	}
	slices.Sort(tables)
	return slices.Compact(tables), nil
}

// Pull the full contents of the given tables into a snapshot.
//
// Tables are fetched with at most maxParallel concurrent reads against
// the source. An error on any table fails the whole extraction: the
// result is either a complete snapshot or none. Note that each table is
// read fully into memory; there is no pagination or cursoring here.
func Extract(
	ctx context.Context,
	d Descriptor,
	creds Credentials,
	tables []string,
	maxParallel int,
) (Snapshot, error) {
	if missing := d.MissingFields(creds); len(missing) > 0 {
		return nil, &CredentialShapeError{LinkType: d.LinkType, Missing: missing}
	}
	warehouse := d.New()
	db, err := warehouse.Open(ctx, creds)
	if err != nil {
		return nil, &ConnectionError{LinkType: d.LinkType, Err: err}
	}
	defer db.Close()

	snapshot := make(Snapshot, len(tables))
	var lock stdsync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(1, maxParallel))
	for _, table := range tables {
		group.Go(func() error {
			start := time.Now()
			rows, err := fetchTable(groupCtx, db, warehouse, table)
			if err != nil {
				return &QueryError{LinkType: d.LinkType, Table: table, Err: err}
			}
			slog.Info(
				"extracted table",
				"linkType", d.LinkType,
				"table", table,
				"rows", len(rows),
				"took", time.Since(start),
			)
			lock.Lock()
			snapshot[table] = rows
			lock.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Read one table completely, carrying column names and database types
// with each value.
func fetchTable(
	ctx context.Context,
	db *sql.DB,
	warehouse Warehouse,
	table string,
) ([]Row, error) {
	//nolint:gosec // The identifier is quoted by the warehouse driver.
	query := "SELECT * FROM " + warehouse.QuoteIdentifier(table)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	// Non-nil so an empty table serializes as [] and not null.
	result := []Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = Value{
				Type:  columnTypes[i].DatabaseTypeName(),
				Value: normalizeValue(values[i]),
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Drivers return byte slices for text-ish columns; convert them so the
// snapshot serializes as strings instead of base64.
func normalizeValue(value any) any {
	if bytes, ok := value.([]byte); ok {
		return string(bytes)
	}
	return value
}
