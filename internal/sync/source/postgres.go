// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"database/sql"
	"net"
	"net/url"

	"github.com/lib/pq"
)

// Link type identifier for Postgres sources.
const LinkTypePostgres = "postgres"

func PostgresDescriptor() Descriptor {
	return Descriptor{
		LinkType:       LinkTypePostgres,
		RequiredFields: []string{"host", "username", "password", "database"},
		New:            func() Warehouse { return postgresWarehouse{} },
	}
}

type postgresWarehouse struct{}

func (postgresWarehouse) Open(ctx context.Context, creds Credentials) (*sql.DB, error) {
	port := creds["port"]
	if port == "" {
		port = "5432"
	}
	sslmode := creds["sslmode"]
	if sslmode == "" {
		// External warehouses are reached over the open network.
		sslmode = "require"
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(creds["username"], creds["password"]),
		Host:     net.JoinHostPort(creds["host"], port),
		Path:     "/" + creds["database"],
		RawQuery: "sslmode=" + url.QueryEscape(sslmode),
	}
	db, err := sql.Open("postgres", dsn.String())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (postgresWarehouse) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	query := `SELECT table_name
		FROM   information_schema.tables
		WHERE  table_schema = 'public' AND table_type = 'BASE TABLE'`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (postgresWarehouse) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}
