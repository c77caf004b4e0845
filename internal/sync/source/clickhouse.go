// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strings"

	// Registers the "clickhouse" database/sql driver.
	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// Link type identifier for ClickHouse sources.
const LinkTypeClickHouse = "clickhouse"

func ClickHouseDescriptor() Descriptor {
	return Descriptor{
		LinkType:       LinkTypeClickHouse,
		RequiredFields: []string{"host", "username", "password", "database"},
		New:            func() Warehouse { return clickhouseWarehouse{} },
	}
}

type clickhouseWarehouse struct{}

func (clickhouseWarehouse) Open(ctx context.Context, creds Credentials) (*sql.DB, error) {
	port := creds["port"]
	if port == "" {
		port = "9000"
	}
	dsn := url.URL{
		Scheme: "clickhouse",
		User:   url.UserPassword(creds["username"], creds["password"]),
		Host:   net.JoinHostPort(creds["host"], port),
		Path:   "/" + creds["database"],
	}
	if creds["secure"] == "true" {
		dsn.RawQuery = "secure=true"
	}
	db, err := sql.Open("clickhouse", dsn.String())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (clickhouseWarehouse) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW TABLES")
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

// ClickHouse accepts ANSI double-quoted identifiers.
func (clickhouseWarehouse) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
