// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/drawbridge-dev/drawbridge/internal/conf"
	"github.com/drawbridge-dev/drawbridge/internal/monitoring"
	"github.com/go-gorp/gorp"
	_ "github.com/lib/pq"
	"github.com/sapcc/go-bits/easypg"
)

// Wrapper around gorp.DbMap that adds some convenience functions.
type DB struct {
	*gorp.DbMap
	config  conf.DBConfig
	monitor Monitor
}

type Table interface {
	TableName() string
}

// Create a new postgres database and wait until it is connected.
func NewPostgresDB(
	ctx context.Context,
	c conf.DBConfig,
	registry *monitoring.Registry,
	monitor Monitor,
) DB {
	stripYaml := func(s string) string { return strings.ReplaceAll(s, "\n", "") }
	dbURL, err := easypg.URLFrom(easypg.URLParts{
		HostName:          stripYaml(c.Host),
		Port:              strconv.Itoa(c.Port),
		UserName:          stripYaml(c.User),
		Password:          stripYaml(c.Password),
		ConnectionOptions: "sslmode=disable",
		DatabaseName:      stripYaml(c.Database),
	})
	if err != nil {
		panic(err)
	}
	slog.Info("connecting to database", "host", c.Host, "database", c.Database)
	sqlDB, err := sql.Open("postgres", dbURL.String())
	if err != nil {
		panic(err)
	}

	retryInterval := time.Duration(c.Reconnect.RetryIntervalSeconds) * time.Second
	if retryInterval <= 0 {
		retryInterval = time.Second
	}
	maxRetries := c.Reconnect.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}
	for i := range maxRetries {
		if monitor.connectionAttempts != nil {
			monitor.connectionAttempts.Inc()
		}
		if err := sqlDB.PingContext(ctx); err == nil {
			break
		} else {
			if i == maxRetries-1 {
				panic("giving up connecting to database")
			}
			slog.Error("failed to connect to database, retrying...", "error", err)
		}
		time.Sleep(retryInterval)
	}

	sqlDB.SetMaxOpenConns(16)
	if registry != nil {
		// Export connection pool stats (open, idle, waits) to prometheus.
		registry.MustRegister(sqlstats.NewStatsCollector(c.Database, sqlDB))
	}
	dbMap := &gorp.DbMap{Db: sqlDB, Dialect: gorp.PostgresDialect{}}
	slog.Info("database is ready")
	return DB{DbMap: dbMap, config: c, monitor: monitor}
}

// Periodically ping the database to detect connection loss early.
// Blocks until the context is canceled.
func (d *DB) CheckLivenessPeriodically(ctx context.Context) {
	interval := time.Duration(d.config.Reconnect.LivenessPingIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Db.PingContext(ctx); err != nil {
				if d.monitor.connectionFailures != nil {
					d.monitor.connectionFailures.Inc()
				}
				slog.Error("database liveness ping failed", "error", err)
			}
		}
	}
}

// Adds missing functionality to gorp.DbMap which creates one table.
func (d *DB) CreateTable(table ...*gorp.TableMap) error {
	tx, err := d.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		return tx.Rollback()
	}
	for _, t := range table {
		slog.Info("creating table", "table", t.TableName)
		sql := t.SqlForCreate(true) // true means to add IF NOT EXISTS
		if _, err := tx.Exec(sql); err != nil {
			return tx.Rollback()
		}
	}
	return tx.Commit()
}

// Adds a Model table to the database.
func (d *DB) AddTable(t Table) *gorp.TableMap {
	slog.Info("adding table", "table", t.TableName(), "model", t)
	return d.AddTableWithName(t, t.TableName())
}

// Check if a table exists in the database.
func (d *DB) TableExists(t Table) bool {
	query := `SELECT EXISTS (
		SELECT 1
		FROM   information_schema.tables
		WHERE  table_name = :table_name
	);`
	var exists bool
	err := d.SelectOne(&exists, query, map[string]any{"table_name": t.TableName()})
	if err != nil {
		slog.Error("failed to check if table exists", "error", err)
		return false
	}
	return exists
}

// Convenience function to close the database connection.
func (d *DB) Close() {
	if err := d.DbMap.Db.Close(); err != nil {
		slog.Error("failed to close database connection", "error", err)
	}
}
