// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/drawbridge-dev/drawbridge/internal/conf"
	"github.com/drawbridge-dev/drawbridge/internal/db"
	"github.com/drawbridge-dev/drawbridge/internal/monitoring"
	"github.com/drawbridge-dev/drawbridge/internal/mqtt"
	"github.com/drawbridge-dev/drawbridge/internal/sync"
	"github.com/drawbridge-dev/drawbridge/internal/sync/api"
	"github.com/drawbridge-dev/drawbridge/internal/sync/dispatch"
	"github.com/drawbridge-dev/drawbridge/internal/sync/jobs"
	"github.com/drawbridge-dev/drawbridge/internal/sync/source"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/must"
	"go.uber.org/automaxprocs/maxprocs"
)

// Run the prometheus metrics server for monitoring.
func runMonitoringServer(ctx context.Context, registry *monitoring.Registry, config conf.MonitoringConfig) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	slog.Info("metrics listening", "port", config.Port)
	addr := fmt.Sprintf(":%d", config.Port)
	if err := httpext.ListenAndServeContext(ctx, addr, mux); err != nil {
		panic(err)
	}
}

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		// If called with `--version`, report version and exit (the Dockerfile
		// uses this to check if the binary was built correctly)
		bininfo.HandleVersionArgument()
	}

	config := conf.GetConfigOrDie[*conf.Config]()
	config.LoggingConfig.SetDefaultLogger()
	must.Succeed(config.Validate())

	// Set runtime concurrency to match CPU limit imposed by Kubernetes
	undoMaxprocs, err := maxprocs.Set(maxprocs.Logger(slog.Debug))
	if err != nil {
		panic(err)
	}
	defer undoMaxprocs()

	// Override User-Agent header for all requests made by this process
	// (logs will show e.g. "drawbridge/d0c9faa" instead of "Go-http-client/2.0")
	wrap := httpext.WrapTransport(&http.DefaultTransport)
	wrap.SetOverrideUserAgent(bininfo.Component(), bininfo.VersionOr("rolling"))

	// This context will gracefully shutdown when the process receives the
	// standard shutdown signal SIGINT, with a 10-second delay to allow
	// Kubernetes to stop sending new requests well before the process starts
	// to shut down.
	ctx := httpext.ContextWithSIGINT(context.Background(), 10*time.Second)

	// Set up the monitoring registry and database connection.
	registry := monitoring.NewRegistry(config.MonitoringConfig)
	dbMonitor := db.NewDBMonitor(registry)
	database := db.NewPostgresDB(ctx, config.DBConfig, registry, dbMonitor)
	defer database.Close()
	go database.CheckLivenessPeriodically(ctx)
	go runMonitoringServer(ctx, registry, config.MonitoringConfig)

	mqttClient := mqtt.NewClient(config.MQTTConfig)
	defer mqttClient.Disconnect()

	store := jobs.NewStore(database, mqttClient)
	store.Init(ctx)

	dispatcher := must.Return(dispatch.NewGitHubDispatcher(ctx, config.SyncConfig.Dispatch))
	pipeline := sync.NewPipeline(
		config.SyncConfig,
		source.NewDefaultRegistry(),
		store,
		dispatcher,
		sync.NewPipelineMonitor(registry),
	)

	syncAPI := api.NewAPI(
		config.APIConfig, pipeline, store, api.NewAPIMonitor(registry),
	)
	syncAPI.Init(ctx)
}
