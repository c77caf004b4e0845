// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/drawbridge-dev/drawbridge/internal/conf"
	"github.com/drawbridge-dev/drawbridge/internal/sync"
	"github.com/drawbridge-dev/drawbridge/internal/sync/jobs"
	"github.com/drawbridge-dev/drawbridge/internal/sync/source"
	"github.com/sapcc/go-bits/httpext"
)

type API interface {
	// Init the API mux and serve until the context is canceled.
	Init(context.Context)
	// The handler serving all API routes, exposed for tests.
	Handler() http.Handler
}

type api struct {
	config   conf.APIConfig
	pipeline sync.Pipeline
	store    jobs.Store
	monitor  Monitor
}

func NewAPI(
	config conf.APIConfig,
	pipeline sync.Pipeline,
	store jobs.Store,
	monitor Monitor,
) API {
	return &api{
		config:   config,
		pipeline: pipeline,
		store:    store,
		monitor:  monitor,
	}
}

func (api *api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", api.Up)
	mux.HandleFunc("/api/syncs", api.Syncs)
	mux.HandleFunc("/api/syncs/", api.SyncByID)
	return mux
}

// Init the API mux and bind the handlers.
func (api *api) Init(ctx context.Context) {
	slog.Info("api listening on", "port", api.config.Port)
	addr := fmt.Sprintf(":%d", api.config.Port)
	if err := httpext.ListenAndServeContext(ctx, addr, api.Handler()); err != nil {
		panic(err)
	}
}

// Helper to respond to the request with a JSON payload.
// Also adds monitoring for the time it took to handle the request.
type apihelper struct {
	api     *api
	w       http.ResponseWriter
	r       *http.Request
	pattern string
	t       time.Time
}

func (api *api) newHelper(w http.ResponseWriter, r *http.Request, pattern string) apihelper {
	return apihelper{api: api, w: w, r: r, pattern: pattern, t: time.Now()}
}

func (h apihelper) respond(code int, payload any) {
	if h.api.monitor.apiRequestsTimer != nil {
		h.api.monitor.apiRequestsTimer.WithLabelValues(
			h.r.Method,
			h.pattern,
			strconv.Itoa(code),
		).Observe(time.Since(h.t).Seconds())
	}
	h.w.Header().Set("Content-Type", "application/json")
	h.w.WriteHeader(code)
	if err := json.NewEncoder(h.w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Handle the GET request to check if the API is up.
func (api *api) Up(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/up")
	h.respond(http.StatusOK, map[string]any{"status": "ok"})
}

// Handle POST (create) and GET (list) requests on the syncs collection.
func (api *api) Syncs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		api.createSync(w, r)
	case http.MethodGet:
		api.listSyncs(w, r)
	default:
		h := api.newHelper(w, r, "/api/syncs")
		h.respond(http.StatusMethodNotAllowed, map[string]any{
			"success": false,
			"error":   "method not allowed",
		})
	}
}

// Run one sync request through the pipeline and shape the stage outcome
// into the caller-visible response.
//
// The response always distinguishes "nothing was created" from "a job
// exists but dispatch failed": only the latter carries a job id.
func (api *api) createSync(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/api/syncs")

	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respond(http.StatusInternalServerError, map[string]any{
			"success": false,
			"syncId":  nil,
			"error":   "failed to read request body",
		})
		return
	}
	// If configured, log out the complete request body.
	if api.config.LogRequestBodies {
		slog.Info("request body", "body", string(body))
	}

	jobID, err := api.pipeline.Run(r.Context(), body)
	if err == nil {
		h.respond(http.StatusOK, map[string]any{
			"success": true,
			"syncId":  jobID,
			"message": "Sync job created and provisioning dispatched",
		})
		return
	}

	var validationErr *sync.ValidationError
	if errors.As(err, &validationErr) {
		h.respond(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Validation failed",
			"details": validationErr.Issues,
		})
		return
	}
	var persistenceErr *sync.PersistenceError
	if errors.As(err, &persistenceErr) {
		slog.Error("sync job persistence failed", "error", err)
		h.respond(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Database error",
			"details": persistenceErr.Err.Error(),
		})
		return
	}
	var dispatchErr *sync.DispatchError
	if errors.As(err, &dispatchErr) {
		slog.Error("sync job dispatch failed", "jobID", jobID, "error", err)
		h.respond(http.StatusUnprocessableEntity, map[string]any{
			"success": false,
			"syncId":  jobID,
			"error":   "Dispatch error",
			"details": dispatchErr.Err.Error(),
		})
		return
	}
	if isExtractionError(err) {
		slog.Error("sync extraction failed", "error", err)
		h.respond(http.StatusInternalServerError, map[string]any{
			"success": false,
			"syncId":  nil,
			"error":   err.Error(),
		})
		return
	}
	slog.Error("sync request failed", "error", err)
	h.respond(http.StatusInternalServerError, map[string]any{
		"success": false,
		"syncId":  nullableID(jobID),
		"error":   err.Error(),
	})
}

// Introspection and snapshot failures share one response shape.
func isExtractionError(err error) bool {
	var shapeErr *source.CredentialShapeError
	var connectionErr *source.ConnectionError
	var queryErr *source.QueryError
	var linkTypeErr *sync.UnknownLinkTypeError
	return errors.As(err, &shapeErr) ||
		errors.As(err, &connectionErr) ||
		errors.As(err, &queryErr) ||
		errors.As(err, &linkTypeErr)
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

// Handle the GET request listing all sync jobs of one organization.
func (api *api) listSyncs(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/api/syncs")
	organization := r.URL.Query().Get("organization")
	if organization == "" {
		h.respond(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "organization query parameter is required",
		})
		return
	}
	syncs, err := api.store.ListByOrganization(r.Context(), organization)
	if err != nil {
		slog.Error("failed to list sync jobs", "error", err)
		h.respond(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Database error",
		})
		return
	}
	h.respond(http.StatusOK, map[string]any{"success": true, "syncs": syncs})
}

// Handle the GET request for one sync job by id.
func (api *api) SyncByID(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/api/syncs/{id}")
	if r.Method != http.MethodGet {
		h.respond(http.StatusMethodNotAllowed, map[string]any{
			"success": false,
			"error":   "method not allowed",
		})
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/syncs/")
	if id == "" || strings.Contains(id, "/") {
		h.respond(http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "Not found",
		})
		return
	}
	job, err := api.store.GetByID(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		h.respond(http.StatusNotFound, map[string]any{
			"success": false,
			"error":   "Not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get sync job", "id", id, "error", err)
		h.respond(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Database error",
		})
		return
	}
	h.respond(http.StatusOK, map[string]any{"success": true, "sync": job})
}
