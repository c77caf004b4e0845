// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/drawbridge-dev/drawbridge/internal/conf"
	"github.com/drawbridge-dev/drawbridge/internal/sync"
	"github.com/drawbridge-dev/drawbridge/internal/sync/jobs"
	"github.com/drawbridge-dev/drawbridge/internal/sync/source"
)

type mockPipeline struct {
	jobID string
	err   error
}

func (m *mockPipeline) Run(ctx context.Context, rawRequest []byte) (string, error) {
	return m.jobID, m.err
}

type mockStore struct {
	jobs    map[string]*jobs.SyncJob
	listErr error
}

func (m *mockStore) Init(ctx context.Context) {}

func (m *mockStore) Create(ctx context.Context, job *jobs.SyncJob) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockStore) UpdateStatus(ctx context.Context, id, status string) error {
	return errors.New("not implemented")
}

func (m *mockStore) GetByID(ctx context.Context, id string) (*jobs.SyncJob, error) {
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, jobs.ErrNotFound
}

func (m *mockStore) ListByOrganization(ctx context.Context, organization string) ([]jobs.SyncJob, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []jobs.SyncJob
	for _, job := range m.jobs {
		if job.Organization == organization {
			result = append(result, *job)
		}
	}
	return result, nil
}

func newTestAPI(pipeline sync.Pipeline, store jobs.Store) http.Handler {
	return NewAPI(conf.APIConfig{Port: 8080}, pipeline, store, Monitor{}).Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	var payload map[string]any
	if err := json.NewDecoder(recorder.Body).Decode(&payload); err != nil {
		t.Fatalf("expected a json response, got %q", recorder.Body.String())
	}
	return recorder, payload
}

func TestUp(t *testing.T) {
	handler := newTestAPI(&mockPipeline{}, &mockStore{})
	recorder, payload := doRequest(t, handler, http.MethodGet, "/up", "")
	if recorder.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", recorder.Code)
	}
	if payload["status"] != "ok" {
		t.Errorf("expected status ok, got %v", payload)
	}
}

func TestCreateSync(t *testing.T) {
	handler := newTestAPI(&mockPipeline{jobID: "job-1"}, &mockStore{})
	recorder, payload := doRequest(t, handler, http.MethodPost, "/api/syncs", "{}")
	if recorder.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", recorder.Code)
	}
	if payload["success"] != true {
		t.Errorf("expected success true, got %v", payload)
	}
	if payload["syncId"] != "job-1" {
		t.Errorf("expected syncId job-1, got %v", payload["syncId"])
	}
	if payload["message"] == "" {
		t.Error("expected a message")
	}
}

func TestCreateSyncValidationError(t *testing.T) {
	pipeline := &mockPipeline{err: &sync.ValidationError{Issues: []sync.FieldIssue{
		{Field: "organization", Message: "is required"},
	}}}
	handler := newTestAPI(pipeline, &mockStore{})
	recorder, payload := doRequest(t, handler, http.MethodPost, "/api/syncs", "{}")
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", recorder.Code)
	}
	if payload["success"] != false {
		t.Errorf("expected success false, got %v", payload)
	}
	if payload["error"] != "Validation failed" {
		t.Errorf("expected validation error message, got %v", payload["error"])
	}
	details, ok := payload["details"].([]any)
	if !ok || len(details) != 1 {
		t.Fatalf("expected one issue in details, got %v", payload["details"])
	}
}

func TestCreateSyncPersistenceError(t *testing.T) {
	pipeline := &mockPipeline{err: &sync.PersistenceError{Err: errors.New("connection reset")}}
	handler := newTestAPI(pipeline, &mockStore{})
	recorder, payload := doRequest(t, handler, http.MethodPost, "/api/syncs", "{}")
	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", recorder.Code)
	}
	if payload["error"] != "Database error" {
		t.Errorf("expected database error message, got %v", payload["error"])
	}
	if payload["details"] != "connection reset" {
		t.Errorf("expected the underlying error in details, got %v", payload["details"])
	}
}

func TestCreateSyncDispatchError(t *testing.T) {
	pipeline := &mockPipeline{
		jobID: "job-1",
		err:   &sync.DispatchError{JobID: "job-1", Err: errors.New("workflow not found")},
	}
	handler := newTestAPI(pipeline, &mockStore{})
	recorder, payload := doRequest(t, handler, http.MethodPost, "/api/syncs", "{}")
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", recorder.Code)
	}
	if payload["success"] != false {
		t.Errorf("expected success false, got %v", payload)
	}
	// The job record exists, so the id is reported for reconciliation.
	if payload["syncId"] != "job-1" {
		t.Errorf("expected syncId job-1, got %v", payload["syncId"])
	}
}

func TestCreateSyncExtractionError(t *testing.T) {
	for name, err := range map[string]error{
		"credential shape": &source.CredentialShapeError{LinkType: "clickhouse", Missing: []string{"host"}},
		"connection":       &source.ConnectionError{LinkType: "clickhouse", Err: errors.New("refused")},
		"query":            &source.QueryError{LinkType: "clickhouse", Table: "events", Err: errors.New("denied")},
		"unknown link":     &sync.UnknownLinkTypeError{LinkType: "snowflake"},
	} {
		handler := newTestAPI(&mockPipeline{err: err}, &mockStore{})
		recorder, payload := doRequest(t, handler, http.MethodPost, "/api/syncs", "{}")
		if recorder.Code != http.StatusInternalServerError {
			t.Errorf("%s: expected status 500, got %d", name, recorder.Code)
		}
		// No job record exists for extraction failures.
		if payload["syncId"] != nil {
			t.Errorf("%s: expected syncId null, got %v", name, payload["syncId"])
		}
	}
}

func TestListSyncs(t *testing.T) {
	store := &mockStore{jobs: map[string]*jobs.SyncJob{
		"job-1": {ID: "job-1", Organization: "org_1", Status: jobs.StatusActive, CreatedAt: time.Now()},
		"job-2": {ID: "job-2", Organization: "org_2", Status: jobs.StatusActive, CreatedAt: time.Now()},
	}}
	handler := newTestAPI(&mockPipeline{}, store)
	recorder, payload := doRequest(t, handler, http.MethodGet, "/api/syncs?organization=org_1", "")
	if recorder.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", recorder.Code)
	}
	syncs, ok := payload["syncs"].([]any)
	if !ok || len(syncs) != 1 {
		t.Fatalf("expected one sync for org_1, got %v", payload["syncs"])
	}
}

func TestListSyncsRequiresOrganization(t *testing.T) {
	handler := newTestAPI(&mockPipeline{}, &mockStore{})
	recorder, _ := doRequest(t, handler, http.MethodGet, "/api/syncs", "")
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", recorder.Code)
	}
}

func TestSyncByID(t *testing.T) {
	store := &mockStore{jobs: map[string]*jobs.SyncJob{
		"job-1": {
			ID: "job-1", Organization: "org_1",
			InternalCredentials: `{"host":"h"}`,
			Status:              jobs.StatusActive,
		},
	}}
	handler := newTestAPI(&mockPipeline{}, store)
	recorder, payload := doRequest(t, handler, http.MethodGet, "/api/syncs/job-1", "")
	if recorder.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", recorder.Code)
	}
	job, ok := payload["sync"].(map[string]any)
	if !ok || job["id"] != "job-1" {
		t.Fatalf("expected the job in the response, got %v", payload["sync"])
	}
	// Source credentials never leave the service.
	if _, ok := job["internalCredentials"]; ok {
		t.Error("expected credentials to be omitted from the response")
	}
}

func TestSyncByIDNotFound(t *testing.T) {
	handler := newTestAPI(&mockPipeline{}, &mockStore{})
	recorder, _ := doRequest(t, handler, http.MethodGet, "/api/syncs/missing", "")
	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", recorder.Code)
	}
}

func TestSyncsMethodNotAllowed(t *testing.T) {
	handler := newTestAPI(&mockPipeline{}, &mockStore{})
	recorder, _ := doRequest(t, handler, http.MethodDelete, "/api/syncs", "")
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", recorder.Code)
	}
}
