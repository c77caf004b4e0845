// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/drawbridge-dev/drawbridge/internal/conf"
	"github.com/drawbridge-dev/drawbridge/internal/sync/source"
)

func TestGitHubDispatcher(t *testing.T) {
	var gotPath string
	var gotEvent struct {
		Ref    string         `json:"ref"`
		Inputs map[string]any `json:"inputs"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotEvent); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	dispatcher, err := NewGitHubDispatcher(t.Context(), conf.DispatchConfig{
		Owner:        "drawbridge-dev",
		Repository:   "loader",
		WorkflowFile: "provision.yml",
		Ref:          "main",
		Token:        "token",
		BaseURL:      server.URL + "/",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	err = dispatcher.Dispatch(t.Context(), Request{
		SyncID:            "job-1",
		Organization:      "org_1",
		InternalWarehouse: "wh_1",
		LinkType:          "clickhouse",
		Payload:           "payload",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expectedPath := "/api/v3/repos/drawbridge-dev/loader/actions/workflows/provision.yml/dispatches"
	if gotPath != expectedPath {
		t.Errorf("expected path %s, got %s", expectedPath, gotPath)
	}
	if gotEvent.Ref != "main" {
		t.Errorf("expected ref main, got %q", gotEvent.Ref)
	}
	for key, expected := range map[string]string{
		"organization":       "org_1",
		"sync_id":            "job-1",
		"internal_warehouse": "wh_1",
		"link_type":          "clickhouse",
		"snapshot":           "payload",
	} {
		if gotEvent.Inputs[key] != expected {
			t.Errorf("expected input %s=%q, got %v", key, expected, gotEvent.Inputs[key])
		}
	}
}

func TestGitHubDispatcherErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	dispatcher, err := NewGitHubDispatcher(t.Context(), conf.DispatchConfig{
		Owner:        "drawbridge-dev",
		Repository:   "loader",
		WorkflowFile: "provision.yml",
		Ref:          "main",
		Token:        "token",
		BaseURL:      server.URL + "/",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := dispatcher.Dispatch(t.Context(), Request{SyncID: "job-1"}); err == nil {
		t.Fatal("expected an error for a rejected dispatch")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snapshot := source.Snapshot{
		"events": {
			{"id": source.Value{Type: "Int64", Value: float64(1)}},
		},
		"users": {},
	}
	payload, err := EncodeSnapshot(snapshot)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	decoded, err := DecodeSnapshot(payload)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected two tables, got %v", decoded)
	}
	if decoded["users"] == nil || len(decoded["users"]) != 0 {
		t.Errorf("expected an empty list for users, got %v", decoded["users"])
	}
	if decoded["events"][0]["id"].Type != "Int64" {
		t.Errorf("expected column type Int64, got %q", decoded["events"][0]["id"].Type)
	}
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	if _, err := DecodeSnapshot("not base64!"); err == nil {
		t.Error("expected an error for invalid base64")
	}
	if _, err := DecodeSnapshot("aGVsbG8="); err == nil {
		t.Error("expected an error for non-gzip payload")
	}
}
