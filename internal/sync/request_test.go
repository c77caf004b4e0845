// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sync

import (
	"errors"
	"testing"
)

func validRequestBody() string {
	return `{
		"organization": "org_1",
		"internal_warehouse": "wh_1",
		"link_type": "ClickHouse",
		"internal_credentials": {
			"host": "h", "username": "u", "password": "p", "database": "d"
		},
		"destination_config": {
			"type": "warehouse",
			"credentials": {"host": "dest", "token": "secret"}
		}
	}`
}

func TestValidateSyncRequest_AppliesDefaults(t *testing.T) {
	request, err := ValidateSyncRequest([]byte(validRequestBody()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if request.DestinationConfig.Options.Mode != ModeStream {
		t.Errorf("expected default mode stream, got %q", request.DestinationConfig.Options.Mode)
	}
	if request.DestinationConfig.Options.BatchSize != DefaultBatchSize {
		t.Errorf("expected default batch size %d, got %d",
			DefaultBatchSize, request.DestinationConfig.Options.BatchSize)
	}
}

func TestValidateSyncRequest_LowercasesLinkType(t *testing.T) {
	request, err := ValidateSyncRequest([]byte(validRequestBody()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if request.LinkType != "clickhouse" {
		t.Errorf("expected link type clickhouse, got %q", request.LinkType)
	}
}

func TestValidateSyncRequest_RejectsUnknownFields(t *testing.T) {
	body := `{
		"organization": "org_1",
		"internal_warehouse": "wh_1",
		"link_type": "clickhouse",
		"internal_credentials": {"host": "h"},
		"destination_config": {
			"type": "warehouse",
			"credentials": {"host": "dest"},
			"extra": true
		},
		"bogus": 1
	}`
	_, err := ValidateSyncRequest([]byte(body))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	found := map[string]bool{}
	for _, issue := range validationErr.Issues {
		found[issue.Field] = true
	}
	if !found["bogus"] {
		t.Error("expected an issue for the unknown top-level field")
	}
	if !found["destination_config.extra"] {
		t.Error("expected an issue for the unknown destination_config field")
	}
}

func TestValidateSyncRequest_CollectsAllIssues(t *testing.T) {
	body := `{
		"organization": "",
		"link_type": "clickhouse",
		"internal_credentials": {},
		"destination_config": {
			"type": "warehouse",
			"credentials": {"host": "dest"},
			"options": {"mode": "trickle", "batchSize": -5}
		}
	}`
	_, err := ValidateSyncRequest([]byte(body))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	expected := []string{
		"organization",
		"internal_warehouse",
		"internal_credentials",
		"destination_config.options.mode",
		"destination_config.options.batchSize",
	}
	found := map[string]bool{}
	for _, issue := range validationErr.Issues {
		found[issue.Field] = true
	}
	for _, field := range expected {
		if !found[field] {
			t.Errorf("expected an issue for field %q, got issues %v", field, validationErr.Issues)
		}
	}
}

func TestValidateSyncRequest_RejectsNonIntegerBatchSize(t *testing.T) {
	body := `{
		"organization": "org_1",
		"internal_warehouse": "wh_1",
		"link_type": "clickhouse",
		"internal_credentials": {"host": "h"},
		"destination_config": {
			"type": "warehouse",
			"credentials": {"host": "dest"},
			"options": {"batchSize": 10.5}
		}
	}`
	_, err := ValidateSyncRequest([]byte(body))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateSyncRequest_AcceptsBatchMode(t *testing.T) {
	body := `{
		"organization": "org_1",
		"internal_warehouse": "wh_1",
		"link_type": "postgres",
		"internal_credentials": {"host": "h"},
		"destination_config": {
			"type": "warehouse",
			"credentials": {"host": "dest"},
			"options": {"mode": "batch", "batchSize": 500}
		}
	}`
	request, err := ValidateSyncRequest([]byte(body))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if request.DestinationConfig.Options.Mode != ModeBatch {
		t.Errorf("expected mode batch, got %q", request.DestinationConfig.Options.Mode)
	}
	if request.DestinationConfig.Options.BatchSize != 500 {
		t.Errorf("expected batch size 500, got %d", request.DestinationConfig.Options.BatchSize)
	}
}

func TestValidateSyncRequest_RejectsNonObjectBody(t *testing.T) {
	_, err := ValidateSyncRequest([]byte(`[1, 2, 3]`))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
