// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/drawbridge-dev/drawbridge/internal/conf"
	"github.com/drawbridge-dev/drawbridge/internal/sync/source"
	"github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

// Timeout for one workflow dispatch call.
const requestTimeout = 30 * time.Second

// One provisioning trigger. Constructed per attempt, never persisted.
type Request struct {
	SyncID            string
	Organization      string
	InternalWarehouse string
	LinkType          string
	// Snapshot payload as produced by EncodeSnapshot.
	Payload string
}

// Triggers the external, asynchronously-running provisioning action that
// deploys a worker to load the snapshot into the destination.
//
// Dispatch only confirms the trigger was accepted, not that provisioning
// succeeded; the worker's lifecycle after dispatch is not managed here.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

type githubDispatcher struct {
	client *github.Client
	conf   conf.DispatchConfig
}

// Dispatcher that triggers a GitHub Actions workflow_dispatch event on
// the configured loader repository.
func NewGitHubDispatcher(ctx context.Context, c conf.DispatchConfig) (Dispatcher, error) {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.Token})
	httpClient := oauth2.NewClient(ctx, tokenSource)
	httpClient.Timeout = requestTimeout
	client := github.NewClient(httpClient)
	if c.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(c.BaseURL, c.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid dispatch base url: %w", err)
		}
	}
	return &githubDispatcher{client: client, conf: c}, nil
}

func (d *githubDispatcher) Dispatch(ctx context.Context, req Request) error {
	event := github.CreateWorkflowDispatchEventRequest{
		Ref: d.conf.Ref,
		Inputs: map[string]any{
			"organization":       req.Organization,
			"sync_id":            req.SyncID,
			"internal_warehouse": req.InternalWarehouse,
			"link_type":          req.LinkType,
			"snapshot":           req.Payload,
		},
	}
	_, err := d.client.Actions.CreateWorkflowDispatchEventByFileName(
		ctx, d.conf.Owner, d.conf.Repository, d.conf.WorkflowFile, event,
	)
	if err != nil {
		return fmt.Errorf("workflow dispatch was not accepted: %w", err)
	}
	slog.Info(
		"dispatched provisioning workflow",
		"syncID", req.SyncID,
		"organization", req.Organization,
		"workflow", d.conf.WorkflowFile,
		"ref", d.conf.Ref,
	)
	return nil
}

// Serialize a snapshot for transport in the workflow inputs.
// Workflow inputs are plain strings, so the JSON is gzipped and base64
// encoded to stay within the payload limits.
func EncodeSnapshot(snapshot source.Snapshot) (string, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Inverse of EncodeSnapshot, used by tests and by the loader side.
func DecodeSnapshot(payload string) (source.Snapshot, error) {
	compressed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	var snapshot source.Snapshot
	if err := json.NewDecoder(reader).Decode(&snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}
