// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sync

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const (
	// Snapshot rows are pushed to the destination as they arrive.
	ModeStream = "stream"
	// Snapshot rows are loaded in fixed-size batches.
	ModeBatch = "batch"

	// Batch size applied when the caller does not specify one.
	DefaultBatchSize = 10000
)

// Loading options for the destination side.
type DestinationOptions struct {
	Mode      string `json:"mode"`
	BatchSize int    `json:"batchSize"`
}

// Caller-supplied description of where the snapshot should be loaded.
type DestinationConfig struct {
	Type        string             `json:"type"`
	Credentials map[string]string  `json:"credentials"`
	Options     DestinationOptions `json:"options"`
}

// One validated, normalized request to replicate a source warehouse.
// The link type is lowercased and destination options carry defaults.
type SyncRequest struct {
	Organization        string            `json:"organization"`
	InternalWarehouse   string            `json:"internal_warehouse"`
	LinkType            string            `json:"link_type"`
	InternalCredentials map[string]string `json:"internal_credentials"`
	DestinationConfig   DestinationConfig `json:"destination_config"`
}

var recognizedRequestFields = map[string]bool{
	"organization":         true,
	"internal_warehouse":   true,
	"link_type":            true,
	"internal_credentials": true,
	"destination_config":   true,
}

var recognizedDestinationFields = map[string]bool{
	"type":        true,
	"credentials": true,
	"options":     true,
}

var recognizedOptionFields = map[string]bool{
	"mode":      true,
	"batchSize": true,
}

// Parse and validate a raw sync request body.
//
// The schema is closed: fields outside the recognized set are rejected,
// both at the top level and inside destination_config. All violations are
// collected into one ValidationError instead of failing on the first.
func ValidateSyncRequest(raw []byte) (*SyncRequest, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &ValidationError{Issues: []FieldIssue{
			{Field: "(body)", Message: "request body is not a JSON object"},
		}}
	}

	collector := &issueCollector{}

	for field := range body {
		if !recognizedRequestFields[field] {
			collector.add(field, "unrecognized field")
		}
	}

	request := &SyncRequest{}
	request.Organization = requireString(collector, body, "", "organization")
	request.InternalWarehouse = requireString(collector, body, "", "internal_warehouse")
	request.LinkType = strings.ToLower(requireString(collector, body, "", "link_type"))
	request.InternalCredentials = requireStringMap(collector, body, "", "internal_credentials")

	rawDest, ok := body["destination_config"]
	if !ok {
		collector.add("destination_config", "required field is missing")
	} else {
		request.DestinationConfig = validateDestinationConfig(collector, rawDest)
	}

	if len(collector.issues) > 0 {
		return nil, &ValidationError{Issues: collector.issues}
	}
	return request, nil
}

type issueCollector struct {
	issues []FieldIssue
}

func (c *issueCollector) add(field, message string) {
	c.issues = append(c.issues, FieldIssue{Field: field, Message: message})
}

// Join a field path with an optional prefix for nested objects.
func fieldPath(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

func requireString(c *issueCollector, body map[string]any, prefix, field string) string {
	path := fieldPath(prefix, field)
	raw, ok := body[field]
	if !ok {
		c.add(path, "required field is missing")
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		c.add(path, "must be a string")
		return ""
	}
	if value == "" {
		c.add(path, "must not be empty")
	}
	return value
}

func requireStringMap(c *issueCollector, body map[string]any, prefix, field string) map[string]string {
	path := fieldPath(prefix, field)
	raw, ok := body[field]
	if !ok {
		c.add(path, "required field is missing")
		return nil
	}
	rawMap, ok := raw.(map[string]any)
	if !ok {
		c.add(path, "must be an object")
		return nil
	}
	if len(rawMap) == 0 {
		c.add(path, "must not be empty")
		return nil
	}
	result := make(map[string]string, len(rawMap))
	for key, rawValue := range rawMap {
		value, ok := rawValue.(string)
		if !ok {
			c.add(fmt.Sprintf("%s.%s", path, key), "must be a string")
			continue
		}
		result[key] = value
	}
	return result
}

func validateDestinationConfig(c *issueCollector, raw any) DestinationConfig {
	config := DestinationConfig{
		Options: DestinationOptions{Mode: ModeStream, BatchSize: DefaultBatchSize},
	}
	dest, ok := raw.(map[string]any)
	if !ok {
		c.add("destination_config", "must be an object")
		return config
	}
	for field := range dest {
		if !recognizedDestinationFields[field] {
			c.add("destination_config."+field, "unrecognized field")
		}
	}
	config.Type = requireString(c, dest, "destination_config", "type")
	config.Credentials = requireStringMap(c, dest, "destination_config", "credentials")

	rawOpts, ok := dest["options"]
	if !ok {
		// Options are optional; defaults already applied.
		return config
	}
	opts, ok := rawOpts.(map[string]any)
	if !ok {
		c.add("destination_config.options", "must be an object")
		return config
	}
	for field := range opts {
		if !recognizedOptionFields[field] {
			c.add("destination_config.options."+field, "unrecognized field")
		}
	}
	if rawMode, ok := opts["mode"]; ok {
		mode, isString := rawMode.(string)
		if !isString || (mode != ModeStream && mode != ModeBatch) {
			c.add("destination_config.options.mode", `must be "stream" or "batch"`)
		} else {
			config.Options.Mode = mode
		}
	}
	if rawSize, ok := opts["batchSize"]; ok {
		size, isNumber := rawSize.(float64)
		if !isNumber || size != math.Trunc(size) || size <= 0 {
			c.add("destination_config.options.batchSize", "must be a positive integer")
		} else {
			config.Options.BatchSize = int(size)
		}
	}
	return config
}
