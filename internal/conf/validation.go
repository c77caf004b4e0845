// Copyright 2025 The Drawbridge Authors
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"fmt"
	"strings"
)

// Check if the loaded configuration is complete enough to run the service.
func (c *Config) Validate() error {
	d := c.SyncConfig.Dispatch
	if d.Owner == "" || d.Repository == "" {
		return fmt.Errorf("dispatch owner/repository must be set")
	}
	if d.WorkflowFile == "" {
		return fmt.Errorf("dispatch workflow file must be set")
	}
	if d.Token == "" {
		return fmt.Errorf("dispatch token must be set")
	}
	if d.BaseURL != "" && !strings.HasSuffix(d.BaseURL, "/") {
		return fmt.Errorf("dispatch base url %s should end with a slash", d.BaseURL)
	}
	if d.Attempts < 1 {
		return fmt.Errorf("dispatch attempts must be at least 1, got %d", d.Attempts)
	}
	if c.SyncConfig.MaxParallelTables < 1 {
		return fmt.Errorf(
			"maxParallelTables must be at least 1, got %d",
			c.SyncConfig.MaxParallelTables,
		)
	}
	if c.SyncConfig.RequestTimeoutSeconds < 1 {
		return fmt.Errorf(
			"requestTimeoutSeconds must be at least 1, got %d",
			c.SyncConfig.RequestTimeoutSeconds,
		)
	}
	return nil
}
