// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadProxyPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Collectors.HTTPTraffic.Ports = []int{65000}
	cfg.Collectors.HTTPTraffic.ProxyPortOffset = 1000
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownDBVendor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Collectors.Database.LogFiles = map[string]string{"/var/log/db.log": "oracle"}
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownAlertChannel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alerts.Channels = []string{"pager"}
	require.Error(t, cfg.Validate())
}

func TestForProject_Presets(t *testing.T) {
	cases := []struct {
		projectType string
		check       func(t *testing.T, cfg Config)
	}{
		{"webapp", func(t *testing.T, cfg Config) {
			assert.True(t, cfg.Collectors.HTTPTraffic.Enabled)
			assert.Equal(t, []int{3000}, cfg.Collectors.HTTPTraffic.Ports)
			assert.True(t, cfg.Collectors.FileWatcher.Enabled)
		}},
		{"api", func(t *testing.T, cfg Config) {
			assert.Equal(t, []int{8000}, cfg.Collectors.HTTPTraffic.Ports)
			assert.True(t, cfg.Collectors.HTTPTraffic.CaptureBody)
			assert.True(t, cfg.Collectors.Database.Enabled)
		}},
		{"microservice", func(t *testing.T, cfg Config) {
			assert.Equal(t, []int{8080}, cfg.Collectors.HTTPTraffic.Ports)
			assert.True(t, cfg.Collectors.ProcessMonitor.Enabled)
		}},
		{"desktop", func(t *testing.T, cfg Config) {
			assert.False(t, cfg.Collectors.HTTPTraffic.Enabled)
			assert.True(t, cfg.Collectors.ProcessMonitor.Enabled)
			assert.True(t, cfg.Collectors.FileWatcher.Enabled)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.projectType, func(t *testing.T) {
			cfg, err := ForProject(tc.projectType, "myproj")
			require.NoError(t, err)
			assert.Equal(t, "./logs/myproj.db", cfg.Storage.DBPath)
			require.NoError(t, cfg.Validate())
			tc.check(t, cfg)
		})
	}
}

func TestForProject_UnknownType(t *testing.T) {
	_, err := ForProject("mainframe", "")
	require.Error(t, err)
}

func TestForProject_EmptyDefaultsToWebapp(t *testing.T) {
	cfg, err := ForProject("", "")
	require.NoError(t, err)
	assert.True(t, cfg.Collectors.HTTPTraffic.Enabled)
	assert.Equal(t, "./logs/dev_logs.db", cfg.Storage.DBPath)
}
