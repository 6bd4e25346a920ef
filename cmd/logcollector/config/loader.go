// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where init writes and the other commands look for the
// config file, relative to the project directory.
const DefaultPath = "./.log_collector/config.yaml"

// Load resolves the configuration: defaults, then the YAML file at
// path (when it exists), then LOG_COLLECTOR_* environment overrides,
// then validation. A missing file is not an error; a malformed or
// invalid one is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Run on defaults; init creates the file.
	default:
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Write marshals cfg to path, creating parent directories. Refuses to
// overwrite an existing file unless force is set.
func Write(path string, cfg Config, force bool) error {
	if path == "" {
		path = DefaultPath
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: %s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnv layers the documented LOG_COLLECTOR_* overrides over cfg.
// Values that fail to parse are ignored in favor of the file value.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LOG_COLLECTOR_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LOG_COLLECTOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_COLLECTOR_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("LOG_COLLECTOR_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("LOG_COLLECTOR_MAX_SIZE_MB"); v != "" {
		if mb, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxSizeMB = mb
		}
	}
	if v := os.Getenv("LOG_COLLECTOR_WEBHOOK_URL"); v != "" {
		cfg.Alerts.WebhookURL = v
	}
	if v := os.Getenv("LOG_COLLECTOR_SLACK_TOKEN"); v != "" {
		cfg.Alerts.SlackToken = v
	}
}
