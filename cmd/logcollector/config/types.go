// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the resolved configuration schema, its
// defaults, YAML loading and LOG_COLLECTOR_* environment overrides.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config is the full resolved configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Collectors CollectorsConfig `yaml:"collectors"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Host           string `yaml:"host" validate:"required"`
	Port           int    `yaml:"port" validate:"min=1,max=65535"`
	CORSEnabled    bool   `yaml:"cors_enabled"`
	AuthToken      string `yaml:"auth_token"`
	RequestTimeout int    `yaml:"request_timeout" validate:"min=1"`
	MaxConnections int    `yaml:"max_connections" validate:"min=1"`
}

type StorageConfig struct {
	DBPath            string  `yaml:"db_path" validate:"required"`
	MaxSizeMB         int     `yaml:"max_size_mb" validate:"min=1"`
	MaxDays           int     `yaml:"max_days" validate:"min=1"`
	EnableCompression bool    `yaml:"enable_compression"`
	BatchSize         int     `yaml:"batch_size" validate:"min=1"`
	BatchTimeout      float64 `yaml:"batch_timeout" validate:"gt=0"`
	VacuumInterval    int     `yaml:"vacuum_interval" validate:"min=1"`
}

type CollectorsConfig struct {
	Console        ConsoleConfig        `yaml:"console"`
	HTTPTraffic    HTTPTrafficConfig    `yaml:"http_traffic"`
	FileWatcher    FileWatcherConfig    `yaml:"file_watcher"`
	ProcessMonitor ProcessMonitorConfig `yaml:"process_monitor"`
	Database       DatabaseConfig       `yaml:"database"`

	// CheckpointDir persists tail offsets and process baselines across
	// restarts. Empty disables checkpointing.
	CheckpointDir string `yaml:"checkpoint_dir"`
}

type ConsoleConfig struct {
	Enabled  bool       `yaml:"enabled"`
	Commands [][]string `yaml:"commands"`
	Restart  bool       `yaml:"restart"`
}

type HTTPTrafficConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Ports           []int    `yaml:"ports"`
	ProxyPortOffset int      `yaml:"proxy_port_offset"`
	CaptureBody     bool     `yaml:"capture_body"`
	MaxBodySize     int      `yaml:"max_body_size"`
	IgnorePaths     []string `yaml:"ignore_paths"`
}

type FileWatcherConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Directories       []string `yaml:"directories"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	IncludeExtensions []string `yaml:"include_extensions"`
}

type ProcessMonitorConfig struct {
	Enabled       bool `yaml:"enabled"`
	CheckInterval int  `yaml:"check_interval"`
}

type DatabaseConfig struct {
	Enabled bool `yaml:"enabled"`

	// LogFiles maps a database log path to its vendor ("postgresql" or
	// "mysql").
	LogFiles map[string]string `yaml:"log_files"`

	SlowQueryThresholdMS float64 `yaml:"slow_query_threshold_ms"`
}

type AlertsConfig struct {
	ErrorSpikeThreshold    int      `yaml:"error_spike_threshold" validate:"min=1"`
	ErrorSpikeWindow       int      `yaml:"error_spike_window" validate:"min=1"`
	SlowResponseMultiplier float64  `yaml:"slow_response_multiplier" validate:"gt=0"`
	Channels               []string `yaml:"channels" validate:"dive,oneof=console webhook slack"`
	WebhookURL             string   `yaml:"webhook_url" validate:"omitempty,url"`
	SlackToken             string   `yaml:"slack_token"`
	SlackChannel           string   `yaml:"slack_channel"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	LogDir string `yaml:"log_dir"`
}

// DefaultConfig returns the documented defaults: a local daemon on
// 0.0.0.0:8888 storing a week of logs in ./logs/dev_logs.db with only
// the console alert channel.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8888,
			CORSEnabled:    true,
			RequestTimeout: 30,
			MaxConnections: 1000,
		},
		Storage: StorageConfig{
			DBPath:            "./logs/dev_logs.db",
			MaxSizeMB:         500,
			MaxDays:           7,
			EnableCompression: true,
			BatchSize:         100,
			BatchTimeout:      1.0,
			VacuumInterval:    3600,
		},
		Collectors: CollectorsConfig{
			Console: ConsoleConfig{Enabled: true},
			HTTPTraffic: HTTPTrafficConfig{
				ProxyPortOffset: 1000,
				MaxBodySize:     4096,
				IgnorePaths:     []string{"/health", "/metrics", "/favicon.ico"},
			},
			FileWatcher: FileWatcherConfig{
				IgnorePatterns:    []string{".git", "node_modules", "*.tmp", "*.swp"},
				IncludeExtensions: []string{".log", ".txt"},
			},
			ProcessMonitor: ProcessMonitorConfig{CheckInterval: 5},
			Database: DatabaseConfig{
				SlowQueryThresholdMS: 100,
			},
			CheckpointDir: "./.log_collector/checkpoints",
		},
		Alerts: AlertsConfig{
			ErrorSpikeThreshold:    10,
			ErrorSpikeWindow:       60,
			SlowResponseMultiplier: 3.0,
			Channels:               []string{"console"},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate checks cross-field sanity on top of the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, port := range c.Collectors.HTTPTraffic.Ports {
		if port < 1 || port > 65535 {
			return fmt.Errorf("config: http_traffic port %d out of range", port)
		}
		proxy := port + c.Collectors.HTTPTraffic.ProxyPortOffset
		if proxy < 1 || proxy > 65535 {
			return fmt.Errorf("config: proxy port %d for upstream %d out of range", proxy, port)
		}
	}
	for _, vendor := range c.Collectors.Database.LogFiles {
		if vendor != "postgresql" && vendor != "mysql" {
			return fmt.Errorf("config: unsupported database vendor %q", vendor)
		}
	}
	return nil
}
