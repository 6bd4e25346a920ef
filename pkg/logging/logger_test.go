// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func todayLogFile(dir, service string) string {
	return filepath.Join(dir, service+"_"+time.Now().Format("2006-01-02")+".log")
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "logd",
		Quiet:   true,
	})

	logger.Info("daemon starting", "port", 8888)
	logger.Debug("verbose detail")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(todayLogFile(dir, "logd"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "daemon starting", record["msg"])
	assert.Equal(t, "logd", record["service"])
	assert.EqualValues(t, 8888, record["port"])
}

func TestNew_LevelFilters(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "logd",
		Quiet:   true,
	})

	logger.Info("filtered out")
	logger.Warn("kept")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(todayLogFile(dir, "logd"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "kept")
	assert.NotContains(t, string(data), "filtered out")
}

func TestWith_AddsAttributes(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		LogDir:  dir,
		Service: "logd",
		Quiet:   true,
	})

	logger.With("collector", "console").Info("child started")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(todayLogFile(dir, "logd"))
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record))
	assert.Equal(t, "console", record["collector"])
}

func TestNew_AppendsAcrossLoggers(t *testing.T) {
	dir := t.TempDir()
	for _, msg := range []string{"first run", "second run"} {
		logger := New(Config{LogDir: dir, Service: "logd", Quiet: true})
		logger.Info(msg)
		require.NoError(t, logger.Close())
	}

	data, err := os.ReadFile(todayLogFile(dir, "logd"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "first run")
	assert.Contains(t, string(data), "second run")
}

func TestClose_Idempotent(t *testing.T) {
	logger := New(Config{Quiet: true})
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestSlog_ReturnsUnderlying(t *testing.T) {
	require.NotNil(t, Default().Slog())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".log_collector"), expandPath("~/.log_collector"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.Equal(t, "relative", expandPath("relative"))
}
