// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collectors

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

func newDBCollector(t *testing.T, files map[string]string) (*DBQueryCollector, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	c := NewDBQueryCollector(DBQueryConfig{
		LogFiles:             files,
		SlowQueryThresholdMS: 100,
	}, sender, nil, nil)
	return c, sender
}

func TestDBQuery_ParseLine_Postgres(t *testing.T) {
	c, sender := newDBCollector(t, nil)

	c.parseLine("2026-08-24 10:00:00 LOG:  duration: 12.345 ms  statement: SELECT * FROM users", "postgresql")
	c.emitter.Flush()

	entries := sender.entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "db_query", e.Source)
	assert.Equal(t, datatypes.LevelInfo, e.Level)
	assert.Equal(t, "SELECT * FROM users", e.Message)
	assert.Equal(t, 12.345, e.Metadata["duration_ms"])
	assert.Equal(t, false, e.Metadata["slow_query"])
	assert.Contains(t, e.Tags, "database")
	assert.Contains(t, e.Tags, "postgresql")
}

func TestDBQuery_ParseLine_PostgresSlow(t *testing.T) {
	c, sender := newDBCollector(t, nil)

	c.parseLine("LOG:  duration: 250.0 ms  statement: UPDATE orders SET state = 'paid'", "postgresql")
	c.emitter.Flush()

	entries := sender.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, datatypes.LevelWarn, entries[0].Level)
	assert.Equal(t, true, entries[0].Metadata["slow_query"])
}

func TestDBQuery_ParseLine_MySQLQueryTime(t *testing.T) {
	c, sender := newDBCollector(t, nil)

	// MySQL slow log records seconds.
	c.parseLine("# Query_time: 0.350  Lock_time: 0.000 Rows_sent: 1", "mysql")
	c.emitter.Flush()

	entries := sender.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, datatypes.LevelWarn, entries[0].Level)
	assert.InDelta(t, 350.0, entries[0].Metadata["duration_ms"].(float64), 0.001)
	assert.Equal(t, "mysql", entries[0].Metadata["db_type"])
}

func TestDBQuery_ParseLine_NonMatchingIgnored(t *testing.T) {
	c, sender := newDBCollector(t, nil)

	c.parseLine("LOG:  connection received: host=[local]", "postgresql")
	c.parseLine("", "postgresql")
	c.parseLine("# Time: 2026-08-24T10:00:00", "mysql")
	c.emitter.Flush()

	assert.Empty(t, sender.entries())
}

func TestDBQuery_ParseLine_TruncatesLongQueries(t *testing.T) {
	c, sender := newDBCollector(t, nil)

	long := "SELECT " + strings.Repeat("col, ", 200) + "1"
	c.parseLine("duration: 5.0 ms  statement: "+long, "postgresql")
	c.emitter.Flush()

	entries := sender.entries()
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Metadata["query"], maxQueryLength)
}

func TestDBQuery_TailPicksUpAppendedLines(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "postgresql.log")
	require.NoError(t, os.WriteFile(file, []byte("old line before the daemon\n"), 0o644))

	c, sender := newDBCollector(t, map[string]string{file: "postgresql"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(ctx)
	}()

	// Give the tail a moment to record its end-of-file starting offset,
	// then append a complete line.
	time.Sleep(1500 * time.Millisecond)
	f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("LOG:  duration: 42.0 ms  statement: SELECT 1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool {
		c.emitter.Flush()
		return len(sender.entries()) >= 1
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	<-done

	entries := sender.entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "SELECT 1", entries[0].Message)
}
