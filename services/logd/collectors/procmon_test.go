// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recursivelog/logcollector/services/logd/checkpoint"
	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

func TestProcessMonitor_EmitEventShape(t *testing.T) {
	sender := &fakeSender{}
	c := NewProcessMonitorCollector(ProcessMonitorConfig{}, sender, nil, nil)

	c.emitEvent("high_cpu", 4242, procSnapshot{Name: "stress", CPUPct: 93.5, RSS: 1 << 20},
		datatypes.LevelWarn, map[string]any{"previous_cpu_pct": 12.0})
	c.emitter.Flush()

	entries := sender.entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "process_monitor", e.Source)
	assert.Equal(t, datatypes.LevelWarn, e.Level)
	assert.Equal(t, "high_cpu: stress (pid 4242)", e.Message)
	assert.Equal(t, "high_cpu", e.Metadata["event"])
	assert.Equal(t, int32(4242), e.Metadata["pid"])
	assert.Equal(t, 12.0, e.Metadata["previous_cpu_pct"])
	assert.Contains(t, e.Tags, "process")
	assert.Contains(t, e.Tags, "high_cpu")
}

func TestProcessMonitor_BaselineRoundTrip(t *testing.T) {
	checkpoints, err := checkpoint.Open(checkpoint.Config{InMemory: true, GCInterval: -1})
	require.NoError(t, err)
	defer checkpoints.Close()

	sender := &fakeSender{}
	c := NewProcessMonitorCollector(ProcessMonitorConfig{}, sender, checkpoints, nil)
	c.known = map[int32]procSnapshot{
		100: {Name: "serverd", CPUPct: 5.5, RSS: 2048},
		200: {Name: "workerd", CPUPct: 60.0, RSS: 4096},
	}
	c.saveBaseline()

	restored := NewProcessMonitorCollector(ProcessMonitorConfig{}, sender, checkpoints, nil)
	require.True(t, restored.loadBaseline())
	assert.Equal(t, c.known, restored.known)
}

func TestProcessMonitor_NoBaselineWithoutCheckpoints(t *testing.T) {
	c := NewProcessMonitorCollector(ProcessMonitorConfig{}, &fakeSender{}, nil, nil)
	assert.False(t, c.loadBaseline())
	c.saveBaseline()
}

func TestProcessMonitor_FirstPollSeedsWithoutEvents(t *testing.T) {
	sender := &fakeSender{}
	c := NewProcessMonitorCollector(ProcessMonitorConfig{}, sender, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.poll(ctx, false))
	c.emitter.Flush()

	assert.Empty(t, sender.entries(), "seed poll must not emit")
	assert.NotEmpty(t, c.known, "seed poll should snapshot the process table")
}
