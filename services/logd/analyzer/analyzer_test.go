// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

func errorEntry(source string) *datatypes.LogEntry {
	return &datatypes.LogEntry{Source: source, Level: datatypes.LevelError, Message: "boom"}
}

func durationEntry(source string, ms float64) *datatypes.LogEntry {
	return &datatypes.LogEntry{
		Source:   source,
		Level:    datatypes.LevelInfo,
		Metadata: map[string]any{"duration_ms": ms},
	}
}

func TestErrorSpike_FiresAtThreshold(t *testing.T) {
	a := New(Config{ErrorSpikeThreshold: 10, ErrorSpikeWindow: 60 * time.Second})

	for i := 0; i < 9; i++ {
		alerts := a.Observe(errorEntry("svc1"))
		assert.Empty(t, alerts, "no alert before threshold (entry %d)", i+1)
	}

	alerts := a.Observe(errorEntry("svc1"))
	require.Len(t, alerts, 1)
	assert.Equal(t, "error_spike", alerts[0].Type)
	assert.Equal(t, "svc1", alerts[0].Source)
	assert.Equal(t, 10, alerts[0].Count)

	// Every subsequent error keeps alerting while the window is hot.
	alerts = a.Observe(errorEntry("svc1"))
	require.Len(t, alerts, 1)
	assert.Equal(t, 11, alerts[0].Count)
}

func TestErrorSpike_PerSourceIsolation(t *testing.T) {
	a := New(Config{ErrorSpikeThreshold: 3})
	a.Observe(errorEntry("svc1"))
	a.Observe(errorEntry("svc1"))
	alerts := a.Observe(errorEntry("svc2"))
	assert.Empty(t, alerts, "sources must not share windows")
}

func TestErrorSpike_WindowExpiry(t *testing.T) {
	a := New(Config{ErrorSpikeThreshold: 3, ErrorSpikeWindow: 60 * time.Second})
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return current }

	a.Observe(errorEntry("svc1"))
	a.Observe(errorEntry("svc1"))

	// Two minutes later the old errors have aged out.
	current = current.Add(2 * time.Minute)
	alerts := a.Observe(errorEntry("svc1"))
	assert.Empty(t, alerts)
}

func TestErrorSpike_IgnoresNonErrorLevels(t *testing.T) {
	a := New(Config{ErrorSpikeThreshold: 1})
	alerts := a.Observe(&datatypes.LogEntry{Source: "svc1", Level: datatypes.LevelWarn})
	assert.Empty(t, alerts)

	alerts = a.Observe(&datatypes.LogEntry{Source: "svc1", Level: datatypes.LevelFatal})
	require.Len(t, alerts, 1, "FATAL counts as an error")
}

func TestSlowResponse_RequiresWarmWindow(t *testing.T) {
	a := New(Config{SlowResponseMultiplier: 3.0})

	// Nine baseline samples: not enough history yet, even a huge outlier
	// stays silent.
	for i := 0; i < 9; i++ {
		assert.Empty(t, a.Observe(durationEntry("http_traffic", 10)))
	}
	assert.Empty(t, a.Observe(durationEntry("http_traffic", 500)))
}

func TestSlowResponse_FlagsOutlier(t *testing.T) {
	a := New(Config{SlowResponseMultiplier: 3.0})

	for i := 0; i < 10; i++ {
		a.Observe(durationEntry("db_query", 10))
	}

	alerts := a.Observe(durationEntry("db_query", 100))
	require.Len(t, alerts, 1)
	assert.Equal(t, "slow_response", alerts[0].Type)
	assert.Equal(t, "db_query", alerts[0].Source)
	assert.Equal(t, 100.0, alerts[0].Duration)
	assert.InDelta(t, 10.0, alerts[0].Average, 15.0)
}

func TestSlowResponse_WithinMultiplierIsSilent(t *testing.T) {
	a := New(Config{SlowResponseMultiplier: 3.0})
	for i := 0; i < 10; i++ {
		a.Observe(durationEntry("http_traffic", 10))
	}
	assert.Empty(t, a.Observe(durationEntry("http_traffic", 25)))
}

func TestSlowResponse_OnlyTrackedSources(t *testing.T) {
	a := New(Config{SlowResponseMultiplier: 3.0})
	for i := 0; i < 20; i++ {
		a.Observe(durationEntry("console", 10))
	}
	assert.Empty(t, a.Observe(durationEntry("console", 1000)),
		"console durations are not tracked")
}

func TestSlowResponse_WindowIsBounded(t *testing.T) {
	a := New(Config{})
	for i := 0; i < durationWindowSize+50; i++ {
		a.Observe(durationEntry("http_traffic", 10))
	}
	st := a.sources["http_traffic"]
	assert.Len(t, st.durations, durationWindowSize)
	assert.InDelta(t, 10.0*durationWindowSize, st.durSum, 0.001)
}

func TestErrorCounts_Snapshot(t *testing.T) {
	a := New(Config{ErrorSpikeThreshold: 100})
	a.Observe(errorEntry("svc1"))
	a.Observe(errorEntry("svc1"))
	a.Observe(errorEntry("svc2"))

	counts := a.ErrorCounts()
	assert.Equal(t, 2, counts["svc1"])
	assert.Equal(t, 1, counts["svc2"])
}
