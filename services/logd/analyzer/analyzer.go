// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer computes online anomaly signals on the ingest path.
//
// Two signals are kept per source, both over bounded sliding windows:
//
//   - error spike: a time-bounded window of recent ERROR/FATAL
//     timestamps; crossing the threshold within the window emits an
//     error_spike alert
//   - slow response: a count-bounded window of duration_ms samples for
//     the http_traffic and db_query sources; a sample far above the
//     running mean emits a slow_response alert
//
// State is purely in-memory. The analyzer runs synchronously on ingest
// and returns the alerts for the entry so the server can attach them to
// the streamed frame.
package analyzer

import (
	"sync"
	"time"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// Config holds the alert thresholds. Zero values fall back to defaults.
type Config struct {
	// ErrorSpikeThreshold is the error count that triggers a spike
	// alert within the window. Default 10.
	ErrorSpikeThreshold int

	// ErrorSpikeWindow is the sliding window for error timestamps.
	// Default 60s.
	ErrorSpikeWindow time.Duration

	// SlowResponseMultiplier flags samples above multiplier × mean.
	// Default 3.0.
	SlowResponseMultiplier float64
}

func (c *Config) applyDefaults() {
	if c.ErrorSpikeThreshold <= 0 {
		c.ErrorSpikeThreshold = 10
	}
	if c.ErrorSpikeWindow <= 0 {
		c.ErrorSpikeWindow = 60 * time.Second
	}
	if c.SlowResponseMultiplier <= 0 {
		c.SlowResponseMultiplier = 3.0
	}
}

// durationWindowSize bounds the per-source duration window.
const durationWindowSize = 100

// minDurationSamples is required before slow-response alerts fire; the
// mean is meaningless on a near-empty window.
const minDurationSamples = 10

// durationSources are the sources whose duration_ms metadata is tracked.
var durationSources = map[string]bool{
	"http_traffic": true,
	"db_query":     true,
}

// sourceState is the per-source sliding-window state.
type sourceState struct {
	errorTimes []time.Time
	durations  []float64
	durSum     float64
}

// Analyzer keeps the per-source windows. Safe for concurrent use; the
// single mutex is held only for the O(window) updates.
type Analyzer struct {
	cfg Config

	mu      sync.Mutex
	sources map[string]*sourceState

	// now is swappable for tests.
	now func() time.Time
}

// New creates an analyzer with the given thresholds.
func New(cfg Config) *Analyzer {
	cfg.applyDefaults()
	return &Analyzer{
		cfg:     cfg,
		sources: make(map[string]*sourceState),
		now:     time.Now,
	}
}

// Observe feeds one entry through both signals and returns any alerts
// it triggered. The returned slice is nil when nothing fired.
func (a *Analyzer) Observe(e *datatypes.LogEntry) []datatypes.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.sources[e.Source]
	if st == nil {
		st = &sourceState{}
		a.sources[e.Source] = st
	}

	var alerts []datatypes.Alert
	now := a.now()

	if datatypes.IsErrorLevel(e.Level) {
		st.errorTimes = append(st.errorTimes, now)
		st.trimErrors(now.Add(-a.cfg.ErrorSpikeWindow))
		if len(st.errorTimes) >= a.cfg.ErrorSpikeThreshold {
			alerts = append(alerts, datatypes.Alert{
				Type:   "error_spike",
				Source: e.Source,
				Count:  len(st.errorTimes),
			})
		}
	}

	if durationSources[e.Source] {
		if d, ok := e.DurationMS(); ok {
			if len(st.durations) >= minDurationSamples {
				mean := st.durSum / float64(len(st.durations))
				if mean > 0 && d > a.cfg.SlowResponseMultiplier*mean {
					alerts = append(alerts, datatypes.Alert{
						Type:     "slow_response",
						Source:   e.Source,
						Duration: d,
						Average:  mean,
					})
				}
			}
			st.pushDuration(d)
		}
	}

	return alerts
}

// ErrorCounts snapshots the in-window error count per source. Used by
// the anomaly-detection RPC.
func (a *Analyzer) ErrorCounts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-a.cfg.ErrorSpikeWindow)
	counts := make(map[string]int, len(a.sources))
	for source, st := range a.sources {
		st.trimErrors(cutoff)
		if len(st.errorTimes) > 0 {
			counts[source] = len(st.errorTimes)
		}
	}
	return counts
}

// Anomalies reports the sources whose in-window error count is at or
// past the spike threshold right now.
func (a *Analyzer) Anomalies() []datatypes.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-a.cfg.ErrorSpikeWindow)
	var out []datatypes.Alert
	for source, st := range a.sources {
		st.trimErrors(cutoff)
		if len(st.errorTimes) >= a.cfg.ErrorSpikeThreshold {
			out = append(out, datatypes.Alert{
				Type:   "error_spike",
				Source: source,
				Count:  len(st.errorTimes),
			})
		}
	}
	return out
}

// Window returns the error-spike window span.
func (a *Analyzer) Window() time.Duration {
	return a.cfg.ErrorSpikeWindow
}

// trimErrors drops error timestamps older than cutoff.
func (st *sourceState) trimErrors(cutoff time.Time) {
	i := 0
	for i < len(st.errorTimes) && st.errorTimes[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		st.errorTimes = append(st.errorTimes[:0], st.errorTimes[i:]...)
	}
}

// pushDuration appends a sample, evicting the oldest at capacity.
func (st *sourceState) pushDuration(d float64) {
	if len(st.durations) >= durationWindowSize {
		st.durSum -= st.durations[0]
		st.durations = append(st.durations[:0], st.durations[1:]...)
	}
	st.durations = append(st.durations, d)
	st.durSum += d
}
