// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface: JSON-RPC methods, batch
// ingress for client SDKs, the WebSocket control channel and the health
// probe.
package handlers

import (
	"log/slog"

	"github.com/recursivelog/logcollector/services/logd/analyzer"
	"github.com/recursivelog/logcollector/services/logd/datatypes"
	"github.com/recursivelog/logcollector/services/logd/store"
	"github.com/recursivelog/logcollector/services/logd/stream"
)

// Ingestor is the single accept path for entries, shared by the log and
// log_batch RPC methods and the client-logs endpoint. Each entry is
// queued for the store's batch writer, fed through the analyzer, and
// dispatched to matching stream subscribers with its alerts attached.
type Ingestor struct {
	Store    *store.Store
	Analyzer *analyzer.Analyzer
	Streamer *stream.Streamer
	Log      *slog.Logger

	// Notifier delivers raised alerts to the configured channels. May
	// be nil.
	Notifier *analyzer.Notifier
}

// Ingest accepts a batch. The store call normalizes entries in place
// (id, timestamp, level, created_at), so analysis and dispatch see the
// same values that get persisted. Returns the accepted entry count and
// the number of alerts raised.
//
// Persistence is fire-and-forget: a full store queue still reports
// success. Only a closed store returns an error.
func (ing *Ingestor) Ingest(entries []datatypes.LogEntry) (int, int, error) {
	if len(entries) == 0 {
		return 0, 0, nil
	}
	if err := ing.Store.PutBatch(entries); err != nil {
		return 0, 0, err
	}

	alertCount := 0
	for i := range entries {
		alerts := ing.Analyzer.Observe(&entries[i])
		alertCount += len(alerts)
		ing.Streamer.Dispatch(&entries[i], alerts)
		ing.Notifier.Notify(alerts)
	}
	metricEntriesIngested.Add(float64(len(entries)))
	if alertCount > 0 {
		metricAlertsRaised.Add(float64(alertCount))
	}
	return len(entries), alertCount, nil
}
