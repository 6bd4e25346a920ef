// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBatchesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcollector_store_batches_flushed_total",
		Help: "Number of write transactions committed by the batch writer.",
	})

	metricEntriesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcollector_store_entries_written_total",
		Help: "Number of log entries committed to the hot tier.",
	})

	metricFlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcollector_store_flush_failures_total",
		Help: "Number of failed flush attempts (before retries are exhausted).",
	})

	metricBatchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcollector_store_batches_dropped_total",
		Help: "Batches dropped due to queue overload or exhausted flush retries.",
	})

	metricRowsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcollector_store_rows_archived_total",
		Help: "Hot rows relocated to the compressed archive tier.",
	})

	metricRowsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcollector_store_rows_evicted_total",
		Help: "Rows permanently deleted by retention (size or archive age).",
	})
)
