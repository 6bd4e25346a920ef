// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collectors

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEntriesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logcollector_collector_entries_emitted_total",
		Help: "Entries produced by each collector.",
	}, []string{"collector"})
	metricEntriesShipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcollector_collector_entries_shipped_total",
		Help: "Entries delivered to the daemon.",
	})
	metricBatchesLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcollector_collector_batches_lost_total",
		Help: "Batches dropped after exhausting delivery retries.",
	})
)
