// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEntriesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcollector_ingest_entries_total",
		Help: "Entries accepted through the ingest path.",
	})
	metricAlertsRaised = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logcollector_ingest_alerts_total",
		Help: "Alerts raised by the analyzer on ingest.",
	})
	metricRPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logcollector_rpc_requests_total",
		Help: "JSON-RPC calls by method and outcome.",
	}, []string{"method", "outcome"})
)
