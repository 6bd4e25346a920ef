// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// clientLogRecord is one record posted by a browser SDK. The SDK's
// logger name becomes part of the source; everything else maps onto the
// LogEntry fields.
type clientLogRecord struct {
	Logger    string         `json:"logger"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	TraceID   string         `json:"trace_id"`
	Metadata  map[string]any `json:"metadata"`
}

// clientLogsBody accepts either {"logs": [...]} or a bare array.
type clientLogsBody struct {
	Logs []clientLogRecord `json:"logs"`
}

// HandleClientLogs serves POST /api/client-logs: batch ingress from
// client SDKs. Each record becomes an entry with source
// "client-<logger>" and tags ["client", "browser"].
func HandleClientLogs(ing *Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		var body clientLogsBody
		trimmed := bytes.TrimLeft(raw, " \t\r\n")
		if len(trimmed) > 0 && trimmed[0] == '[' {
			// Some SDKs post the records directly.
			err = json.Unmarshal(trimmed, &body.Logs)
		} else {
			err = json.Unmarshal(raw, &body)
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed batch: " + err.Error()})
			return
		}
		if len(body.Logs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty batch"})
			return
		}

		entries := make([]datatypes.LogEntry, 0, len(body.Logs))
		for _, rec := range body.Logs {
			logger := rec.Logger
			if logger == "" {
				logger = "js"
			}
			entries = append(entries, datatypes.LogEntry{
				Source:    "client-" + logger,
				Level:     strings.ToUpper(rec.Level),
				Timestamp: rec.Timestamp,
				Message:   rec.Message,
				TraceID:   rec.TraceID,
				Metadata:  rec.Metadata,
				Tags:      []string{"client", "browser"},
			})
		}

		count, alerts, err := ing.Ingest(entries)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingest unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "received",
			"count":  count,
			"alerts": alerts,
		})
	}
}
