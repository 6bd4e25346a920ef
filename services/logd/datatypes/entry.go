// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the log pipeline.
//
// The canonical record is LogEntry. Every producer (collector, client SDK,
// JSON-RPC caller) ultimately constructs a LogEntry, and every consumer
// (store, analyzer, streamer, query API) operates on it. Keeping the model
// in one leaf package avoids import cycles between the server, the store
// and the collectors.
package datatypes

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Log levels accepted by the pipeline. Levels are case-sensitive,
// uppercase strings on the wire.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

// NormalizedLevelTag is appended to entries whose level was not one of
// the known five and had to be coerced to INFO.
const NormalizedLevelTag = "level:normalized"

// ValidLevel reports whether s is one of the five known levels.
func ValidLevel(s string) bool {
	switch s {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	}
	return false
}

// IsErrorLevel reports whether s is ERROR or FATAL.
func IsErrorLevel(s string) bool {
	return s == LevelError || s == LevelFatal
}

// LogEntry is the canonical log record flowing through the pipeline.
//
// Producers supply Timestamp; the store assigns CreatedAt (monotonic epoch
// seconds at ingest) and SizeBytes (serialized length, used for retention
// accounting). ID is generated when the producer leaves it empty.
type LogEntry struct {
	// ID is a globally unique opaque string. Ingesting a duplicate ID
	// replaces the prior record.
	ID string `json:"id"`

	// Source is a short identifier of the producer, e.g. "console",
	// "http_traffic", "file_watcher", "db_query", "client-<name>".
	Source string `json:"source"`

	// Level is one of DEBUG, INFO, WARN, ERROR, FATAL.
	Level string `json:"level"`

	// Timestamp is the producer-supplied ISO-8601 time with sub-second
	// precision.
	Timestamp string `json:"timestamp"`

	// Message is the UTF-8 log text. Unbounded at the API; collectors
	// truncate at their own limits.
	Message string `json:"message"`

	// Metadata is an arbitrary JSON object attached by the producer.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Tags is an ordered list of strings. Duplicates are permitted but
	// ignored for query semantics.
	Tags []string `json:"tags,omitempty"`

	// TraceID is an optional opaque correlation key. Empty means no
	// correlation.
	TraceID string `json:"trace_id,omitempty"`

	// CreatedAt is the ingest time as floating-point epoch seconds,
	// assigned by the store. Zero until ingested.
	CreatedAt float64 `json:"created_at,omitempty"`

	// SizeBytes is the byte length of the serialized entry, computed by
	// the store for retention accounting.
	SizeBytes int64 `json:"size_bytes,omitempty"`
}

// TimestampFormat is the ISO-8601 layout used for producer timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

// Now returns the current time formatted as a producer timestamp.
func Now() string {
	return time.Now().UTC().Format(TimestampFormat)
}

// Normalize fills defaults and coerces the entry into a valid record:
//
//   - empty ID gets a fresh UUID
//   - empty Timestamp gets the current time
//   - empty Source becomes "unknown"
//   - an unknown Level is coerced to INFO and NormalizedLevelTag is
//     appended to Tags
//
// Normalize reports whether the level had to be coerced so callers can
// log a warning.
func (e *LogEntry) Normalize() (levelNormalized bool) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp == "" {
		e.Timestamp = Now()
	}
	if e.Source == "" {
		e.Source = "unknown"
	}
	if !ValidLevel(e.Level) {
		e.Level = LevelInfo
		e.Tags = append(e.Tags, NormalizedLevelTag)
		levelNormalized = true
	}
	return levelNormalized
}

// Serialized returns the JSON encoding of the entry. This is the form
// stored in the archive tier and measured for SizeBytes.
func (e *LogEntry) Serialized() ([]byte, error) {
	return json.Marshal(e)
}

// HasTag reports whether tag appears in the entry's tag list.
func (e *LogEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DurationMS extracts a numeric metadata.duration_ms value. The second
// return is false when the key is missing or not numeric. JSON numbers
// decode as float64; integers stored programmatically are handled too.
func (e *LogEntry) DurationMS() (float64, bool) {
	v, ok := e.Metadata["duration_ms"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Alert is an anomaly descriptor emitted by the analyzer. Exactly one of
// the optional fields is populated depending on Type.
type Alert struct {
	// Type is "error_spike" or "slow_response".
	Type string `json:"type"`

	// Source is the producer the alert concerns.
	Source string `json:"source"`

	// Count is the number of errors in the window (error_spike only).
	Count int `json:"count,omitempty"`

	// Duration is the offending sample in milliseconds (slow_response).
	Duration float64 `json:"duration,omitempty"`

	// Average is the running mean the sample was compared against
	// (slow_response only).
	Average float64 `json:"average,omitempty"`
}
