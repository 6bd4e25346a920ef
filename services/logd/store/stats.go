// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// BasicStats summarizes the hot tier within the requested range.
type BasicStats struct {
	TotalLogs      int64   `json:"total_logs"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	UniqueSources  int64   `json:"unique_sources"`
	EarliestSecs   float64 `json:"earliest_created_at,omitempty"`
	LatestSecs     float64 `json:"latest_created_at,omitempty"`
}

// SourceLevelCount is one (source, level) bucket.
type SourceLevelCount struct {
	Source string `json:"source"`
	Level  string `json:"level"`
	Count  int64  `json:"count"`
}

// HourlyCount is one hour bucket, keyed by "YYYY-MM-DD HH:00" in UTC.
type HourlyCount struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

// MessageCount groups ERROR/FATAL rows by verbatim message.
type MessageCount struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
	Sources string `json:"sources,omitempty"`
}

// StatsResult is the aggregate returned by the get_stats RPC.
type StatsResult struct {
	Timerange     string             `json:"timerange"`
	Basic         BasicStats         `json:"basic"`
	BySourceLevel []SourceLevelCount `json:"by_source_level"`
	Hourly        []HourlyCount      `json:"hourly"`
	TopErrors     []MessageCount     `json:"top_errors"`
}

// Stats aggregates the hot tier over a relative timerange ("1h", "24h",
// "7d"). An empty timerange defaults to 24h.
func (s *Store) Stats(ctx context.Context, timerange string) (*StatsResult, error) {
	if timerange == "" {
		timerange = "24h"
	}
	now := time.Now()
	since, err := datatypes.ParseTimeBound(timerange, now)
	if err != nil {
		return nil, fmt.Errorf("store: bad timerange: %w", err)
	}
	cutoff := epochSeconds(since)

	result := &StatsResult{
		Timerange:     timerange,
		BySourceLevel: []SourceLevelCount{},
		Hourly:        []HourlyCount{},
		TopErrors:     []MessageCount{},
	}

	err = s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(size_bytes), 0),
			COUNT(DISTINCT source),
			COALESCE(MIN(created_at), 0),
			COALESCE(MAX(created_at), 0)
		FROM logs WHERE created_at >= ?`, cutoff).Scan(
		&result.Basic.TotalLogs,
		&result.Basic.TotalSizeBytes,
		&result.Basic.UniqueSources,
		&result.Basic.EarliestSecs,
		&result.Basic.LatestSecs,
	)
	if err != nil {
		return nil, fmt.Errorf("store: basic stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, level, COUNT(*)
		FROM logs WHERE created_at >= ?
		GROUP BY source, level ORDER BY COUNT(*) DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: source/level stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c SourceLevelCount
		if err := rows.Scan(&c.Source, &c.Level, &c.Count); err != nil {
			return nil, err
		}
		result.BySourceLevel = append(result.BySourceLevel, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hourly, err := s.db.QueryContext(ctx, `SELECT
			strftime('%Y-%m-%d %H:00', datetime(created_at, 'unixepoch')),
			COUNT(*)
		FROM logs WHERE created_at >= ?
		GROUP BY 1 ORDER BY 1 ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: hourly stats: %w", err)
	}
	defer hourly.Close()
	for hourly.Next() {
		var c HourlyCount
		if err := hourly.Scan(&c.Hour, &c.Count); err != nil {
			return nil, err
		}
		result.Hourly = append(result.Hourly, c)
	}
	if err := hourly.Err(); err != nil {
		return nil, err
	}

	top, err := s.db.QueryContext(ctx, `SELECT message, COUNT(*), GROUP_CONCAT(DISTINCT source)
		FROM logs WHERE created_at >= ? AND level IN ('ERROR', 'FATAL')
		GROUP BY message ORDER BY COUNT(*) DESC LIMIT 10`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: top errors: %w", err)
	}
	defer top.Close()
	for top.Next() {
		var c MessageCount
		if err := top.Scan(&c.Message, &c.Count, &c.Sources); err != nil {
			return nil, err
		}
		result.TopErrors = append(result.TopErrors, c)
	}
	return result, top.Err()
}
