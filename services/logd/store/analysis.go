// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// slowDurationMS is the fixed slow threshold for the performance
// aggregate. Per-collector slow_query thresholds are applied at ingest;
// this one classifies after the fact.
const slowDurationMS = 1000.0

// ErrorPattern is one grouped error message within the analysis range.
type ErrorPattern struct {
	Message   string `json:"message"`
	Count     int64  `json:"count"`
	Sources   string `json:"sources"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
}

// ErrorPatterns groups ERROR/FATAL rows by verbatim message, most
// frequent first. Returns the patterns and the total error row count in
// the range.
func (s *Store) ErrorPatterns(ctx context.Context, timeRange string) ([]ErrorPattern, int64, error) {
	cutoff, err := analysisCutoff(timeRange)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM logs WHERE created_at >= ? AND level IN ('ERROR', 'FATAL')`,
		cutoff).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: error total: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT message, COUNT(*), GROUP_CONCAT(DISTINCT source), MIN(timestamp), MAX(timestamp)
		 FROM logs WHERE created_at >= ? AND level IN ('ERROR', 'FATAL')
		 GROUP BY message ORDER BY COUNT(*) DESC LIMIT 20`, cutoff)
	if err != nil {
		return nil, 0, fmt.Errorf("store: error patterns: %w", err)
	}
	defer rows.Close()

	patterns := []ErrorPattern{}
	for rows.Next() {
		var p ErrorPattern
		if err := rows.Scan(&p.Message, &p.Count, &p.Sources, &p.FirstSeen, &p.LastSeen); err != nil {
			return nil, 0, err
		}
		patterns = append(patterns, p)
	}
	return patterns, total, rows.Err()
}

// DurationProfile aggregates duration_ms metadata for one source.
type DurationProfile struct {
	Source    string  `json:"source"`
	Count     int64   `json:"count"`
	AvgMS     float64 `json:"avg_ms"`
	MinMS     float64 `json:"min_ms"`
	MaxMS     float64 `json:"max_ms"`
	SlowCount int64   `json:"slow_count"`
}

// DurationProfiles aggregates duration_ms per duration-carrying source
// (http_traffic, db_query) within the range.
func (s *Store) DurationProfiles(ctx context.Context, timeRange string) ([]DurationProfile, error) {
	cutoff, err := analysisCutoff(timeRange)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*), AVG(d), MIN(d), MAX(d),
		        COALESCE(SUM(CASE WHEN d > ? THEN 1 ELSE 0 END), 0)
		 FROM (
		     SELECT source, CAST(json_extract(metadata_json, '$.duration_ms') AS REAL) AS d
		     FROM logs
		     WHERE created_at >= ?
		       AND source IN ('http_traffic', 'db_query')
		       AND json_extract(metadata_json, '$.duration_ms') IS NOT NULL
		 ) GROUP BY source ORDER BY source`, slowDurationMS, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: duration profiles: %w", err)
	}
	defer rows.Close()

	profiles := []DurationProfile{}
	for rows.Next() {
		var p DurationProfile
		if err := rows.Scan(&p.Source, &p.Count, &p.AvgMS, &p.MinMS, &p.MaxMS, &p.SlowCount); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// LevelTrend is the per-level count split between the older and newer
// half of the analysis range.
type LevelTrend struct {
	Level      string `json:"level"`
	Total      int64  `json:"total"`
	FirstHalf  int64  `json:"first_half"`
	SecondHalf int64  `json:"second_half"`
	Direction  string `json:"direction"`
}

// LevelTrends counts rows per level in each half of the range and
// labels the movement rising, falling or stable. A shift under 20%
// counts as stable.
func (s *Store) LevelTrends(ctx context.Context, timeRange string) ([]LevelTrend, error) {
	cutoff, err := analysisCutoff(timeRange)
	if err != nil {
		return nil, err
	}
	mid := cutoff + (epochSeconds(time.Now())-cutoff)/2

	rows, err := s.db.QueryContext(ctx,
		`SELECT level,
		        COUNT(*),
		        COALESCE(SUM(CASE WHEN created_at < ? THEN 1 ELSE 0 END), 0)
		 FROM logs WHERE created_at >= ?
		 GROUP BY level ORDER BY level`, mid, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: level trends: %w", err)
	}
	defer rows.Close()

	trends := []LevelTrend{}
	for rows.Next() {
		var t LevelTrend
		if err := rows.Scan(&t.Level, &t.Total, &t.FirstHalf); err != nil {
			return nil, err
		}
		t.SecondHalf = t.Total - t.FirstHalf
		t.Direction = trendDirection(t.FirstHalf, t.SecondHalf)
		trends = append(trends, t)
	}
	return trends, rows.Err()
}

func trendDirection(first, second int64) string {
	if first == 0 && second == 0 {
		return "stable"
	}
	if first == 0 {
		return "rising"
	}
	delta := float64(second-first) / float64(first)
	switch {
	case delta > 0.2:
		return "rising"
	case delta < -0.2:
		return "falling"
	default:
		return "stable"
	}
}

// analysisCutoff resolves a relative range ("1h", "24h", "7d") to an
// epoch-seconds lower bound. Empty defaults to 24h.
func analysisCutoff(timeRange string) (float64, error) {
	if timeRange == "" {
		timeRange = "24h"
	}
	since, err := datatypes.ParseTimeBound(timeRange, time.Now())
	if err != nil {
		return 0, fmt.Errorf("store: bad time_range: %w", err)
	}
	return epochSeconds(since), nil
}
