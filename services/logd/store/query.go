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
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// QueryParams selects entries. All populated fields are combined with
// AND. Since and Until accept an absolute ISO timestamp or a relative
// duration ("5m", "2h", "3d"); a relative bound resolves against now.
type QueryParams struct {
	Sources []string `json:"sources,omitempty"`
	Levels  []string `json:"levels,omitempty"`
	TraceID string   `json:"trace_id,omitempty"`
	Since   string   `json:"since,omitempty"`
	Until   string   `json:"until,omitempty"`

	// Search is an FTS5 MATCH expression evaluated against the
	// full-text index; matching restricts the result to those ids. For
	// archived rows (which the index does not cover) it degrades to a
	// substring match on the decompressed message.
	Search string `json:"search,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// IncludeArchived extends the scan to the archive tier.
	IncludeArchived bool `json:"include_archived,omitempty"`
}

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

func (p *QueryParams) effectiveLimit() int {
	switch {
	case p.Limit <= 0:
		return defaultQueryLimit
	case p.Limit > maxQueryLimit:
		return maxQueryLimit
	default:
		return p.Limit
	}
}

// Query returns matching entries ordered newest-first by created_at.
// Queries run on WAL read transactions and never block on the writer;
// entries still sitting in the writer buffer are not visible.
func (s *Store) Query(ctx context.Context, p QueryParams) ([]datatypes.LogEntry, error) {
	limit := p.effectiveLimit()
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	now := time.Now()
	where, args, err := buildHotPredicate(p, now)
	if err != nil {
		return nil, err
	}

	// Over-fetch when merging with the archive so the combined
	// offset/limit window can be sliced after the sort.
	fetchLimit := limit
	fetchOffset := offset
	if p.IncludeArchived {
		fetchLimit = limit + offset
		fetchOffset = 0
	}

	query := `SELECT id, source, level, timestamp, message, metadata_json, tags_json, trace_id, created_at, size_bytes
		FROM logs ` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, fetchLimit, fetchOffset)...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	if !p.IncludeArchived {
		return entries, nil
	}

	archived, err := s.queryArchive(ctx, p, now, limit+offset)
	if err != nil {
		return nil, err
	}
	entries = append(entries, archived...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt > entries[j].CreatedAt
	})
	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Trace returns every entry sharing the trace id, ordered by producer
// timestamp then ingest time.
func (s *Store) Trace(ctx context.Context, traceID string) ([]datatypes.LogEntry, error) {
	if traceID == "" {
		return nil, fmt.Errorf("store: empty trace id")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, level, timestamp, message, metadata_json, tags_json, trace_id, created_at, size_bytes
		 FROM logs WHERE trace_id = ? ORDER BY timestamp ASC, created_at ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("store: trace query: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Get fetches a single entry by id from the hot tier.
func (s *Store) Get(ctx context.Context, id string) (*datatypes.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, level, timestamp, message, metadata_json, tags_json, trace_id, created_at, size_bytes
		 FROM logs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// buildHotPredicate assembles the WHERE clause for the hot table.
func buildHotPredicate(p QueryParams, now time.Time) (string, []any, error) {
	var (
		conds []string
		args  []any
	)

	if len(p.Sources) > 0 {
		conds = append(conds, "source IN ("+placeholders(len(p.Sources))+")")
		for _, v := range p.Sources {
			args = append(args, v)
		}
	}
	if len(p.Levels) > 0 {
		conds = append(conds, "level IN ("+placeholders(len(p.Levels))+")")
		for _, v := range p.Levels {
			args = append(args, v)
		}
	}
	if p.TraceID != "" {
		conds = append(conds, "trace_id = ?")
		args = append(args, p.TraceID)
	}
	if p.Since != "" {
		t, err := datatypes.ParseTimeBound(p.Since, now)
		if err != nil {
			return "", nil, fmt.Errorf("store: bad since: %w", err)
		}
		conds = append(conds, "created_at >= ?")
		args = append(args, epochSeconds(t))
	}
	if p.Until != "" {
		t, err := datatypes.ParseTimeBound(p.Until, now)
		if err != nil {
			return "", nil, fmt.Errorf("store: bad until: %w", err)
		}
		conds = append(conds, "created_at <= ?")
		args = append(args, epochSeconds(t))
	}
	if p.Search != "" {
		conds = append(conds, "id IN (SELECT id FROM logs_fts WHERE logs_fts MATCH ?)")
		args = append(args, p.Search)
	}

	if len(conds) == 0 {
		return "", args, nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args, nil
}

// queryArchive scans the archive tier, decompressing candidate blobs.
// Source/level/time filters are pushed down to SQL; search and trace id
// are applied after decompression.
func (s *Store) queryArchive(ctx context.Context, p QueryParams, now time.Time, limit int) ([]datatypes.LogEntry, error) {
	var (
		conds []string
		args  []any
	)
	if len(p.Sources) > 0 {
		conds = append(conds, "source IN ("+placeholders(len(p.Sources))+")")
		for _, v := range p.Sources {
			args = append(args, v)
		}
	}
	if len(p.Levels) > 0 {
		conds = append(conds, "level IN ("+placeholders(len(p.Levels))+")")
		for _, v := range p.Levels {
			args = append(args, v)
		}
	}
	if p.Since != "" {
		t, err := datatypes.ParseTimeBound(p.Since, now)
		if err != nil {
			return nil, fmt.Errorf("store: bad since: %w", err)
		}
		conds = append(conds, "created_at >= ?")
		args = append(args, epochSeconds(t))
	}
	if p.Until != "" {
		t, err := datatypes.ParseTimeBound(p.Until, now)
		if err != nil {
			return nil, fmt.Errorf("store: bad until: %w", err)
		}
		conds = append(conds, "created_at <= ?")
		args = append(args, epochSeconds(t))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT compressed_data FROM logs_archive `+where+` ORDER BY created_at DESC LIMIT ?`,
		append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("store: archive query: %w", err)
	}
	defer rows.Close()

	var entries []datatypes.LogEntry
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("store: archive scan: %w", err)
		}
		data, err := gunzip(blob)
		if err != nil {
			s.log.Warn("skipping corrupt archive blob", "error", err)
			continue
		}
		var e datatypes.LogEntry
		if err := json.Unmarshal(data, &e); err != nil {
			s.log.Warn("skipping unparseable archive blob", "error", err)
			continue
		}
		if p.TraceID != "" && e.TraceID != p.TraceID {
			continue
		}
		if p.Search != "" && !strings.Contains(e.Message, p.Search) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanEntries converts result rows into LogEntry values.
func scanEntries(rows *sql.Rows) ([]datatypes.LogEntry, error) {
	var entries []datatypes.LogEntry
	for rows.Next() {
		var (
			e            datatypes.LogEntry
			metadataJSON string
			tagsJSON     string
			traceID      sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Source, &e.Level, &e.Timestamp, &e.Message,
			&metadataJSON, &tagsJSON, &traceID, &e.CreatedAt, &e.SizeBytes); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		if traceID.Valid {
			e.TraceID = traceID.String
		}
		if metadataJSON != "" && metadataJSON != "{}" {
			_ = json.Unmarshal([]byte(metadataJSON), &e.Metadata)
		}
		if tagsJSON != "" && tagsJSON != "[]" {
			_ = json.Unmarshal([]byte(tagsJSON), &e.Tags)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
