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

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// migratePageSize bounds how many rows a copy transaction carries.
const migratePageSize = 500

// CopyAllTo copies every entry, hot and archive, into dst, preserving
// ids, created_at and tier. Existing rows with the same id in dst are
// replaced. Returns the number of hot entries copied.
//
// The copy bypasses dst's batch writer and writes directly so created_at
// values survive verbatim.
func (s *Store) CopyAllTo(ctx context.Context, dst *Store) (int, error) {
	copied := 0
	var after float64 = -1
	for {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, source, level, timestamp, message, metadata_json, tags_json, trace_id, created_at, size_bytes
			 FROM logs WHERE created_at > ? ORDER BY created_at ASC LIMIT ?`,
			after, migratePageSize)
		if err != nil {
			return copied, fmt.Errorf("store: migrate read: %w", err)
		}
		entries, err := scanEntries(rows)
		rows.Close()
		if err != nil {
			return copied, err
		}
		if len(entries) == 0 {
			break
		}
		if err := dst.restoreBatch(ctx, entries); err != nil {
			return copied, fmt.Errorf("store: migrate write: %w", err)
		}
		copied += len(entries)
		after = entries[len(entries)-1].CreatedAt
	}

	if err := s.copyArchiveTo(ctx, dst); err != nil {
		return copied, err
	}
	return copied, nil
}

// restoreBatch inserts entries directly, keeping their created_at.
func (s *Store) restoreBatch(ctx context.Context, entries []datatypes.LogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range entries {
		e := &entries[i]
		metadataJSON, tagsJSON := encodeJSONColumns(e)
		var traceID any
		if e.TraceID != "" {
			traceID = e.TraceID
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO logs
			(id, source, level, timestamp, message, metadata_json, tags_json, trace_id, created_at, size_bytes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Source, e.Level, e.Timestamp, e.Message,
			metadataJSON, tagsJSON, traceID, e.CreatedAt, e.SizeBytes); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM logs_fts WHERE id = ?`, e.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO logs_fts (id, source, message, metadata_json)
			VALUES (?, ?, ?, ?)`, e.ID, e.Source, e.Message, metadataJSON); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// copyArchiveTo copies archive rows blob-for-blob.
func (s *Store) copyArchiveTo(ctx context.Context, dst *Store) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, level, timestamp, compressed_data, created_at, original_size, compressed_size
		 FROM logs_archive ORDER BY created_at ASC`)
	if err != nil {
		return fmt.Errorf("store: migrate archive read: %w", err)
	}
	defer rows.Close()

	tx, err := dst.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for rows.Next() {
		var (
			id, source, level, timestamp string
			blob                         []byte
			createdAt                    float64
			originalSize, compressedSize int64
		)
		if err := rows.Scan(&id, &source, &level, &timestamp, &blob,
			&createdAt, &originalSize, &compressedSize); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO logs_archive
			(id, source, level, timestamp, compressed_data, created_at, original_size, compressed_size)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, source, level, timestamp, blob, createdAt, originalSize, compressedSize); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return tx.Commit()
}
