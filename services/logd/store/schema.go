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

// Schema for the log store. Three tiers:
//
//   - logs: the hot table, queryable directly
//   - logs_archive: gzip blobs of aged-out rows
//   - logs_fts: FTS5 index over id/source/message/metadata
//
// log_stats is a per-day rollup maintained by the batch writer in the
// same transaction as the inserts (application-level upsert rather than
// a trigger, so replaced rows don't double count).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS logs (
		id            TEXT PRIMARY KEY,
		source        TEXT NOT NULL,
		level         TEXT NOT NULL,
		timestamp     TEXT NOT NULL,
		message       TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		tags_json     TEXT NOT NULL DEFAULT '[]',
		trace_id      TEXT,
		created_at    REAL NOT NULL,
		size_bytes    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_source ON logs(source)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_trace_id ON logs(trace_id) WHERE trace_id IS NOT NULL`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS logs_fts USING fts5(
		id UNINDEXED,
		source,
		message,
		metadata_json
	)`,

	`CREATE TABLE IF NOT EXISTS logs_archive (
		id              TEXT PRIMARY KEY,
		source          TEXT NOT NULL,
		level           TEXT NOT NULL,
		timestamp       TEXT NOT NULL,
		compressed_data BLOB NOT NULL,
		created_at      REAL NOT NULL,
		original_size   INTEGER NOT NULL,
		compressed_size INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_archive_created_at ON logs_archive(created_at)`,

	`CREATE TABLE IF NOT EXISTS log_stats (
		date       TEXT NOT NULL,
		source     TEXT NOT NULL,
		level      TEXT NOT NULL,
		count      INTEGER NOT NULL DEFAULT 0,
		total_size INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, source, level)
	)`,
}
