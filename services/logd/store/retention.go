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
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"
)

// Retention policy.
//
// Age tiers, relative to MaxDays (D):
//
//   - non-ERROR/FATAL hot rows older than D move to the archive
//   - ERROR/FATAL hot rows stay in the hot tier until 2·D, then move to
//     the archive
//   - archive rows older than 4·D are purged
//
// Each relocated row is the gzip of its JSON serialization, so the
// archive round-trips the original entry exactly.
//
// Size eviction: when the database file exceeds MaxSizeMB, the oldest
// hot rows are deleted in batches of 1000 until the file is back at 80%
// of the cap or a pass deletes nothing. Compaction (VACUUM + ANALYZE)
// runs last to return freed pages to the filesystem.

const (
	sizeEvictBatch  = 1000
	sizeEvictTarget = 0.8
)

// maintenanceLoop wakes every VacuumInterval and runs retention.
func (s *Store) maintenanceLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.VacuumInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.RunMaintenance(context.Background()); err != nil {
				s.log.Error("maintenance pass failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

// RunMaintenance performs one full retention pass: age eviction, archive
// purge, size eviction and compaction, in that order. Exported so the
// CLI and tests can force a pass without waiting for the timer.
func (s *Store) RunMaintenance(ctx context.Context) error {
	started := time.Now()
	now := epochSeconds(started)
	maxAge := float64(s.cfg.MaxDays) * 86400

	archived, err := s.archiveAgedRows(ctx, now-maxAge, now-2*maxAge)
	if err != nil {
		return fmt.Errorf("store: age eviction: %w", err)
	}

	purged, err := s.purgeArchive(ctx, now-4*maxAge)
	if err != nil {
		return fmt.Errorf("store: archive purge: %w", err)
	}

	evicted, err := s.evictBySize(ctx)
	if err != nil {
		return fmt.Errorf("store: size eviction: %w", err)
	}

	if err := s.compact(ctx); err != nil {
		return fmt.Errorf("store: compaction: %w", err)
	}

	s.log.Info("maintenance pass complete",
		"archived", archived,
		"archive_purged", purged,
		"size_evicted", evicted,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// archiveAgedRows relocates hot rows past their age threshold into the
// archive. Non-error rows use plainCutoff, ERROR/FATAL rows the later
// errorCutoff. Each batch of rows moves in one transaction so an entry
// is never visible in both tiers.
func (s *Store) archiveAgedRows(ctx context.Context, plainCutoff, errorCutoff float64) (int, error) {
	total := 0
	for {
		n, err := s.archiveBatch(ctx, plainCutoff, errorCutoff)
		if err != nil {
			return total, err
		}
		total += n
		if n < sizeEvictBatch {
			return total, nil
		}
	}
}

func (s *Store) archiveBatch(ctx context.Context, plainCutoff, errorCutoff float64) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, level, timestamp, message, metadata_json, tags_json, trace_id, created_at, size_bytes
		 FROM logs
		 WHERE (level NOT IN ('ERROR', 'FATAL') AND created_at < ?)
		    OR (level IN ('ERROR', 'FATAL') AND created_at < ?)
		 ORDER BY created_at ASC LIMIT ?`,
		plainCutoff, errorCutoff, sizeEvictBatch)
	if err != nil {
		return 0, err
	}
	entries, err := scanEntries(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`INSERT OR REPLACE INTO logs_archive
		(id, source, level, timestamp, compressed_data, created_at, original_size, compressed_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer insert.Close()

	for i := range entries {
		e := &entries[i]
		data, err := e.Serialized()
		if err != nil {
			return 0, fmt.Errorf("serialize %s: %w", e.ID, err)
		}
		blob, err := gzipBytes(data)
		if err != nil {
			return 0, fmt.Errorf("compress %s: %w", e.ID, err)
		}
		if _, err := insert.Exec(e.ID, e.Source, e.Level, e.Timestamp, blob,
			e.CreatedAt, len(data), len(blob)); err != nil {
			return 0, fmt.Errorf("archive insert %s: %w", e.ID, err)
		}
		if _, err := tx.Exec(`DELETE FROM logs WHERE id = ?`, e.ID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`DELETE FROM logs_fts WHERE id = ?`, e.ID); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	metricRowsArchived.Add(float64(len(entries)))
	return len(entries), nil
}

// purgeArchive deletes archive rows older than cutoff.
func (s *Store) purgeArchive(ctx context.Context, cutoff float64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM logs_archive WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		metricRowsEvicted.Add(float64(n))
	}
	return n, nil
}

// evictBySize deletes the oldest hot rows while the database file
// exceeds MaxSizeMB, stopping at 80% of the cap or when a pass makes no
// progress. The file only shrinks after compaction, so the loop tracks
// logical progress by deleted row count.
func (s *Store) evictBySize(ctx context.Context) (int64, error) {
	capBytes := float64(s.cfg.MaxSizeMB) * 1024 * 1024
	if s.DiskUsageMB()*1024*1024 <= capBytes {
		return 0, nil
	}
	target := capBytes * sizeEvictTarget

	var (
		total        int64
		logicalBytes float64 = s.DiskUsageMB() * 1024 * 1024
	)
	for logicalBytes > target {
		res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE id IN (
			SELECT id FROM logs ORDER BY created_at ASC LIMIT ?)`, sizeEvictBatch)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			break
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM logs_fts WHERE id NOT IN (SELECT id FROM logs)`); err != nil {
			return total, err
		}
		total += n
		// Estimate reclaimed space from the accounted row sizes.
		var remaining float64
		if err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(size_bytes), 0) FROM logs`).Scan(&remaining); err != nil {
			return total, err
		}
		if remaining >= logicalBytes {
			break
		}
		logicalBytes = remaining
	}
	if total > 0 {
		metricRowsEvicted.Add(float64(total))
		s.log.Warn("size cap exceeded, evicted oldest rows", "evicted", total, "max_size_mb", s.cfg.MaxSizeMB)
	}
	return total, nil
}

// compact reclaims freed pages and refreshes the query planner stats.
func (s *Store) compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `ANALYZE`)
	return err
}

// gzipBytes compresses data with gzip at the default level.
func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gunzip decompresses a gzip blob.
func gunzip(blob []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
