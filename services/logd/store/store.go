// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store implements the durable, indexed log repository.
//
// The store is a single SQLite file in WAL mode (modernc.org/sqlite, pure
// Go). Writes are funneled through one background batch-writer goroutine
// that commits a transaction when either the buffer reaches BatchSize or
// BatchTimeout elapses since the last flush. Reads run concurrently with
// the writer; WAL provides the single-writer / parallel-reader model, so
// no application-level lock is held around queries.
//
// # Tiers
//
//	Hot (logs table) → Archive (gzip blobs in logs_archive) → Evicted
//
// Retention moves aged rows into the archive and eventually purges them;
// see retention.go for the policy.
//
// # Durability
//
// Best effort. A failed flush is retried with exponential backoff; when
// the retries are exhausted the batch is dropped and a counter is
// incremented. Producers are never blocked by the writer.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// ErrClosed is returned by PutBatch after Close has been called.
var ErrClosed = errors.New("store: closed")

// Config holds the store's tunables. Zero values fall back to the
// defaults applied by New.
type Config struct {
	// Path is the SQLite database file. The parent directory is created
	// if missing.
	Path string

	// MaxSizeMB caps the hot database file size. Size eviction deletes
	// the oldest rows until the file is back under 80% of the cap.
	MaxSizeMB int

	// MaxDays is the hot-tier age limit. See retention.go for how the
	// two tiers interact.
	MaxDays int

	// BatchSize is the flush threshold of the batch writer.
	BatchSize int

	// BatchTimeout is the maximum time entries sit in the writer buffer
	// before a flush.
	BatchTimeout time.Duration

	// VacuumInterval is the period of the maintenance task.
	VacuumInterval time.Duration

	// RetryAttempts and RetryDelay control flush retries.
	RetryAttempts int
	RetryDelay    time.Duration

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 500
	}
	if c.MaxDays <= 0 {
		c.MaxDays = 7
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = time.Second
	}
	if c.VacuumInterval <= 0 {
		c.VacuumInterval = time.Hour
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// putRequest is the unit flowing into the batch writer. A non-nil sync
// channel forces an immediate flush and is closed once the flush that
// covers the request has committed (or been dropped).
type putRequest struct {
	entries []datatypes.LogEntry
	sync    chan struct{}
}

// Store is the durable log repository. Safe for concurrent use: any
// goroutine may call PutBatch and the query methods.
type Store struct {
	cfg Config
	db  *sql.DB
	log *slog.Logger

	in   chan putRequest
	done chan struct{}
	wg   sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	lastCreated float64
}

// queueCapacity bounds the writer input channel. Beyond this the store
// sheds load instead of blocking producers.
const queueCapacity = 1024

// New opens (creating if necessary) the database at cfg.Path, applies
// the schema, and starts the batch writer and maintenance goroutines.
func New(cfg Config) (*Store, error) {
	cfg.applyDefaults()
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: config Path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("store: create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?%s", cfg.Path, url.Values{
		"_pragma": []string{
			"journal_mode(WAL)",
			"busy_timeout(5000)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Path, err)
	}
	// The sqlite driver serializes writes per connection; a single write
	// connection plus WAL readers matches the single-writer model.
	db.SetMaxOpenConns(4)

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: apply schema: %w", err)
		}
	}

	s := &Store{
		cfg:  cfg,
		db:   db,
		log:  cfg.Logger,
		in:   make(chan putRequest, queueCapacity),
		done: make(chan struct{}),
	}

	s.wg.Add(2)
	go s.writerLoop()
	go s.maintenanceLoop()

	return s, nil
}

// PutBatch queues entries for the batch writer. The call is non-blocking
// and returns before the entries are durable; use Sync to wait for the
// covering flush. Entries are normalized (id, timestamp, level) and get
// their created_at and size_bytes assigned here so that source order is
// preserved per producer.
//
// When the writer queue is full the store sheds load: the oldest queued
// batch is discarded to make room, and if that fails the incoming batch
// is dropped. Either way PutBatch reports success; ingest is
// fire-and-forget.
func (s *Store) PutBatch(entries []datatypes.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	for i := range entries {
		if entries[i].Normalize() {
			s.log.Warn("normalized unknown log level", "id", entries[i].ID, "source", entries[i].Source)
		}
		if entries[i].CreatedAt == 0 {
			entries[i].CreatedAt = s.nextCreatedAtLocked()
		}
		if data, err := entries[i].Serialized(); err == nil {
			entries[i].SizeBytes = int64(len(data))
		}
	}
	s.mu.Unlock()

	req := putRequest{entries: entries}
	select {
	case s.in <- req:
		return nil
	default:
	}

	// Queue full: discard the oldest queued batch and retry once.
	select {
	case old := <-s.in:
		if old.sync != nil {
			close(old.sync)
		}
		metricBatchesDropped.Inc()
		s.log.Warn("store queue full, dropped oldest batch", "dropped_entries", len(old.entries))
	default:
	}
	select {
	case s.in <- req:
		return nil
	default:
		metricBatchesDropped.Inc()
		s.log.Warn("store queue full, dropped incoming batch", "dropped_entries", len(entries))
		return nil
	}
}

// nextCreatedAtLocked returns a strictly non-decreasing ingest time in
// floating-point epoch seconds. Callers hold s.mu.
func (s *Store) nextCreatedAtLocked() float64 {
	now := float64(time.Now().UnixNano()) / 1e9
	if now <= s.lastCreated {
		now = s.lastCreated + 1e-6
	}
	s.lastCreated = now
	return now
}

// Sync blocks until every entry queued before the call has been flushed
// (or dropped after exhausting retries). Primarily for tests and for
// Close.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	done := make(chan struct{})
	select {
	case s.in <- putRequest{sync: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending entries, stops the background goroutines and
// closes the database. Subsequent PutBatch calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}

// writerLoop is the single writer task. It drains the input channel into
// an in-memory buffer and commits when the buffer reaches BatchSize or
// BatchTimeout has elapsed since the last flush.
func (s *Store) writerLoop() {
	defer s.wg.Done()

	var (
		buf     []datatypes.LogEntry
		pending []chan struct{}
	)
	timer := time.NewTimer(s.cfg.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(buf) > 0 {
			s.flushWithRetry(buf)
			buf = nil
		}
		for _, ch := range pending {
			close(ch)
		}
		pending = nil
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.cfg.BatchTimeout)
	}

	for {
		select {
		case req := <-s.in:
			buf = append(buf, req.entries...)
			if req.sync != nil {
				pending = append(pending, req.sync)
				flush()
				continue
			}
			if len(buf) >= s.cfg.BatchSize {
				flush()
			}
		case <-timer.C:
			flush()
		case <-s.done:
			// Drain whatever made it into the queue, then final flush.
			for {
				select {
				case req := <-s.in:
					buf = append(buf, req.entries...)
					if req.sync != nil {
						pending = append(pending, req.sync)
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// flushWithRetry commits the buffer, retrying with exponential backoff.
// On final failure the batch is dropped and counted; durability is best
// effort.
func (s *Store) flushWithRetry(entries []datatypes.LogEntry) {
	delay := s.cfg.RetryDelay
	var err error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if err = s.flush(entries); err == nil {
			metricBatchesFlushed.Inc()
			metricEntriesWritten.Add(float64(len(entries)))
			return
		}
		metricFlushFailures.Inc()
		s.log.Warn("batch flush failed",
			"attempt", attempt,
			"max_attempts", s.cfg.RetryAttempts,
			"entries", len(entries),
			"error", err,
		)
		if attempt < s.cfg.RetryAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	metricBatchesDropped.Inc()
	s.log.Error("dropping batch after exhausting flush retries", "entries", len(entries), "error", err)
}

// flush writes one transaction: hot rows, FTS rows and the stats rollup
// all commit atomically.
func (s *Store) flush(entries []datatypes.LogEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	insertLog, err := tx.Prepare(`INSERT OR REPLACE INTO logs
		(id, source, level, timestamp, message, metadata_json, tags_json, trace_id, created_at, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare logs insert: %w", err)
	}
	defer insertLog.Close()

	deleteFTS, err := tx.Prepare(`DELETE FROM logs_fts WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare fts delete: %w", err)
	}
	defer deleteFTS.Close()

	insertFTS, err := tx.Prepare(`INSERT INTO logs_fts (id, source, message, metadata_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fts insert: %w", err)
	}
	defer insertFTS.Close()

	upsertStats, err := tx.Prepare(`INSERT INTO log_stats (date, source, level, count, total_size)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(date, source, level) DO UPDATE SET
			count = count + 1,
			total_size = total_size + excluded.total_size`)
	if err != nil {
		return fmt.Errorf("prepare stats upsert: %w", err)
	}
	defer upsertStats.Close()

	for i := range entries {
		e := &entries[i]
		metadataJSON, tagsJSON := encodeJSONColumns(e)
		var traceID any
		if e.TraceID != "" {
			traceID = e.TraceID
		}
		if _, err := insertLog.Exec(e.ID, e.Source, e.Level, e.Timestamp, e.Message,
			metadataJSON, tagsJSON, traceID, e.CreatedAt, e.SizeBytes); err != nil {
			return fmt.Errorf("insert %s: %w", e.ID, err)
		}
		if _, err := deleteFTS.Exec(e.ID); err != nil {
			return fmt.Errorf("fts delete %s: %w", e.ID, err)
		}
		if _, err := insertFTS.Exec(e.ID, e.Source, e.Message, metadataJSON); err != nil {
			return fmt.Errorf("fts insert %s: %w", e.ID, err)
		}
		day := time.Unix(int64(e.CreatedAt), 0).UTC().Format("2006-01-02")
		if _, err := upsertStats.Exec(day, e.Source, e.Level, e.SizeBytes); err != nil {
			return fmt.Errorf("stats upsert: %w", err)
		}
	}

	return tx.Commit()
}

// encodeJSONColumns serializes the metadata map and tag list for the
// metadata_json / tags_json columns.
func encodeJSONColumns(e *datatypes.LogEntry) (string, string) {
	metadataJSON := "{}"
	if len(e.Metadata) > 0 {
		if data, err := json.Marshal(e.Metadata); err == nil {
			metadataJSON = string(data)
		}
	}
	tagsJSON := "[]"
	if len(e.Tags) > 0 {
		if data, err := json.Marshal(e.Tags); err == nil {
			tagsJSON = string(data)
		}
	}
	return metadataJSON, tagsJSON
}

// TotalLogs returns the hot-tier row count.
func (s *Store) TotalLogs(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&n)
	return n, err
}

// DiskUsageMB reports the database file size in megabytes, including the
// WAL sidecar.
func (s *Store) DiskUsageMB() float64 {
	var total int64
	for _, p := range []string{s.cfg.Path, s.cfg.Path + "-wal"} {
		if fi, err := os.Stat(p); err == nil {
			total += fi.Size()
		}
	}
	return float64(total) / (1024 * 1024)
}
