// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collectors

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/recursivelog/logcollector/services/logd/checkpoint"
	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

const (
	tailPollInterval = time.Second
	maxQueryLength   = 500
)

// durationPattern matches the PostgreSQL statement-duration log form:
// "duration: 123.456 ms  statement: SELECT ...". MySQL's slow query log
// uses "Query_time: 1.23" which the second pattern covers.
var (
	pgDurationPattern    = regexp.MustCompile(`duration:\s+([\d.]+)\s*ms(?:\s+(?:statement|execute [^:]*):\s*(.*))?`)
	mysqlDurationPattern = regexp.MustCompile(`Query_time:\s+([\d.]+)`)
)

// DBQueryConfig configures the DB query collector.
type DBQueryConfig struct {
	// LogFiles maps a database log file path to its vendor ("postgresql"
	// or "mysql").
	LogFiles map[string]string

	// SlowQueryThresholdMS marks queries at or above this duration as
	// slow. Default 100.
	SlowQueryThresholdMS float64

	BufferSize    int
	FlushInterval time.Duration
}

// DBQueryCollector tails database log files, parses statement durations
// and emits one entry per parsed query.
type DBQueryCollector struct {
	cfg         DBQueryConfig
	emitter     *Emitter
	log         *slog.Logger
	checkpoints *checkpoint.Store
}

// NewDBQueryCollector builds the collector. checkpoints may be nil; the
// tail then starts at end-of-file on every run.
func NewDBQueryCollector(cfg DBQueryConfig, sender Sender, checkpoints *checkpoint.Store, log *slog.Logger) *DBQueryCollector {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SlowQueryThresholdMS <= 0 {
		cfg.SlowQueryThresholdMS = 100
	}
	return &DBQueryCollector{
		cfg:         cfg,
		emitter:     NewEmitter("db_query", sender, cfg.BufferSize, cfg.FlushInterval, log),
		log:         log.With("collector", "db_query"),
		checkpoints: checkpoints,
	}
}

func (c *DBQueryCollector) Name() string { return "db_query" }

// Start tails every configured file until ctx cancels. A missing file
// is retried on the poll interval rather than failing the collector.
func (c *DBQueryCollector) Start(ctx context.Context) error {
	defer c.emitter.Close()

	var wg sync.WaitGroup
	for file, dbType := range c.cfg.LogFiles {
		wg.Add(1)
		go func(file, dbType string) {
			defer wg.Done()
			c.tail(ctx, file, dbType)
		}(file, dbType)
	}
	wg.Wait()
	return nil
}

// tail polls one file for appended lines, resuming from the last
// checkpointed offset. Truncation (log rotation) resets to the start.
func (c *DBQueryCollector) tail(ctx context.Context, file, dbType string) {
	offset := c.loadOffset(file)
	var partial strings.Builder

	ticker := time.NewTicker(tailPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.saveOffset(file, offset)
			return
		case <-ticker.C:
		}

		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.Size() < offset {
			// Rotated or truncated.
			offset = 0
			partial.Reset()
		}
		if info.Size() == offset {
			continue
		}

		n, err := c.readFrom(file, offset, &partial, dbType)
		if err != nil {
			c.log.Warn("tail read failed", "file", file, "error", err)
			continue
		}
		offset += n
		c.saveOffset(file, offset)
	}
}

// readFrom consumes appended bytes, emitting an entry per complete line
// that parses as a query record. Returns how many bytes were consumed.
func (c *DBQueryCollector) readFrom(file string, offset int64, partial *strings.Builder, dbType string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(f)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}

	chunk := partial.String() + string(data)
	partial.Reset()
	lines := strings.Split(chunk, "\n")
	// The last element is an incomplete line; keep it for the next poll.
	partial.WriteString(lines[len(lines)-1])
	for _, line := range lines[:len(lines)-1] {
		c.parseLine(line, dbType)
	}
	return int64(len(data)), nil
}

// parseLine extracts a duration record from one log line.
func (c *DBQueryCollector) parseLine(line, dbType string) {
	var durationMS float64
	var query string

	switch dbType {
	case "mysql":
		m := mysqlDurationPattern.FindStringSubmatch(line)
		if m == nil {
			return
		}
		secs, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return
		}
		durationMS = secs * 1000
	default:
		m := pgDurationPattern.FindStringSubmatch(line)
		if m == nil {
			return
		}
		var err error
		durationMS, err = strconv.ParseFloat(m[1], 64)
		if err != nil {
			return
		}
		if len(m) > 2 {
			query = strings.TrimSpace(m[2])
		}
	}

	if len(query) > maxQueryLength {
		query = query[:maxQueryLength]
	}
	slow := durationMS >= c.cfg.SlowQueryThresholdMS
	level := datatypes.LevelInfo
	if slow {
		level = datatypes.LevelWarn
	}

	c.emitter.Emit(datatypes.LogEntry{
		Source:  "db_query",
		Level:   level,
		Message: queryMessage(query, durationMS),
		Metadata: map[string]any{
			"query":       query,
			"duration_ms": durationMS,
			"db_type":     dbType,
			"slow_query":  slow,
		},
		Tags: []string{"database", dbType},
	})
}

func queryMessage(query string, durationMS float64) string {
	if query == "" {
		return "query took " + strconv.FormatFloat(durationMS, 'f', 2, 64) + " ms"
	}
	return query
}

func (c *DBQueryCollector) loadOffset(file string) int64 {
	// Without a checkpoint, start at the end: old entries were either
	// shipped by a previous run or predate the daemon.
	fallback := int64(0)
	if info, err := os.Stat(file); err == nil {
		fallback = info.Size()
	}
	if c.checkpoints == nil {
		return fallback
	}
	offset, err := c.checkpoints.Offset(file)
	if err != nil {
		return fallback
	}
	return offset
}

func (c *DBQueryCollector) saveOffset(file string, offset int64) {
	if c.checkpoints == nil {
		return
	}
	if err := c.checkpoints.SetOffset(file, offset); err != nil {
		c.log.Warn("cannot checkpoint tail offset", "file", file, "error", err)
	}
}
