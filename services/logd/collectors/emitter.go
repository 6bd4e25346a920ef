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
	"log/slog"
	"sync"
	"time"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

const (
	defaultBufferSize    = 100
	defaultFlushInterval = time.Second
)

// Sender ships a finished batch. Satisfied by *Client; tests substitute
// an in-process recorder.
type Sender interface {
	SendBatch(ctx context.Context, entries []datatypes.LogEntry) error
}

// Collector is the shared lifecycle contract. Start blocks until ctx is
// cancelled or the source fails terminally; the collector must drain
// its emitter before returning.
type Collector interface {
	Name() string
	Start(ctx context.Context) error
}

// Emitter is the buffered delivery stage every collector shares: a ring
// of capacity bufferSize flushed when full or on the interval timer.
// A full ring on Emit triggers a synchronous flush, never a drop.
type Emitter struct {
	name   string
	sender Sender
	log    *slog.Logger

	mu  sync.Mutex
	buf []datatypes.LogEntry
	cap int

	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewEmitter builds the delivery stage for one collector. Zero values
// fall back to a 100-entry ring flushed every second.
func NewEmitter(name string, sender Sender, bufferSize int, interval time.Duration, log *slog.Logger) *Emitter {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Emitter{
		name:     name,
		sender:   sender,
		log:      log.With("collector", name),
		buf:      make([]datatypes.LogEntry, 0, bufferSize),
		cap:      bufferSize,
		interval: interval,
		done:     make(chan struct{}),
	}
	e.wg.Add(1)
	go e.flushLoop()
	return e
}

// Emit queues one entry, flushing synchronously first when the ring is
// full.
func (e *Emitter) Emit(entry datatypes.LogEntry) {
	e.mu.Lock()
	if len(e.buf) >= e.cap {
		batch := e.takeLocked()
		e.mu.Unlock()
		e.send(batch)
		e.mu.Lock()
	}
	e.buf = append(e.buf, entry)
	e.mu.Unlock()
	metricEntriesEmitted.WithLabelValues(e.name).Inc()
}

// Flush ships whatever is buffered right now.
func (e *Emitter) Flush() {
	e.mu.Lock()
	batch := e.takeLocked()
	e.mu.Unlock()
	e.send(batch)
}

// Close stops the timer and drains the ring. Idempotent.
func (e *Emitter) Close() {
	e.once.Do(func() {
		close(e.done)
		e.wg.Wait()
		e.Flush()
	})
}

// takeLocked swaps the buffer out. Callers hold e.mu.
func (e *Emitter) takeLocked() []datatypes.LogEntry {
	if len(e.buf) == 0 {
		return nil
	}
	batch := e.buf
	e.buf = make([]datatypes.LogEntry, 0, e.cap)
	return batch
}

func (e *Emitter) send(batch []datatypes.LogEntry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.sender.SendBatch(ctx, batch); err != nil {
		e.log.Warn("batch delivery failed, entries lost", "count", len(batch), "error", err)
	}
}

func (e *Emitter) flushLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Flush()
		case <-e.done:
			return
		}
	}
}
