// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint persists small pieces of collector state across
// daemon restarts: tail offsets for the DB-log collector and process
// baselines for the monitor. Backed by BadgerDB so a crash mid-write
// never corrupts the state.
package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a key has never been checkpointed.
var ErrNotFound = errors.New("checkpoint: not found")

// Config holds the store's settings.
type Config struct {
	// Path is the directory for the database files. Ignored when
	// InMemory is set.
	Path string

	// InMemory disables persistence. For tests.
	InMemory bool

	// GCInterval is how often value-log garbage collection runs.
	// Default 5 minutes; 0 disables it.
	GCInterval time.Duration

	// Logger receives the backend's own log output. Nil silences it.
	Logger *slog.Logger
}

// Store is a durable key/value checkpoint store.
type Store struct {
	db   *badger.DB
	log  *slog.Logger
	done chan struct{}
	gcWG chan struct{}
}

// badgerLogger adapts slog to the backend's logger interface.
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

// Open opens (or creates) the checkpoint store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("checkpoint: path required for a persistent store")
	}
	if cfg.GCInterval == 0 && !cfg.InMemory {
		cfg.GCInterval = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("checkpoint: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(false).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{log: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open: %w", err)
	}

	s := &Store{
		db:   db,
		log:  cfg.Logger,
		done: make(chan struct{}),
		gcWG: make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.gcLoop(cfg.GCInterval)
	} else {
		close(s.gcWG)
	}
	return s, nil
}

// gcLoop periodically reclaims value-log space.
func (s *Store) gcLoop(interval time.Duration) {
	defer close(s.gcWG)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// Each call collects at most one file; loop until clean.
			for s.db.RunValueLogGC(0.5) == nil {
			}
		case <-s.done:
			return
		}
	}
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	close(s.done)
	<-s.gcWG
	return s.db.Close()
}

// SetOffset records the tail position for a file.
func (s *Store) SetOffset(file string, offset int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(offset))
	return s.set("offset/"+file, buf[:])
}

// Offset returns the recorded tail position for a file, ErrNotFound if
// the file was never tailed.
func (s *Store) Offset(file string) (int64, error) {
	val, err := s.get("offset/" + file)
	if err != nil {
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("checkpoint: corrupt offset for %s", file)
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}

// SetBaseline stores an opaque collector baseline blob under name.
func (s *Store) SetBaseline(name string, data []byte) error {
	return s.set("baseline/"+name, data)
}

// Baseline returns the blob stored under name, ErrNotFound when absent.
func (s *Store) Baseline(name string) ([]byte, error) {
	return s.get("baseline/" + name)
}

func (s *Store) set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *Store) get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}
