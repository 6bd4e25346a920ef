// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collectors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCollector struct {
	name    string
	failure error
	started atomic.Bool
}

func (s *stubCollector) Name() string { return s.name }

func (s *stubCollector) Start(ctx context.Context) error {
	s.started.Store(true)
	if s.failure != nil {
		return s.failure
	}
	<-ctx.Done()
	return nil
}

func TestManager_Names(t *testing.T) {
	m := NewManager(nil,
		&stubCollector{name: "console"},
		&stubCollector{name: "file_watcher"},
	)
	assert.Equal(t, []string{"console", "file_watcher"}, m.Names())
}

func TestManager_RunStartsAllAndStopsOnCancel(t *testing.T) {
	a := &stubCollector{name: "a"}
	b := &stubCollector{name: "b"}
	m := NewManager(nil, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return a.started.Load() && b.started.Load()
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop after cancellation")
	}
}

func TestManager_OneFailureDoesNotStopOthers(t *testing.T) {
	failing := &stubCollector{name: "broken", failure: errors.New("bind refused")}
	healthy := &stubCollector{name: "healthy"}
	m := NewManager(nil, failing, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool { return healthy.started.Load() }, time.Second, 10*time.Millisecond)
	// The failing collector returned already; the healthy one keeps running.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("manager stopped while a collector was still running")
	default:
	}

	cancel()
	require.NoError(t, <-done)
}

func TestManager_EmptySetWaitsForContext(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, m.Run(ctx))
}
