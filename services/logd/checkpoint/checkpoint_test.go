// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOffset_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Offset("/var/log/postgresql.log")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetOffset("/var/log/postgresql.log", 12345))
	off, err := s.Offset("/var/log/postgresql.log")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), off)

	// Overwrite wins.
	require.NoError(t, s.SetOffset("/var/log/postgresql.log", 99))
	off, err = s.Offset("/var/log/postgresql.log")
	require.NoError(t, err)
	assert.Equal(t, int64(99), off)
}

func TestOffset_PerFileIsolation(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetOffset("a.log", 1))
	require.NoError(t, s.SetOffset("b.log", 2))

	off, err := s.Offset("a.log")
	require.NoError(t, err)
	assert.Equal(t, int64(1), off)
}

func TestBaseline_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Baseline("process_monitor")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetBaseline("process_monitor", []byte(`{"pids":[1,2]}`)))
	data, err := s.Baseline("process_monitor")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pids":[1,2]}`, string(data))
}

func TestPersistence_AcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Path: dir, GCInterval: -1})
	require.NoError(t, err)
	require.NoError(t, s.SetOffset("x.log", 7))
	require.NoError(t, s.Close())

	s2, err := Open(Config{Path: dir, GCInterval: -1})
	require.NoError(t, err)
	defer s2.Close()
	off, err := s2.Offset("x.log")
	require.NoError(t, err)
	assert.Equal(t, int64(7), off)
}
