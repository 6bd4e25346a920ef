// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func entry(source, level, message string, tags ...string) *LogEntry {
	return &LogEntry{Source: source, Level: level, Message: message, Tags: tags}
}

func TestStreamFilter_EmptyIsWildcard(t *testing.T) {
	f := StreamFilter{}
	assert.True(t, f.Matches(entry("a", LevelDebug, "anything")))
}

func TestStreamFilter_Levels(t *testing.T) {
	f := StreamFilter{Levels: []string{LevelError, LevelFatal}}
	assert.True(t, f.Matches(entry("a", LevelError, "x")))
	assert.True(t, f.Matches(entry("a", LevelFatal, "x")))
	assert.False(t, f.Matches(entry("a", LevelInfo, "x")))
}

func TestStreamFilter_Sources(t *testing.T) {
	f := StreamFilter{Sources: []string{"svc1"}}
	assert.True(t, f.Matches(entry("svc1", LevelInfo, "x")))
	assert.False(t, f.Matches(entry("svc2", LevelInfo, "x")))
}

func TestStreamFilter_PatternIsCaseSensitiveSubstring(t *testing.T) {
	f := StreamFilter{Pattern: "boom"}
	assert.True(t, f.Matches(entry("a", LevelInfo, "silent boom here")))
	assert.False(t, f.Matches(entry("a", LevelInfo, "BOOM")))
	assert.False(t, f.Matches(entry("a", LevelInfo, "ok")))
}

func TestStreamFilter_TagsAnyOverlap(t *testing.T) {
	f := StreamFilter{Tags: []string{"client", "browser"}}
	assert.True(t, f.Matches(entry("a", LevelInfo, "x", "browser")))
	assert.False(t, f.Matches(entry("a", LevelInfo, "x", "file")))
	assert.False(t, f.Matches(entry("a", LevelInfo, "x")))
}

func TestStreamFilter_Conjunction(t *testing.T) {
	f := StreamFilter{Levels: []string{LevelError}, Pattern: "boom"}
	assert.True(t, f.Matches(entry("a", LevelError, "silent boom")))
	assert.False(t, f.Matches(entry("a", LevelInfo, "silent boom")))
	assert.False(t, f.Matches(entry("a", LevelError, "ok")))
}
