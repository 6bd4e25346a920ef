// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "strings"

// StreamFilter is the predicate attached to a WebSocket subscription.
//
// Missing or empty fields are wildcards. A populated field constrains the
// entry: Levels and Sources are allow-lists, Pattern is a case-sensitive
// substring of the message, and Tags matches on any overlap with the
// entry's tag list. All populated fields must match (conjunction).
type StreamFilter struct {
	Levels  []string `json:"levels,omitempty"`
	Sources []string `json:"sources,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Matches evaluates the predicate against an entry. Pure function: no
// state, safe for concurrent use.
func (f *StreamFilter) Matches(e *LogEntry) bool {
	if len(f.Levels) > 0 && !containsString(f.Levels, e.Level) {
		return false
	}
	if len(f.Sources) > 0 && !containsString(f.Sources, e.Source) {
		return false
	}
	if f.Pattern != "" && !strings.Contains(e.Message, f.Pattern) {
		return false
	}
	if len(f.Tags) > 0 && !anyOverlap(f.Tags, e.Tags) {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func anyOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
