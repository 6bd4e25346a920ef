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

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeBound interprets a query time bound. Two forms are accepted:
//
//   - a relative duration: "30s", "5m", "2h", "3d", resolved as
//     now minus the duration
//   - an absolute ISO-8601 / RFC 3339 timestamp
//
// Both `since` and `until` use this parser; `until` left empty simply
// means "now" and callers skip the bound entirely.
func ParseTimeBound(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time bound")
	}

	if d, ok := parseRelative(s); ok {
		return now.Add(-d), nil
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time bound %q", s)
}

// parseRelative handles the "<number><unit>" form with units s, m, h, d.
// "d" is not a time.ParseDuration unit, hence the hand parse.
func parseRelative(s string) (time.Duration, bool) {
	if len(s) < 2 {
		return 0, false
	}
	unit := s[len(s)-1]
	n, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil || n < 0 {
		return 0, false
	}
	switch unit {
	case 's':
		return time.Duration(n * float64(time.Second)), true
	case 'm':
		return time.Duration(n * float64(time.Minute)), true
	case 'h':
		return time.Duration(n * float64(time.Hour)), true
	case 'd':
		return time.Duration(n * 24 * float64(time.Hour)), true
	}
	return 0, false
}
