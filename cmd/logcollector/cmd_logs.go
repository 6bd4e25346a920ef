// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// ANSI colors keyed by level, used only on a terminal.
var levelColors = map[string]string{
	datatypes.LevelDebug: "\033[90m",
	datatypes.LevelInfo:  "\033[36m",
	datatypes.LevelWarn:  "\033[33m",
	datatypes.LevelError: "\033[31m",
	datatypes.LevelFatal: "\033[35m",
}

const colorReset = "\033[0m"

// runLogs queries the daemon and prints matching entries, newest last.
func runLogs(cmd *cobra.Command, args []string) {
	params := map[string]any{
		"since": logsSince,
		"limit": logsLimit,
	}
	if logsSource != "" {
		params["sources"] = []string{logsSource}
	}
	if logsLevel != "" {
		params["levels"] = []string{strings.ToUpper(logsLevel)}
	}
	if logsSearch != "" {
		params["search"] = logsSearch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result struct {
		Logs  []datatypes.LogEntry `json:"logs"`
		Count int                  `json:"count"`
	}
	if err := rpcClient().Call(ctx, "query", params, &result); err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		os.Exit(1)
	}

	if result.Count == 0 {
		fmt.Println("no matching entries")
		return
	}

	pretty := isatty.IsTerminal(os.Stdout.Fd())
	// Oldest first reads like a log file.
	for i := len(result.Logs) - 1; i >= 0; i-- {
		printEntry(result.Logs[i], pretty, logsVerbose)
	}
	fmt.Printf("\n%d entries\n", result.Count)
}

func printEntry(e datatypes.LogEntry, pretty, verbose bool) {
	ts := e.Timestamp
	if t, err := time.Parse(datatypes.TimestampFormat, ts); err == nil {
		ts = t.Local().Format("15:04:05")
	}

	level := fmt.Sprintf("%-5s", e.Level)
	if pretty {
		if color, ok := levelColors[e.Level]; ok {
			level = color + level + colorReset
		}
	}
	fmt.Printf("%s %s [%s] %s\n", ts, level, e.Source, e.Message)

	if verbose {
		fmt.Printf("    id=%s", e.ID)
		if e.TraceID != "" {
			fmt.Printf(" trace_id=%s", e.TraceID)
		}
		if len(e.Tags) > 0 {
			fmt.Printf(" tags=%s", strings.Join(e.Tags, ","))
		}
		fmt.Println()
		if len(e.Metadata) > 0 {
			if data, err := json.Marshal(e.Metadata); err == nil {
				fmt.Printf("    %s\n", data)
			}
		}
	}
}
