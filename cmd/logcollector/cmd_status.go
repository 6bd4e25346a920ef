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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/recursivelog/logcollector/services/logd/collectors"
	"github.com/recursivelog/logcollector/services/logd/store"
)

// systemStatus mirrors the get_system_status result.
type systemStatus struct {
	Status        string  `json:"status"`
	TotalLogs     int64   `json:"total_logs"`
	DiskUsageMB   float64 `json:"disk_usage_mb"`
	MemoryUsageMB float64 `json:"memory_usage_mb"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	LastCheck     string  `json:"last_check"`
}

// runStatus prints daemon health and stats. Exits 1 when the daemon is
// unreachable or degraded.
func runStatus(cmd *cobra.Command, args []string) {
	client := rpcClient()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var status systemStatus
	if err := client.Call(ctx, "get_system_status", nil, &status); err != nil {
		fmt.Fprintf(os.Stderr, "daemon unreachable at %s: %v\n", daemonBaseURL(), err)
		os.Exit(1)
	}

	fmt.Printf("Status:     %s\n", status.Status)
	fmt.Printf("Server:     %s\n", daemonBaseURL())
	fmt.Printf("Total logs: %d\n", status.TotalLogs)
	fmt.Printf("Disk:       %.1f MB\n", status.DiskUsageMB)
	fmt.Printf("Memory:     %.1f MB\n", status.MemoryUsageMB)
	fmt.Printf("Uptime:     %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())

	var stats store.StatsResult
	if err := client.Call(ctx, "get_stats", map[string]any{"timerange": "24h"}, &stats); err == nil {
		fmt.Printf("\nLast 24h: %d entries from %d sources\n",
			stats.Basic.TotalLogs, stats.Basic.UniqueSources)
		for _, row := range stats.TopErrors {
			fmt.Printf("  %5d  %s\n", row.Count, truncate(row.Message, 80))
		}
	}

	if status.Status != "healthy" {
		os.Exit(1)
	}
}

// rpcClient builds the one-shot client the status/logs commands use.
func rpcClient() *collectors.Client {
	return collectors.NewClient(collectors.ClientConfig{
		BaseURL:    daemonBaseURL(),
		AuthToken:  cfg.Server.AuthToken,
		RetryCount: 1,
		RetryDelay: 200 * time.Millisecond,
		Timeout:    5 * time.Second,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
