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

	"github.com/spf13/cobra"

	"github.com/recursivelog/logcollector/services/logd/store"
)

// runMigrate copies every entry (hot and archive) from one database
// file to another, preserving ids.
func runMigrate(cmd *cobra.Command, args []string) {
	if migrateFromDB == migrateToDB {
		fmt.Fprintln(os.Stderr, "migrate: --from-db and --to-db are the same file")
		os.Exit(1)
	}
	if _, err := os.Stat(migrateFromDB); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: source %s: %v\n", migrateFromDB, err)
		os.Exit(1)
	}

	src, err := store.New(store.Config{Path: migrateFromDB})
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: open source: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	dst, err := store.New(store.Config{Path: migrateToDB})
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: open destination: %v\n", err)
		os.Exit(1)
	}
	defer dst.Close()

	ctx := context.Background()
	if !migrateForce {
		total, err := dst.TotalLogs(ctx)
		if err == nil && total > 0 {
			fmt.Fprintf(os.Stderr,
				"migrate: destination already holds %d entries (use --force to merge)\n", total)
			os.Exit(1)
		}
	}

	copied, err := src.CopyAllTo(ctx, dst)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Migrated %d entries from %s to %s\n", copied, migrateFromDB, migrateToDB)
}
