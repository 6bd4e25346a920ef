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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/recursivelog/logcollector/cmd/logcollector/config"
)

// runInit writes a resolved config for the chosen project type and
// creates the default directories next to it.
func runInit(cmd *cobra.Command, args []string) {
	projectCfg, err := config.ForProject(initType, initName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		os.Exit(1)
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath
	}
	if err := config.Write(path, projectCfg, initForce); err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		os.Exit(1)
	}

	for _, dir := range []string{
		filepath.Dir(projectCfg.Storage.DBPath),
		projectCfg.Collectors.CheckpointDir,
	} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "init failed: create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Initialized %s project config at %s\n", initType, path)
	fmt.Printf("Database: %s\n", projectCfg.Storage.DBPath)
	fmt.Println("Run 'logcollector start' to begin collecting.")
}
