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
	"log"

	"github.com/spf13/cobra"

	"github.com/recursivelog/logcollector/cmd/logcollector/config"
)

// cfg is the resolved configuration, loaded once before any command
// runs. Commands read it; only init writes config files.
var cfg config.Config

// --- Global Command Variables ---
var (
	configPath string

	// init flags
	initType  string
	initName  string
	initForce bool

	// start/server/collectors flags
	flagHost       string
	flagPort       int
	flagDB         string
	flagCollectors []string

	// logs flags
	logsSource  string
	logsLevel   string
	logsSince   string
	logsSearch  string
	logsLimit   int
	logsVerbose bool

	// migrate flags
	migrateFromDB string
	migrateToDB   string
	migrateForce  bool

	rootCmd = &cobra.Command{
		Use:   "logcollector",
		Short: "Local-first log collection, storage and analysis for development",
		Long: `logcollector runs a local observability daemon: it captures logs from
your running processes, proxied HTTP traffic, watched files, the process
table and database slow logs, stores them in an indexed SQLite database,
and serves queries and a live stream to clients.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loaded, err := config.Load(configPath)
			if err != nil {
				log.Fatalf("Error loading configuration: %v", err)
			}
			cfg = loaded
		},
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a project config file and default directories",
		Run:   runInit, // Defined in cmd_init.go
	}

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Run the server and the configured collectors in one process",
		Run:   runStart, // Defined in cmd_run.go
	}

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Run the server only",
		Run:   runServer, // Defined in cmd_run.go
	}

	collectorsCmd = &cobra.Command{
		Use:   "collectors",
		Short: "Run collectors only, shipping to a running server",
		Run:   runCollectors, // Defined in cmd_run.go
	}

	daemonCmd = &cobra.Command{
		Use:   "daemon",
		Short: "Like start, but writes a pid file at ./.log_collector/daemon.pid",
		Run:   runDaemon, // Defined in cmd_run.go
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print daemon health and stats",
		Run:   runStatus, // Defined in cmd_status.go
	}

	logsQueryCmd = &cobra.Command{
		Use:   "logs",
		Short: "Query stored log entries",
		Run:   runLogs, // Defined in cmd_logs.go
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Copy all entries from one database file to another, preserving ids",
		Run:   runMigrate, // Defined in cmd_migrate.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (default ./.log_collector/config.yaml)")

	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initType, "type", "webapp",
		"Project type: webapp, api, microservice or desktop")
	initCmd.Flags().StringVar(&initName, "name", "", "Project name (names the database file)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")

	for _, cmd := range []*cobra.Command{startCmd, serverCmd, daemonCmd} {
		cmd.Flags().StringVar(&flagHost, "host", "", "Listen host (overrides config)")
		cmd.Flags().IntVar(&flagPort, "port", 0, "Listen port (overrides config)")
		cmd.Flags().StringVar(&flagDB, "db", "", "Database path (overrides config)")
	}
	for _, cmd := range []*cobra.Command{startCmd, collectorsCmd, daemonCmd} {
		cmd.Flags().StringSliceVar(&flagCollectors, "collectors", nil,
			"Subset of collectors to run (console,http_traffic,file_watcher,process_monitor,db_query)")
	}
	collectorsCmd.Flags().IntVar(&flagPort, "port", 0, "Server port to ship to (overrides config)")
	rootCmd.AddCommand(startCmd, serverCmd, collectorsCmd, daemonCmd)

	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(logsQueryCmd)
	logsQueryCmd.Flags().StringVar(&logsSource, "source", "", "Filter by source collector")
	logsQueryCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by level (DEBUG..FATAL)")
	logsQueryCmd.Flags().StringVar(&logsSince, "since", "1h", "Relative window, e.g. 30m, 2h, 1d")
	logsQueryCmd.Flags().StringVar(&logsSearch, "search", "", "Full-text search expression")
	logsQueryCmd.Flags().IntVar(&logsLimit, "limit", 50, "Maximum entries to print")
	logsQueryCmd.Flags().BoolVar(&logsVerbose, "verbose", false, "Include metadata and ids")

	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateFromDB, "from-db", "", "Source database file")
	migrateCmd.Flags().StringVar(&migrateToDB, "to-db", "", "Destination database file")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "Allow a non-empty destination")
	migrateCmd.MarkFlagRequired("from-db")
	migrateCmd.MarkFlagRequired("to-db")
}
