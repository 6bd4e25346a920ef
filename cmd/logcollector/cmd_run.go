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
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/recursivelog/logcollector/pkg/logging"
	"github.com/recursivelog/logcollector/services/logd/analyzer"
	"github.com/recursivelog/logcollector/services/logd/checkpoint"
	"github.com/recursivelog/logcollector/services/logd/collectors"
	"github.com/recursivelog/logcollector/services/logd/server"
	"github.com/recursivelog/logcollector/services/logd/store"
	"github.com/recursivelog/logcollector/services/logd/stream"
)

const pidFilePath = "./.log_collector/daemon.pid"

// runStart runs the server and the configured collectors in one
// process until SIGINT/SIGTERM.
func runStart(cmd *cobra.Command, args []string) {
	applyFlags()
	logger := newProcessLogger("logd")
	defer logger.Close()

	if err := runDaemonProcess(logger.Slog(), true); err != nil {
		log.Fatalf("daemon failed: %v", err)
	}
}

// runServer runs the server without collectors.
func runServer(cmd *cobra.Command, args []string) {
	applyFlags()
	logger := newProcessLogger("logd")
	defer logger.Close()

	if err := runDaemonProcess(logger.Slog(), false); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// runCollectors runs collectors only, shipping to an already-running
// server.
func runCollectors(cmd *cobra.Command, args []string) {
	applyFlags()
	logger := newProcessLogger("collectors")
	defer logger.Close()
	slogger := logger.Slog()

	manager, checkpoints, err := buildCollectors(slogger)
	if err != nil {
		log.Fatalf("collectors failed: %v", err)
	}
	if checkpoints != nil {
		defer checkpoints.Close()
	}
	if len(manager.Names()) == 0 {
		log.Fatalf("no collectors enabled; check the config or --collectors")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slogger.Info("running collectors", "collectors", manager.Names(),
		"server", daemonBaseURL())
	if err := manager.Run(ctx); err != nil {
		log.Fatalf("collectors failed: %v", err)
	}
}

// runDaemon is start plus a pid file.
func runDaemon(cmd *cobra.Command, args []string) {
	applyFlags()
	if err := writePIDFile(); err != nil {
		log.Fatalf("cannot write pid file: %v", err)
	}
	defer os.Remove(pidFilePath)

	logger := newProcessLogger("logd")
	defer logger.Close()

	if err := runDaemonProcess(logger.Slog(), true); err != nil {
		log.Fatalf("daemon failed: %v", err)
	}
}

// runDaemonProcess owns the component lifecycle: store, analyzer,
// streamer, server and optionally collectors, torn down in reverse
// order on signal.
func runDaemonProcess(slogger *slog.Logger, withCollectors bool) error {
	st, err := store.New(store.Config{
		Path:           cfg.Storage.DBPath,
		MaxSizeMB:      cfg.Storage.MaxSizeMB,
		MaxDays:        cfg.Storage.MaxDays,
		BatchSize:      cfg.Storage.BatchSize,
		BatchTimeout:   time.Duration(cfg.Storage.BatchTimeout * float64(time.Second)),
		VacuumInterval: time.Duration(cfg.Storage.VacuumInterval) * time.Second,
		Logger:         slogger,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	an := analyzer.New(analyzer.Config{
		ErrorSpikeThreshold:    cfg.Alerts.ErrorSpikeThreshold,
		ErrorSpikeWindow:       time.Duration(cfg.Alerts.ErrorSpikeWindow) * time.Second,
		SlowResponseMultiplier: cfg.Alerts.SlowResponseMultiplier,
	})
	streamer := stream.NewStreamer(slogger)

	srv := server.New(server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		CORSEnabled:    cfg.Server.CORSEnabled,
		AuthToken:      cfg.Server.AuthToken,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		MaxConnections: cfg.Server.MaxConnections,
		Alerts: analyzer.NotifyConfig{
			Channels:     cfg.Alerts.Channels,
			WebhookURL:   cfg.Alerts.WebhookURL,
			SlackToken:   cfg.Alerts.SlackToken,
			SlackChannel: cfg.Alerts.SlackChannel,
		},
	}, st, an, streamer, slogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })

	if withCollectors {
		manager, checkpoints, err := buildCollectors(slogger)
		if err != nil {
			return err
		}
		if checkpoints != nil {
			defer checkpoints.Close()
		}
		if len(manager.Names()) > 0 {
			slogger.Info("starting collectors", "collectors", manager.Names())
			g.Go(func() error { return manager.Run(ctx) })
		}
	}

	return g.Wait()
}

// buildCollectors assembles the enabled collectors, filtered down to
// --collectors when given. The shared checkpoint store may be nil.
func buildCollectors(slogger *slog.Logger) (*collectors.Manager, *checkpoint.Store, error) {
	var checkpoints *checkpoint.Store
	if cfg.Collectors.CheckpointDir != "" {
		var err error
		checkpoints, err = checkpoint.Open(checkpoint.Config{
			Path:   cfg.Collectors.CheckpointDir,
			Logger: slogger,
		})
		if err != nil {
			// Collectors degrade to stateless tails rather than fail.
			slogger.Warn("checkpoint store unavailable", "error", err)
			checkpoints = nil
		}
	}

	sender := collectors.NewClient(collectors.ClientConfig{
		BaseURL:   daemonBaseURL(),
		AuthToken: cfg.Server.AuthToken,
		Logger:    slogger,
	})

	var set []collectors.Collector
	if cfg.Collectors.Console.Enabled && collectorSelected("console") {
		set = append(set, collectors.NewConsoleCollector(collectors.ConsoleConfig{
			Commands: cfg.Collectors.Console.Commands,
			Restart:  cfg.Collectors.Console.Restart,
		}, sender, slogger))
	}
	if cfg.Collectors.HTTPTraffic.Enabled && collectorSelected("http_traffic") {
		set = append(set, collectors.NewHTTPTrafficCollector(collectors.HTTPTrafficConfig{
			Ports:           cfg.Collectors.HTTPTraffic.Ports,
			ProxyPortOffset: cfg.Collectors.HTTPTraffic.ProxyPortOffset,
			CaptureBody:     cfg.Collectors.HTTPTraffic.CaptureBody,
			MaxBodySize:     cfg.Collectors.HTTPTraffic.MaxBodySize,
			IgnorePaths:     cfg.Collectors.HTTPTraffic.IgnorePaths,
		}, sender, slogger))
	}
	if cfg.Collectors.FileWatcher.Enabled && collectorSelected("file_watcher") {
		set = append(set, collectors.NewFileWatcherCollector(collectors.FileWatcherConfig{
			Directories:       cfg.Collectors.FileWatcher.Directories,
			IgnorePatterns:    cfg.Collectors.FileWatcher.IgnorePatterns,
			IncludeExtensions: cfg.Collectors.FileWatcher.IncludeExtensions,
		}, sender, slogger))
	}
	if cfg.Collectors.ProcessMonitor.Enabled && collectorSelected("process_monitor") {
		set = append(set, collectors.NewProcessMonitorCollector(collectors.ProcessMonitorConfig{
			CheckInterval: time.Duration(cfg.Collectors.ProcessMonitor.CheckInterval) * time.Second,
		}, sender, checkpoints, slogger))
	}
	if cfg.Collectors.Database.Enabled && collectorSelected("db_query") {
		set = append(set, collectors.NewDBQueryCollector(collectors.DBQueryConfig{
			LogFiles:             cfg.Collectors.Database.LogFiles,
			SlowQueryThresholdMS: cfg.Collectors.Database.SlowQueryThresholdMS,
		}, sender, checkpoints, slogger))
	}

	return collectors.NewManager(slogger, set...), checkpoints, nil
}

// collectorSelected reports whether name passes the --collectors
// filter. An empty filter selects everything enabled.
func collectorSelected(name string) bool {
	if len(flagCollectors) == 0 {
		return true
	}
	for _, want := range flagCollectors {
		if want == name {
			return true
		}
	}
	return false
}

// applyFlags layers command-line overrides onto the loaded config.
func applyFlags() {
	if flagHost != "" {
		cfg.Server.Host = flagHost
	}
	if flagPort > 0 {
		cfg.Server.Port = flagPort
	}
	if flagDB != "" {
		cfg.Storage.DBPath = flagDB
	}
}

// daemonBaseURL is where clients (collectors, status, logs) reach the
// daemon. A wildcard listen host maps to loopback.
func daemonBaseURL() string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

func newProcessLogger(service string) *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.LogDir,
		Service: service,
	})
}

func writePIDFile() error {
	if err := os.MkdirAll(filepath.Dir(pidFilePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}
