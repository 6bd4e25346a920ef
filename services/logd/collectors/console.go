// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collectors

import (
	"bufio"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// restartDelay separates exits from respawns so a crash-looping child
// can't flood the store.
const restartDelay = 2 * time.Second

// ConsoleConfig configures the console collector.
type ConsoleConfig struct {
	// Commands are the child command lines to spawn and supervise, each
	// as argv (program first).
	Commands [][]string

	// Restart respawns a command after it exits. Off by default.
	Restart bool

	BufferSize    int
	FlushInterval time.Duration
}

// ConsoleCollector supervises child processes and converts their output
// streams to entries: stdout lines become INFO, stderr lines ERROR.
type ConsoleCollector struct {
	cfg     ConsoleConfig
	emitter *Emitter
	log     *slog.Logger
}

// NewConsoleCollector builds the collector. sender is the shared RPC
// client.
func NewConsoleCollector(cfg ConsoleConfig, sender Sender, log *slog.Logger) *ConsoleCollector {
	if log == nil {
		log = slog.Default()
	}
	return &ConsoleCollector{
		cfg:     cfg,
		emitter: NewEmitter("console", sender, cfg.BufferSize, cfg.FlushInterval, log),
		log:     log.With("collector", "console"),
	}
}

func (c *ConsoleCollector) Name() string { return "console" }

// Start spawns every configured command and blocks until ctx cancels.
// Children get killed on cancellation via exec's context plumbing; the
// emitter drains before Start returns.
func (c *ConsoleCollector) Start(ctx context.Context) error {
	defer c.emitter.Close()

	var wg sync.WaitGroup
	for _, argv := range c.cfg.Commands {
		if len(argv) == 0 {
			continue
		}
		wg.Add(1)
		go func(argv []string) {
			defer wg.Done()
			c.supervise(ctx, argv)
		}(argv)
	}
	wg.Wait()
	return nil
}

// supervise runs one command, respawning it if Restart is set.
func (c *ConsoleCollector) supervise(ctx context.Context, argv []string) {
	for {
		err := c.runOnce(ctx, argv)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.log.Warn("child process failed", "command", argv[0], "error", err)
			c.emitter.Emit(datatypes.LogEntry{
				Source:  "console",
				Level:   datatypes.LevelError,
				Message: "child process failed: " + err.Error(),
				Metadata: map[string]any{
					"command": strings.Join(argv, " "),
					"stream":  "supervisor",
				},
			})
		}
		if !c.cfg.Restart {
			return
		}
		select {
		case <-time.After(restartDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (c *ConsoleCollector) runOnce(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	command := strings.Join(argv, " ")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	c.log.Info("child process started", "command", command, "pid", cmd.Process.Pid)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.scanStream(bufio.NewScanner(stdout), command, "stdout", datatypes.LevelInfo)
	}()
	go func() {
		defer wg.Done()
		c.scanStream(bufio.NewScanner(stderr), command, "stderr", datatypes.LevelError)
	}()
	wg.Wait()
	return cmd.Wait()
}

// scanStream converts one output stream to entries, line by line.
// Invalid UTF-8 is replaced rather than rejected.
func (c *ConsoleCollector) scanStream(scanner *bufio.Scanner, command, stream, level string) {
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.ToValidUTF8(scanner.Text(), "�")
		if line == "" {
			continue
		}
		c.emitter.Emit(datatypes.LogEntry{
			Source:  "console",
			Level:   level,
			Message: line,
			Metadata: map[string]any{
				"command": command,
				"stream":  stream,
			},
		})
	}
}
