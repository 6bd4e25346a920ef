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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/recursivelog/logcollector/services/logd/checkpoint"
	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// Threshold constants for the resource signals. CPU alerts only on a
// rising edge so a pegged process doesn't alert on every poll.
const (
	cpuHighPct       = 80.0
	cpuLowPct        = 50.0
	memGrowthFactor  = 1.5
	procmonBaseline  = "process_monitor"
	defaultProcCheck = 5 * time.Second
)

// ProcessMonitorConfig configures the process monitor collector.
type ProcessMonitorConfig struct {
	// CheckInterval is the poll period. Default 5s.
	CheckInterval time.Duration

	BufferSize    int
	FlushInterval time.Duration
}

// procSnapshot is what the monitor remembers about one process between
// polls. Persisted to the checkpoint store so a daemon restart doesn't
// report every running process as newly started.
type procSnapshot struct {
	Name   string  `json:"name"`
	CPUPct float64 `json:"cpu_pct"`
	RSS    uint64  `json:"rss"`
}

// ProcessMonitorCollector polls the system process table and emits
// events for process starts, stops, CPU spikes and memory growth.
type ProcessMonitorCollector struct {
	cfg         ProcessMonitorConfig
	emitter     *Emitter
	log         *slog.Logger
	checkpoints *checkpoint.Store

	known map[int32]procSnapshot
}

// NewProcessMonitorCollector builds the collector. checkpoints may be
// nil; the baseline then lives only in memory.
func NewProcessMonitorCollector(cfg ProcessMonitorConfig, sender Sender, checkpoints *checkpoint.Store, log *slog.Logger) *ProcessMonitorCollector {
	if log == nil {
		log = slog.Default()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultProcCheck
	}
	return &ProcessMonitorCollector{
		cfg:         cfg,
		emitter:     NewEmitter("process_monitor", sender, cfg.BufferSize, cfg.FlushInterval, log),
		log:         log.With("collector", "process_monitor"),
		checkpoints: checkpoints,
		known:       make(map[int32]procSnapshot),
	}
}

func (c *ProcessMonitorCollector) Name() string { return "process_monitor" }

// Start polls until ctx cancels. The first poll seeds the baseline
// (from the checkpoint store when available) and emits nothing.
func (c *ProcessMonitorCollector) Start(ctx context.Context) error {
	defer c.emitter.Close()

	seeded := c.loadBaseline()
	if !seeded {
		if err := c.poll(ctx, false); err != nil {
			c.log.Warn("initial process scan failed", "error", err)
		}
	}

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.saveBaseline()
			return nil
		case <-ticker.C:
			if err := c.poll(ctx, true); err != nil {
				c.log.Warn("process scan failed", "error", err)
			}
		}
	}
}

// poll diffs the process table against the previous snapshot.
func (c *ProcessMonitorCollector) poll(ctx context.Context, emit bool) error {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return err
	}

	current := make(map[int32]procSnapshot, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		snap := procSnapshot{Name: name}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			snap.CPUPct = cpu
		}
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			snap.RSS = mem.RSS
		}
		current[p.Pid] = snap

		if !emit {
			continue
		}
		prev, existed := c.known[p.Pid]
		switch {
		case !existed:
			c.emitEvent("process_start", p.Pid, snap, datatypes.LevelInfo, nil)
		case snap.CPUPct > cpuHighPct && prev.CPUPct < cpuLowPct:
			c.emitEvent("high_cpu", p.Pid, snap, datatypes.LevelWarn, map[string]any{
				"previous_cpu_pct": prev.CPUPct,
			})
		case prev.RSS > 0 && float64(snap.RSS) > float64(prev.RSS)*memGrowthFactor:
			c.emitEvent("memory_growth", p.Pid, snap, datatypes.LevelWarn, map[string]any{
				"previous_rss": prev.RSS,
			})
		}
	}

	if emit {
		for pid, prev := range c.known {
			if _, alive := current[pid]; !alive {
				c.emitEvent("process_stop", pid, prev, datatypes.LevelInfo, nil)
			}
		}
	}

	c.known = current
	return nil
}

func (c *ProcessMonitorCollector) emitEvent(event string, pid int32, snap procSnapshot, level string, extra map[string]any) {
	metadata := map[string]any{
		"event":   event,
		"pid":     pid,
		"name":    snap.Name,
		"cpu_pct": snap.CPUPct,
		"rss":     snap.RSS,
	}
	for k, v := range extra {
		metadata[k] = v
	}
	c.emitter.Emit(datatypes.LogEntry{
		Source:   "process_monitor",
		Level:    level,
		Message:  fmt.Sprintf("%s: %s (pid %d)", event, snap.Name, pid),
		Metadata: metadata,
		Tags:     []string{"process", event},
	})
}

// loadBaseline restores the last persisted snapshot table. Reports
// whether a baseline was found.
func (c *ProcessMonitorCollector) loadBaseline() bool {
	if c.checkpoints == nil {
		return false
	}
	data, err := c.checkpoints.Baseline(procmonBaseline)
	if err != nil {
		return false
	}
	var known map[int32]procSnapshot
	if err := json.Unmarshal(data, &known); err != nil {
		c.log.Warn("discarding corrupt process baseline", "error", err)
		return false
	}
	c.known = known
	return true
}

func (c *ProcessMonitorCollector) saveBaseline() {
	if c.checkpoints == nil {
		return
	}
	data, err := json.Marshal(c.known)
	if err != nil {
		return
	}
	if err := c.checkpoints.SetBaseline(procmonBaseline, data); err != nil {
		c.log.Warn("cannot persist process baseline", "error", err)
	}
}
