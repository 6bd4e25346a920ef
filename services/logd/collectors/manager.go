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
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Manager runs a set of collectors concurrently. One collector failing
// is logged and does not stop the others; Run returns when every
// collector has stopped.
type Manager struct {
	collectors []Collector
	log        *slog.Logger
}

// NewManager composes the given collectors.
func NewManager(log *slog.Logger, collectors ...Collector) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{collectors: collectors, log: log}
}

// Names lists the managed collectors.
func (m *Manager) Names() []string {
	names := make([]string, len(m.collectors))
	for i, c := range m.collectors {
		names[i] = c.Name()
	}
	return names
}

// Run starts every collector and blocks until ctx cancels and all of
// them have drained.
func (m *Manager) Run(ctx context.Context) error {
	if len(m.collectors) == 0 {
		<-ctx.Done()
		return nil
	}

	g := new(errgroup.Group)
	for _, c := range m.collectors {
		c := c
		g.Go(func() error {
			m.log.Info("collector starting", "collector", c.Name())
			if err := c.Start(ctx); err != nil {
				m.log.Error("collector failed", "collector", c.Name(), "error", err)
			}
			m.log.Info("collector stopped", "collector", c.Name())
			return nil
		})
	}
	return g.Wait()
}
