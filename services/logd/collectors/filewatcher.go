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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// FileWatcherConfig configures the file watcher collector.
type FileWatcherConfig struct {
	// Directories are watched recursively. Subdirectories created later
	// are picked up as they appear.
	Directories []string

	// IgnorePatterns are shell patterns matched against the base name
	// ("*.tmp", ".git").
	IgnorePatterns []string

	// IncludeExtensions restricts events to these extensions (with or
	// without the leading dot). Empty means all files.
	IncludeExtensions []string

	BufferSize    int
	FlushInterval time.Duration
}

// FileWatcherCollector emits an entry per create/modify/delete event
// under the watched trees.
type FileWatcherCollector struct {
	cfg     FileWatcherConfig
	emitter *Emitter
	log     *slog.Logger
}

// NewFileWatcherCollector builds the collector.
func NewFileWatcherCollector(cfg FileWatcherConfig, sender Sender, log *slog.Logger) *FileWatcherCollector {
	if log == nil {
		log = slog.Default()
	}
	for i, ext := range cfg.IncludeExtensions {
		if !strings.HasPrefix(ext, ".") {
			cfg.IncludeExtensions[i] = "." + ext
		}
	}
	return &FileWatcherCollector{
		cfg:     cfg,
		emitter: NewEmitter("file_watcher", sender, cfg.BufferSize, cfg.FlushInterval, log),
		log:     log.With("collector", "file_watcher"),
	}
}

func (c *FileWatcherCollector) Name() string { return "file_watcher" }

// Start watches until ctx cancels.
func (c *FileWatcherCollector) Start(ctx context.Context) error {
	defer c.emitter.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, dir := range c.cfg.Directories {
		if err := c.watchTree(watcher, dir); err != nil {
			c.log.Warn("cannot watch directory", "dir", dir, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			c.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("watcher error", "error", err)
		}
	}
}

// watchTree registers dir and every subdirectory.
func (c *FileWatcherCollector) watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if c.ignored(filepath.Base(path)) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func (c *FileWatcherCollector) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	action := eventAction(event)
	if action == "" {
		return
	}

	info, statErr := os.Stat(event.Name)

	// New directories join the watch; directory events themselves are
	// not logged.
	if statErr == nil && info.IsDir() {
		if action == "create" && !c.ignored(filepath.Base(event.Name)) {
			if err := c.watchTree(watcher, event.Name); err != nil {
				c.log.Warn("cannot watch new directory", "dir", event.Name, "error", err)
			}
		}
		return
	}

	base := filepath.Base(event.Name)
	if c.ignored(base) {
		return
	}
	ext := filepath.Ext(base)
	if len(c.cfg.IncludeExtensions) > 0 && !containsExt(c.cfg.IncludeExtensions, ext) {
		return
	}

	metadata := map[string]any{
		"action":    action,
		"file_path": event.Name,
	}
	if statErr == nil {
		metadata["size"] = info.Size()
		metadata["modified_time"] = info.ModTime().UTC().Format(datatypes.TimestampFormat)
	}

	c.emitter.Emit(datatypes.LogEntry{
		Source:   "file_watcher",
		Level:    datatypes.LevelInfo,
		Message:  action + " " + event.Name,
		Metadata: metadata,
		Tags:     []string{"file", action, strings.TrimPrefix(ext, ".")},
	})
}

func (c *FileWatcherCollector) ignored(base string) bool {
	for _, pattern := range c.cfg.IgnorePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func containsExt(exts []string, ext string) bool {
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// eventAction collapses fsnotify's op bitmask to the three actions the
// schema records. Rename counts as delete of the old path.
func eventAction(event fsnotify.Event) string {
	switch {
	case event.Op.Has(fsnotify.Create):
		return "create"
	case event.Op.Has(fsnotify.Write):
		return "modify"
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		return "delete"
	default:
		return ""
	}
}
