// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import "fmt"

// ProjectTypes lists the init presets.
var ProjectTypes = []string{"webapp", "api", "microservice", "desktop"}

// ForProject returns the default config tuned for a project type. The
// name only affects the storage path so multiple projects can coexist
// under one logs directory.
func ForProject(projectType, name string) (Config, error) {
	cfg := DefaultConfig()
	if name != "" {
		cfg.Storage.DBPath = fmt.Sprintf("./logs/%s.db", name)
	}

	switch projectType {
	case "", "webapp":
		cfg.Collectors.HTTPTraffic.Enabled = true
		cfg.Collectors.HTTPTraffic.Ports = []int{3000}
		cfg.Collectors.FileWatcher.Enabled = true
		cfg.Collectors.FileWatcher.Directories = []string{"./src"}
		cfg.Collectors.FileWatcher.IncludeExtensions = []string{".js", ".ts", ".jsx", ".tsx", ".css", ".html"}
	case "api":
		cfg.Collectors.HTTPTraffic.Enabled = true
		cfg.Collectors.HTTPTraffic.Ports = []int{8000}
		cfg.Collectors.HTTPTraffic.CaptureBody = true
		cfg.Collectors.Database.Enabled = true
	case "microservice":
		cfg.Collectors.HTTPTraffic.Enabled = true
		cfg.Collectors.HTTPTraffic.Ports = []int{8080}
		cfg.Collectors.ProcessMonitor.Enabled = true
	case "desktop":
		cfg.Collectors.ProcessMonitor.Enabled = true
		cfg.Collectors.FileWatcher.Enabled = true
		cfg.Collectors.FileWatcher.Directories = []string{"."}
	default:
		return cfg, fmt.Errorf("config: unknown project type %q (want one of %v)", projectType, ProjectTypes)
	}
	return cfg, nil
}
