// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for heavon.
//
// Configuration lives in a TOML file with sensible defaults, environment
// variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ProviderConfig: Completion endpoints, identifying headers, throttling
//   - StorageConfig: Which persistence driver holds chats and settings
//   - LogConfig: Log level, format and destination
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (HEAVON_*)
//   - ~/.heavon/config.toml, or the file named by --config
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.Provider.TimeoutDuration()
package config
