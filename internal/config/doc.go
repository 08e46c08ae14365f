// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for helix.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Service address and enabled socket endpoints
//   - ConnectionConfig: Reconnect, keep-alive and dial timing
//   - ExecuteConfig: Defaults for execute and mix commands
//   - HistoryConfig: Chat history source and local archive
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (HELIX_*)
//   - ~/.helix/config.toml
//   - ~/.helix/config.json
//   - Built-in defaults
//
// HELIX_HOME moves the configuration directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	delay := cfg.Connection.ReconnectDelay()
package config
