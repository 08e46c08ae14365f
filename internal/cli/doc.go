// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the helix command line.
//
// The command tree is built with cobra. Every command shares one app value
// that loads the configuration, builds the logger and wires the credential
// provider, history store and archive on demand.
//
// # Commands Overview
//
//   - login, logout, verify: PIN login and the stored credential
//   - ask: send one prompt and print the answer
//   - chat: interactive session with line editing and history
//   - chats list|show|new|rename|mode|rm|export: chat history, remote or from
//     the local archive
//   - status: server health and connection settings
//   - config show|path|init|get|set: configuration management
//   - version: build information
//
// All commands that print data support --json.
package cli
