// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes stored chats to Markdown or JSON files.
//
// # Usage
//
//	exporter, err := export.ForFormat("markdown", nil)
//	path, err := export.ExportToFile(chat, exporter, ".", nil)
package export
