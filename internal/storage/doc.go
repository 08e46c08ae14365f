// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local chat archive for helix.
//
// The archive is a SQLite database (modernc.org/sqlite, no cgo) that mirrors
// the chats an endpoint takes part in. It serves two roles:
//
//   - Recorder: an endpoint writes finalized messages and title updates of
//     its active chat.
//   - Store: the session tracker can replay chats from the archive instead
//     of the service (history.source = "local").
//
// # Key Types
//
//   - Archive: the database handle
//
// # Usage
//
//	archive, err := storage.Open(storage.DefaultPath())
//	defer archive.Close()
//
//	err = archive.RecordMessage(ctx, chatID, "solo", msg)
//	chat, err := archive.GetChat(ctx, chatID)
//
// # Storage Location
//
// The default database is ~/.helix/archive.db.
package storage
