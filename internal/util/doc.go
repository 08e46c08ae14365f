// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the helix packages.
//
// String helpers measure display columns with go-runewidth, so CJK chat
// titles line up in terminal tables:
//
//	title := util.PadRight(util.TruncateWidth(chat.Title, 30), 30)
//
// File helpers write config and credential files atomically:
//
//	err := util.WriteSecretFile(tokenPath, []byte(token))
package util
