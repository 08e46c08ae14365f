// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/util"
)

// Column widths of FormatChatList, in terminal columns.
const (
	idColumn      = 12
	tabColumn     = 8
	updatedColumn = 16
	countColumn   = 5
	titleColumn   = 40
)

// FormatChatList renders chats as a plain-text table with id, tab, update
// time, message count and title. Wide characters are measured in columns.
func FormatChatList(chats []history.ChatSummary) string {
	if len(chats) == 0 {
		return "No chats found.\n"
	}

	var sb strings.Builder
	rule := strings.Repeat("-", idColumn+tabColumn+updatedColumn+countColumn+titleColumn+4) + "\n"

	sb.WriteString(row("ID", "Tab", "Updated", "Msgs", "Title"))
	sb.WriteString(rule)
	for _, c := range chats {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		sb.WriteString(row(
			c.ID.String(),
			c.Tab,
			formatUpdated(c.UpdatedAt),
			strconv.Itoa(c.MessageCount),
			util.SingleLine(title),
		))
	}
	return sb.String()
}

func row(id, tab, updated, count, title string) string {
	return util.PadRight(util.TruncateWidth(id, idColumn), idColumn) + " " +
		util.PadRight(util.TruncateWidth(tab, tabColumn), tabColumn) + " " +
		util.PadRight(updated, updatedColumn) + " " +
		util.PadRight(count, countColumn) + " " +
		util.TruncateWidth(title, titleColumn) + "\n"
}

// formatUpdated shortens service and archive timestamps to minutes. Values
// that do not parse are shown as they are.
func formatUpdated(s string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Local().Format("2006-01-02 15:04")
		}
	}
	return util.TruncateWidth(s, updatedColumn)
}
