// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports chats to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a chat to Markdown format.
func (e *MarkdownExporter) Export(chat *history.Chat) ([]byte, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat is nil")
	}
	if len(chat.Messages) == 0 {
		return nil, fmt.Errorf("chat has no messages")
	}

	messages := chat.Transcript()
	title := chatTitle(chat)
	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "chat_id: %s\n", escapeYAML(chat.ID.String()))
		if chat.Tab != "" {
			fmt.Fprintf(&sb, "tab: %s\n", chat.Tab)
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(messages))
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
		sb.WriteString("generator: helix\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	if e.options.IncludeMetadata {
		sb.WriteString("## Chat Information\n\n")
		fmt.Fprintf(&sb, "- **ID**: %s\n", chat.ID)
		if chat.Tab != "" {
			fmt.Fprintf(&sb, "- **Tab**: %s\n", chat.Tab)
		}
		if chat.CreatedAt != "" {
			fmt.Fprintf(&sb, "- **Created**: %s\n", chat.CreatedAt)
		}
		if chat.UpdatedAt != "" {
			fmt.Fprintf(&sb, "- **Last Updated**: %s\n", chat.UpdatedAt)
		}
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(messages))
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")
	for i, msg := range messages {
		label := formatRoleLabel(msg)
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if i < len(messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from helix on %s*\n", formatTimestamp(e.options.now()))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func formatRoleLabel(msg model.ChatMessage) string {
	if msg.IsError {
		return "[Error]"
	}
	switch msg.Role {
	case model.RoleUser:
		return "[User]"
	case model.RoleAssistant:
		return "[Assistant]"
	default:
		return "[System]"
	}
}

// escapeMarkdown escapes characters that would break formatting in headings.
func escapeMarkdown(s string) string {
	return strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	).Replace(s)
}

// escapeYAML quotes a front matter value when it holds special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return "\"" + s + "\""
	}
	return s
}
