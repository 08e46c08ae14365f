// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func testChat() *history.Chat {
	return &history.Chat{
		ChatSummary: history.ChatSummary{
			ID:        "c42",
			Tab:       "soloAI",
			Title:     "Greeting: part #1",
			CreatedAt: "2025-03-14T09:00:00",
		},
		Messages: []model.HistoryRecord{
			{ID: "1", Role: "user", Content: "hi", CreatedAt: "2025-03-14T09:00:01"},
			{ID: "2", Role: "assistant", Content: "  Hello, world\n", CreatedAt: "2025-03-14T09:00:02"},
			{ID: "3", Role: "error", Content: "model unavailable"},
		},
	}
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestMarkdownExporter_Export(t *testing.T) {
	out, err := NewMarkdownExporter(testOptions()).Export(testChat())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: \"Greeting: part #1\"\nchat_id: c42\ntab: soloAI\nmessages: 3\n"), md)
	assert.Contains(t, md, "# Greeting: part \\#1\n")
	assert.Contains(t, md, "### [User] <sub>09:00:01</sub>\n\nhi\n")
	assert.Contains(t, md, "### [Assistant] <sub>09:00:02</sub>\n\nHello, world\n")
	assert.Contains(t, md, "### [Error]\n\nmodel unavailable\n")
	assert.Contains(t, md, "*Exported from helix on 2025-03-14 09:26:53*")
}

func TestMarkdownExporter_WithoutMetadata(t *testing.T) {
	opts := testOptions()
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(testChat())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "# Greeting"), md)
	assert.NotContains(t, md, "Chat Information")
	assert.Contains(t, md, "### [User]\n\nhi\n")
}

func TestMarkdownExporter_Rejects(t *testing.T) {
	_, err := NewMarkdownExporter(nil).Export(nil)
	assert.Error(t, err)

	_, err = NewMarkdownExporter(nil).Export(&history.Chat{ChatSummary: history.ChatSummary{ID: "c1"}})
	assert.Error(t, err)
}

// =============================================================================
// JSON
// =============================================================================

func TestJSONExporter_Export(t *testing.T) {
	out, err := NewJSONExporter(testOptions()).Export(testChat())
	require.NoError(t, err)

	var doc struct {
		ID           string              `json:"id"`
		Title        string              `json:"title"`
		MessageCount int                 `json:"message_count"`
		ExportedAt   time.Time           `json:"exported_at"`
		Messages     []model.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))

	assert.Equal(t, "c42", doc.ID)
	assert.Equal(t, 3, doc.MessageCount)
	assert.True(t, fixedNow.Equal(doc.ExportedAt))
	require.Len(t, doc.Messages, 3)
	assert.Equal(t, "msg_2", doc.Messages[1].ID)
	assert.True(t, doc.Messages[2].IsError)
}

// =============================================================================
// FILES
// =============================================================================

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"markdown", ".md"},
		{"MD", ".md"},
		{"", ".md"},
		{"json", ".json"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			e, err := ForFormat(tt.format, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.ext, e.FileExtension())
		})
	}

	_, err := ForFormat("html", nil)
	assert.Error(t, err)
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	opts := testOptions()

	path, err := ExportToFile(testChat(), NewMarkdownExporter(opts), dir, opts)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "chat_Greeting-_part_#1_20250314_092653.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hello, world")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a/b\\c", "a-b-c"},
		{"two words", "two_words"},
		{"", "chat"},
		{"bell\a", "bell-"},
		{strings.Repeat("x", 60), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
