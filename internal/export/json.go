// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports chats to JSON. The document always carries the full
// summary and every message; Options only supply the export time.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// jsonDocument is the exported JSON shape.
type jsonDocument struct {
	history.ChatSummary
	ExportedAt time.Time           `json:"exported_at"`
	Messages   []model.ChatMessage `json:"messages"`
}

// Export converts a chat to indented JSON.
func (e *JSONExporter) Export(chat *history.Chat) ([]byte, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat is nil")
	}
	doc := jsonDocument{
		ChatSummary: chat.ChatSummary,
		ExportedAt:  e.options.now().UTC(),
		Messages:    chat.Transcript(),
	}
	doc.MessageCount = len(doc.Messages)
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
