// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the plain data structures shared by the session client.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// ParseHistoryRole maps a role stored by the chat-history service onto a
// transcript role. The service also stores "error" records; those replay as
// system messages flagged as errors.
func ParseHistoryRole(role string) (Role, bool) {
	switch role {
	case "user":
		return RoleUser, false
	case "assistant":
		return RoleAssistant, false
	case "error":
		return RoleSystem, true
	default:
		return RoleSystem, false
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// ChatMessage is a single transcript entry.
//
// Streaming is true only for the trailing assistant message while chunks are
// still arriving.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	IsError   bool      `json:"is_error,omitempty"`
	Streaming bool      `json:"streaming,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:        newMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return NewMessage(RoleUser, content)
}

// NewStreamingMessage creates an assistant message that is still receiving chunks.
func NewStreamingMessage(chunk string) ChatMessage {
	msg := NewMessage(RoleAssistant, chunk)
	msg.Streaming = true
	return msg
}

// NewSystemMessage creates a system message. Error messages set isError.
func NewSystemMessage(content string, isError bool) ChatMessage {
	msg := NewMessage(RoleSystem, content)
	msg.IsError = isError
	return msg
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m ChatMessage) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// HistoryRecord is one message as returned by the chat-history service.
// ID and CreatedAt are optional.
type HistoryRecord struct {
	ID        string `json:"id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// historyTimeLayouts are the timestamp forms the service stores.
var historyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ToMessage converts a stored record into a sealed transcript message.
// Records carrying an ID and timestamp convert to the same message every
// time, so replaying a chat twice yields identical transcripts.
func (r HistoryRecord) ToMessage() ChatMessage {
	role, isErr := ParseHistoryRole(r.Role)
	msg := ChatMessage{
		ID:      newMessageID(),
		Role:    role,
		Content: r.Content,
		IsError: isErr,
	}
	if r.ID != "" {
		msg.ID = "msg_" + r.ID
	}
	for _, layout := range historyTimeLayouts {
		if ts, err := time.Parse(layout, r.CreatedAt); err == nil {
			msg.Timestamp = ts
			break
		}
	}
	return msg
}

func newMessageID() string {
	return "msg_" + uuid.NewString()
}
