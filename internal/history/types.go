// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"slices"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// Tabs group chats by the execution mode that created them.
const (
	TabCloud = "cloudAI"
	TabMix   = "mixAI"
	TabLocal = "localAI"
)

// Context modes decide how much earlier conversation the service sends to
// the model along with a prompt.
const (
	ContextSingle  = "single"
	ContextSession = "session"
	ContextFull    = "full"
)

// ContextModes lists the accepted context modes.
var ContextModes = []string{ContextSingle, ContextSession, ContextFull}

// IsContextMode reports whether mode is one of ContextModes.
func IsContextMode(mode string) bool {
	return slices.Contains(ContextModes, mode)
}

// TabForEndpoint returns the chat tab of a socket endpoint name.
func TabForEndpoint(endpoint string) string {
	switch endpoint {
	case "mix":
		return TabMix
	case "local":
		return TabLocal
	default:
		return TabCloud
	}
}

// ChatSummary is one entry of the chat list.
type ChatSummary struct {
	ID           model.ChatID `json:"id"`
	Tab          string       `json:"tab"`
	Title        string       `json:"title"`
	ContextMode  string       `json:"context_mode,omitempty"`
	MessageCount int          `json:"message_count"`
	CreatedAt    string       `json:"created_at,omitempty"`
	UpdatedAt    string       `json:"updated_at,omitempty"`
}

// Chat is a chat with its ordered message history.
type Chat struct {
	ChatSummary
	Messages []model.HistoryRecord
}

// Transcript converts the history into sealed transcript messages.
func (c *Chat) Transcript() []model.ChatMessage {
	out := make([]model.ChatMessage, len(c.Messages))
	for i, rec := range c.Messages {
		out[i] = rec.ToMessage()
	}
	return out
}

// chatDetailResponse is the body of GET /api/chats/{id}.
type chatDetailResponse struct {
	Chat     ChatSummary           `json:"chat"`
	Messages []model.HistoryRecord `json:"messages"`
}

// chatListResponse is the body of GET /api/chats.
type chatListResponse struct {
	Chats []ChatSummary `json:"chats"`
}

// LoginResult is the body of a successful PIN login.
type LoginResult struct {
	Token          string `json:"token"`
	ExpiresInHours int    `json:"expires_in_hours"`
}

// VerifyResult is the body of a successful credential check.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Subject string `json:"sub"`
}

// HealthResult is the body of the unauthenticated health check.
type HealthResult struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Store reads chat history. The session tracker depends only on this.
type Store interface {
	GetChat(ctx context.Context, id model.ChatID) (*Chat, error)
}

// Recorder persists transcript messages of a chat.
type Recorder interface {
	RecordMessage(ctx context.Context, chat model.ChatID, endpoint string, msg model.ChatMessage) error
	SetTitle(ctx context.Context, chat model.ChatID, title string) error
}
