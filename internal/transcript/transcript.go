// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"strings"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// DefaultMaxMessages bounds the transcript. When exceeded, the oldest
// messages are pruned to prevent unbounded memory growth.
const DefaultMaxMessages = 1000

// =============================================================================
// SLOT STATE
// =============================================================================

// SlotState is the state of the trailing message slot.
type SlotState int

const (
	// SlotIdle means the last message (if any) is not an assistant stream.
	SlotIdle SlotState = iota
	// SlotStreaming means the last message is receiving chunks.
	SlotStreaming
	// SlotSealed means the last message is a finished assistant answer.
	SlotSealed
)

// String returns the name of the state.
func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotStreaming:
		return "streaming"
	case SlotSealed:
		return "sealed"
	default:
		return "unknown"
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is the ordered message sequence of one endpoint.
type Transcript struct {
	messages []model.ChatMessage
	slot     SlotState

	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming.
	// The trailing message content is materialized on read.
	stream strings.Builder

	maxMessages int
	// replayed raises the bound to the size of the last installed history.
	replayed int
}

// New creates an empty transcript with the default bound.
func New() *Transcript {
	return NewWithLimit(DefaultMaxMessages)
}

// NewWithLimit creates an empty transcript keeping at most max messages.
// A non-positive max disables pruning.
func NewWithLimit(max int) *Transcript {
	return &Transcript{
		messages:    make([]model.ChatMessage, 0),
		maxMessages: max,
	}
}

// State returns the trailing slot state.
func (t *Transcript) State() SlotState {
	return t.slot
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// IsStreaming reports whether the trailing message is still receiving chunks.
func (t *Transcript) IsStreaming() bool {
	return t.slot == SlotStreaming
}

// AppendChunk merges a streamed fragment.
//
// If the trailing message is streaming, a non-final chunk is concatenated
// and a final chunk seals it. A non-empty final chunk is the complete answer
// and replaces the accumulated content; an empty one keeps it. Otherwise a
// new assistant message is started (streaming, or already sealed when the
// chunk is final).
func (t *Transcript) AppendChunk(text string, final bool) {
	if t.slot == SlotStreaming {
		if !final {
			t.stream.WriteString(text)
			return
		}
		content := text
		if content == "" {
			content = t.stream.String()
		}
		t.sealTrailing(content)
		return
	}

	if final {
		msg := model.NewMessage(model.RoleAssistant, text)
		t.append(msg)
		t.slot = SlotSealed
		return
	}

	t.append(model.NewStreamingMessage(""))
	t.stream.WriteString(text)
	t.slot = SlotStreaming
}

// SealStream seals a streaming answer with the content received so far and
// returns it. It reports false when nothing was streaming.
func (t *Transcript) SealStream() (model.ChatMessage, bool) {
	if t.slot != SlotStreaming {
		return model.ChatMessage{}, false
	}
	t.sealTrailing(t.stream.String())
	return t.messages[len(t.messages)-1], true
}

// AppendUser appends a user prompt. Any streaming answer is sealed first.
func (t *Transcript) AppendUser(text string) model.ChatMessage {
	t.sealIfStreaming()
	msg := model.NewUserMessage(text)
	t.append(msg)
	t.slot = SlotIdle
	return msg
}

// AppendSystem appends a system message. Any streaming answer is sealed first.
func (t *Transcript) AppendSystem(text string, isError bool) model.ChatMessage {
	t.sealIfStreaming()
	msg := model.NewSystemMessage(text, isError)
	t.append(msg)
	t.slot = SlotIdle
	return msg
}

// ReplaceAll discards the sequence and installs records in order, all sealed.
// Every record is kept; later appends prune back to at most
// max(limit, len(records)) messages.
func (t *Transcript) ReplaceAll(records []model.ChatMessage) {
	t.stream.Reset()
	t.messages = make([]model.ChatMessage, len(records))
	copy(t.messages, records)
	for i := range t.messages {
		t.messages[i].Streaming = false
	}
	t.slot = SlotIdle
	t.replayed = len(t.messages)
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.stream.Reset()
	t.messages = t.messages[:0]
	t.slot = SlotIdle
	t.replayed = 0
}

// Messages returns a copy of the sequence with the streaming content
// materialized.
func (t *Transcript) Messages() []model.ChatMessage {
	out := make([]model.ChatMessage, len(t.messages))
	copy(out, t.messages)
	if t.slot == SlotStreaming && len(out) > 0 {
		out[len(out)-1].Content = t.stream.String()
	}
	return out
}

// Last returns the trailing message, if any.
func (t *Transcript) Last() (model.ChatMessage, bool) {
	if len(t.messages) == 0 {
		return model.ChatMessage{}, false
	}
	last := t.messages[len(t.messages)-1]
	if t.slot == SlotStreaming {
		last.Content = t.stream.String()
	}
	return last, true
}

// =============================================================================
// HELPERS
// =============================================================================

func (t *Transcript) sealIfStreaming() {
	if t.slot == SlotStreaming {
		t.sealTrailing(t.stream.String())
	}
}

func (t *Transcript) sealTrailing(content string) {
	last := &t.messages[len(t.messages)-1]
	last.Content = content
	last.Streaming = false
	t.stream.Reset()
	t.slot = SlotSealed
}

func (t *Transcript) append(msg model.ChatMessage) {
	t.messages = append(t.messages, msg)
	t.prune()
}

// prune drops the oldest messages beyond the bound. The trailing message is
// never dropped.
func (t *Transcript) prune() {
	limit := max(t.maxMessages, t.replayed)
	if t.maxMessages <= 0 || len(t.messages) <= limit {
		return
	}
	excess := len(t.messages) - limit
	kept := make([]model.ChatMessage, limit)
	copy(kept, t.messages[excess:])
	t.messages = kept
}
