// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// =============================================================================
// FRAME TYPES
// =============================================================================

// Type discriminators of inbound frames.
const (
	TypeStreaming        = "streaming"
	TypeStatus           = "status"
	TypeError            = "error"
	TypePong             = "pong"
	TypeChatCreated      = "chat_created"
	TypeChatTitleUpdated = "chat_title_updated"
	TypeTokenWarning     = "token_warning"
	TypePhaseChanged     = "phase_changed"
	TypeLLMStarted       = "llm_started"
	TypeLLMFinished      = "llm_finished"
	TypePhase2Progress   = "phase2_progress"
)

// Frame is one decoded inbound frame.
type Frame interface {
	// Type returns the wire discriminator.
	Type() string
	// Accept calls the Visitor method for the concrete frame kind.
	Accept(v Visitor)
}

// Visitor handles every inbound frame kind.
type Visitor interface {
	VisitStreaming(StreamingFrame)
	VisitStatus(StatusFrame)
	VisitError(ErrorFrame)
	VisitPong(PongFrame)
	VisitChatCreated(ChatCreatedFrame)
	VisitChatTitleUpdated(ChatTitleUpdatedFrame)
	VisitTokenWarning(TokenWarningFrame)
	VisitPhaseChanged(PhaseChangedFrame)
	VisitLLMStarted(LLMStartedFrame)
	VisitLLMFinished(LLMFinishedFrame)
	VisitPhase2Progress(Phase2ProgressFrame)
	VisitUnknown(UnknownFrame)
}

// StreamingFrame carries one answer fragment. Done marks the final fragment;
// its Chunk, when non-empty, is the complete answer.
type StreamingFrame struct {
	Chunk string `json:"chunk"`
	Done  bool   `json:"done"`
}

// StatusFrame reports an execution status. Detail and Message are optional
// human-readable annotations.
type StatusFrame struct {
	Status  model.ConnectionStatus `json:"status"`
	Detail  string                 `json:"detail,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// Annotation returns the first non-empty annotation of the frame.
func (f StatusFrame) Annotation() string {
	if f.Detail != "" {
		return f.Detail
	}
	return f.Message
}

// ErrorFrame carries an application-level error.
type ErrorFrame struct {
	Error string `json:"error"`
}

// PongFrame acknowledges a ping.
type PongFrame struct{}

// ChatCreatedFrame announces the chat created for the first prompt.
type ChatCreatedFrame struct {
	ChatID model.ChatID `json:"chat_id"`
}

// ChatTitleUpdatedFrame carries a generated chat title.
type ChatTitleUpdatedFrame struct {
	ChatID model.ChatID `json:"chat_id"`
	Title  string       `json:"title"`
}

// TokenWarningFrame warns that the prompt context is large.
type TokenWarningFrame struct {
	Message       string `json:"message"`
	TokenEstimate int    `json:"token_estimate,omitempty"`
}

// PhaseChangedFrame reports a new orchestration phase.
type PhaseChangedFrame struct {
	Phase       int    `json:"phase"`
	Description string `json:"description"`
}

// LLMStartedFrame reports that a phase-2 worker started.
type LLMStartedFrame struct {
	Category string `json:"category"`
	Model    string `json:"model"`
}

// LLMFinishedFrame reports that a phase-2 worker finished.
type LLMFinishedFrame struct {
	Category string  `json:"category"`
	Success  bool    `json:"success"`
	Elapsed  float64 `json:"elapsed"`
}

// Phase2ProgressFrame counts finished phase-2 workers.
type Phase2ProgressFrame struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// UnknownFrame is any well-formed frame with an unrecognized discriminator.
type UnknownFrame struct {
	Kind string
	Raw  json.RawMessage
}

func (StreamingFrame) Type() string        { return TypeStreaming }
func (StatusFrame) Type() string           { return TypeStatus }
func (ErrorFrame) Type() string            { return TypeError }
func (PongFrame) Type() string             { return TypePong }
func (ChatCreatedFrame) Type() string      { return TypeChatCreated }
func (ChatTitleUpdatedFrame) Type() string { return TypeChatTitleUpdated }
func (TokenWarningFrame) Type() string     { return TypeTokenWarning }
func (PhaseChangedFrame) Type() string     { return TypePhaseChanged }
func (LLMStartedFrame) Type() string       { return TypeLLMStarted }
func (LLMFinishedFrame) Type() string      { return TypeLLMFinished }
func (Phase2ProgressFrame) Type() string   { return TypePhase2Progress }
func (f UnknownFrame) Type() string        { return f.Kind }

func (f StreamingFrame) Accept(v Visitor)        { v.VisitStreaming(f) }
func (f StatusFrame) Accept(v Visitor)           { v.VisitStatus(f) }
func (f ErrorFrame) Accept(v Visitor)            { v.VisitError(f) }
func (f PongFrame) Accept(v Visitor)             { v.VisitPong(f) }
func (f ChatCreatedFrame) Accept(v Visitor)      { v.VisitChatCreated(f) }
func (f ChatTitleUpdatedFrame) Accept(v Visitor) { v.VisitChatTitleUpdated(f) }
func (f TokenWarningFrame) Accept(v Visitor)     { v.VisitTokenWarning(f) }
func (f PhaseChangedFrame) Accept(v Visitor)     { v.VisitPhaseChanged(f) }
func (f LLMStartedFrame) Accept(v Visitor)       { v.VisitLLMStarted(f) }
func (f LLMFinishedFrame) Accept(v Visitor)      { v.VisitLLMFinished(f) }
func (f Phase2ProgressFrame) Accept(v Visitor)   { v.VisitPhase2Progress(f) }
func (f UnknownFrame) Accept(v Visitor)          { v.VisitUnknown(f) }

// =============================================================================
// DECODING
// =============================================================================

// envelope reads only the discriminator.
type envelope struct {
	Type string `json:"type"`
}

// Decode parses one inbound frame. Payloads that are not a JSON object, or
// known frames whose fields have the wrong type, fail with ErrMalformedFrame.
// An object with a missing or unrecognized type decodes to UnknownFrame.
func Decode(data []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedFrame)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case TypeStreaming:
		return decodeAs[StreamingFrame](data)
	case TypeStatus:
		return decodeAs[StatusFrame](data)
	case TypeError:
		return decodeAs[ErrorFrame](data)
	case TypePong:
		return PongFrame{}, nil
	case TypeChatCreated:
		return decodeAs[ChatCreatedFrame](data)
	case TypeChatTitleUpdated:
		return decodeAs[ChatTitleUpdatedFrame](data)
	case TypeTokenWarning:
		return decodeAs[TokenWarningFrame](data)
	case TypePhaseChanged:
		return decodeAs[PhaseChangedFrame](data)
	case TypeLLMStarted:
		return decodeAs[LLMStartedFrame](data)
	case TypeLLMFinished:
		return decodeAs[LLMFinishedFrame](data)
	case TypePhase2Progress:
		return decodeAs[Phase2ProgressFrame](data)
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return UnknownFrame{Kind: env.Type, Raw: raw}, nil
	}
}

func decodeAs[F Frame](data []byte) (Frame, error) {
	var f F
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Type(), err)
	}
	return f, nil
}
