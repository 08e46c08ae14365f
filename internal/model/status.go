// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// CONNECTION STATUS
// =============================================================================

// ConnectionStatus is the status an endpoint exposes. The server may push
// values outside the known set (for example "cancelled" or "rag_injected");
// those are kept verbatim.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnected    ConnectionStatus = "connected"
	StatusExecuting    ConnectionStatus = "executing"
	StatusCompleted    ConnectionStatus = "completed"
	StatusError        ConnectionStatus = "error"

	// StatusCancelled is only ever reported by the server.
	StatusCancelled ConnectionStatus = "cancelled"
)

// String returns the string representation of the status.
func (s ConnectionStatus) String() string {
	return string(s)
}

// IsKnown reports whether s is one of the locally defined statuses.
func (s ConnectionStatus) IsKnown() bool {
	switch s {
	case StatusDisconnected, StatusConnected, StatusExecuting, StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// =============================================================================
// MIX ORCHESTRATION PROGRESS
// =============================================================================

// MaxPhase is the last stage of the orchestration pipeline.
const MaxPhase = 3

// PhaseInfo is the progress through the three-stage pipeline. Phase 0 means
// idle or not started.
type PhaseInfo struct {
	Phase       int    `json:"phase"`
	Description string `json:"description"`
}

// IsIdle reports whether no phase has started.
func (p PhaseInfo) IsIdle() bool {
	return p.Phase == 0
}

// WorkerState is the run state of one phase-2 worker.
type WorkerState string

const (
	WorkerRunning WorkerState = "running"
	WorkerDone    WorkerState = "done"
	WorkerError   WorkerState = "error"
)

// WorkerStatusEntry tracks one worker category during phase 2.
type WorkerStatusEntry struct {
	Category string      `json:"category"`
	Model    string      `json:"model"`
	Status   WorkerState `json:"status"`
	Elapsed  float64     `json:"elapsed"`
}

// Phase2Progress counts finished phase-2 workers.
type Phase2Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is an immutable copy of the state exposed by one endpoint.
type Snapshot struct {
	Endpoint     string              `json:"endpoint"`
	Status       ConnectionStatus    `json:"status"`
	StatusDetail string              `json:"status_detail,omitempty"`
	Executing    bool                `json:"executing"`
	Messages     []ChatMessage       `json:"messages"`
	Phase        PhaseInfo           `json:"phase"`
	Workers      []WorkerStatusEntry `json:"workers"`
	Progress     Phase2Progress      `json:"progress"`
	Session      ChatSession         `json:"session"`
}

// LastMessage returns the trailing message, if any.
func (s Snapshot) LastMessage() (ChatMessage, bool) {
	if len(s.Messages) == 0 {
		return ChatMessage{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
