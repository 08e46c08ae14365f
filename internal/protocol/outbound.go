// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// Outbound actions.
const (
	ActionExecute = "execute"
	ActionPing    = "ping"
	ActionCancel  = "cancel"
)

// DefaultClientInfo identifies this client on local-model executions.
const DefaultClientInfo = "Web Client (localAI)"

// =============================================================================
// DEFAULTS AND OPTIONS
// =============================================================================

// Defaults are the session-level values used for fields a caller leaves unset.
// Nil booleans mean true, so the zero value encodes what the service expects.
type Defaults struct {
	ModelID          string
	ProjectDir       string
	Timeout          int // seconds, 0 lets the server decide
	UseMCP           *bool
	AutoApprove      *bool
	EnableRAG        *bool
	ModelAssignments map[string]string
	LocalModel       string
	ClientInfo       string
}

// DefaultDefaults returns the defaults the service expects when nothing is
// configured.
func DefaultDefaults() Defaults {
	return Defaults{
		UseMCP:      Bool(true),
		AutoApprove: Bool(true),
		EnableRAG:   Bool(true),
		ClientInfo:  DefaultClientInfo,
	}
}

// Bool returns a pointer to b, for the tri-state option fields.
func Bool(b bool) *bool {
	return &b
}

// ExecuteOptions are the per-send options of a single-model execution.
// Nil booleans and zero values fall back to Defaults.
type ExecuteOptions struct {
	ChatID        model.ChatID
	ModelID       string
	ProjectDir    string
	Timeout       int
	UseMCP        *bool
	AutoApprove   *bool
	EnableRAG     *bool
	AttachedFiles []string
}

// MixOptions are the per-send options of a multi-model execution.
type MixOptions struct {
	ExecuteOptions
	ModelAssignments map[string]string
}

// LocalOptions are the per-send options of a local-model execution.
type LocalOptions struct {
	ChatID        model.ChatID
	Model         string
	AttachedFiles []string
}

// =============================================================================
// COMMANDS
// =============================================================================

// Command is one outbound frame.
type Command interface {
	ActionName() string
}

// ExecuteCommand is the single-model execute frame.
type ExecuteCommand struct {
	Action        string       `json:"action"`
	Prompt        string       `json:"prompt"`
	ChatID        model.ChatID `json:"chat_id"`
	ModelID       string       `json:"model_id"`
	ProjectDir    string       `json:"project_dir"`
	Timeout       int          `json:"timeout"`
	UseMCP        bool         `json:"use_mcp"`
	AutoApprove   bool         `json:"auto_approve"`
	EnableRAG     bool         `json:"enable_rag"`
	AttachedFiles []string     `json:"attached_files"`
}

// MixCommand is the multi-model execute frame.
type MixCommand struct {
	ExecuteCommand
	ModelAssignments map[string]string `json:"model_assignments"`
}

// LocalCommand is the local-model execute frame.
type LocalCommand struct {
	Action        string       `json:"action"`
	Prompt        string       `json:"prompt"`
	ChatID        model.ChatID `json:"chat_id"`
	Model         string       `json:"model"`
	AttachedFiles []string     `json:"attached_files"`
	ClientInfo    string       `json:"client_info"`
}

// ControlCommand is a frame carrying only an action.
type ControlCommand struct {
	Action string `json:"action"`
}

func (c ExecuteCommand) ActionName() string { return c.Action }
func (c LocalCommand) ActionName() string   { return c.Action }
func (c ControlCommand) ActionName() string { return c.Action }

// Ping returns the keep-alive frame.
func Ping() ControlCommand {
	return ControlCommand{Action: ActionPing}
}

// Cancel returns the frame that aborts the running execution.
func Cancel() ControlCommand {
	return ControlCommand{Action: ActionCancel}
}

// =============================================================================
// ENCODER
// =============================================================================

// Encoder builds execute frames from caller options and session defaults.
type Encoder struct {
	defaults Defaults
}

// NewEncoder creates an encoder. An empty ClientInfo is replaced with
// DefaultClientInfo.
func NewEncoder(defaults Defaults) *Encoder {
	if defaults.ClientInfo == "" {
		defaults.ClientInfo = DefaultClientInfo
	}
	return &Encoder{defaults: defaults}
}

// Defaults returns the encoder defaults.
func (e *Encoder) Defaults() Defaults {
	return e.defaults
}

// Execute builds a single-model frame. active is the chat the session is
// anchored to; it is used when opts carries no chat id.
func (e *Encoder) Execute(prompt string, active model.ChatID, opts ExecuteOptions) (ExecuteCommand, error) {
	text, err := NormalizePrompt(prompt)
	if err != nil {
		return ExecuteCommand{}, err
	}

	d := e.defaults
	return ExecuteCommand{
		Action:        ActionExecute,
		Prompt:        text,
		ChatID:        ResolveChatID(opts.ChatID, active),
		ModelID:       firstNonEmpty(opts.ModelID, d.ModelID),
		ProjectDir:    firstNonEmpty(opts.ProjectDir, d.ProjectDir),
		Timeout:       firstPositive(opts.Timeout, d.Timeout),
		UseMCP:        boolOr(opts.UseMCP, boolOr(d.UseMCP, true)),
		AutoApprove:   boolOr(opts.AutoApprove, boolOr(d.AutoApprove, true)),
		EnableRAG:     boolOr(opts.EnableRAG, boolOr(d.EnableRAG, true)),
		AttachedFiles: nonNil(opts.AttachedFiles),
	}, nil
}

// Mix builds a multi-model frame: the single-model fields plus the
// category to model assignments.
func (e *Encoder) Mix(prompt string, active model.ChatID, opts MixOptions) (MixCommand, error) {
	base, err := e.Execute(prompt, active, opts.ExecuteOptions)
	if err != nil {
		return MixCommand{}, err
	}

	assignments := opts.ModelAssignments
	if len(assignments) == 0 {
		assignments = e.defaults.ModelAssignments
	}
	copied := make(map[string]string, len(assignments))
	for k, v := range assignments {
		copied[k] = v
	}

	return MixCommand{ExecuteCommand: base, ModelAssignments: copied}, nil
}

// Local builds a local-model frame.
func (e *Encoder) Local(prompt string, active model.ChatID, opts LocalOptions) (LocalCommand, error) {
	text, err := NormalizePrompt(prompt)
	if err != nil {
		return LocalCommand{}, err
	}

	return LocalCommand{
		Action:        ActionExecute,
		Prompt:        text,
		ChatID:        ResolveChatID(opts.ChatID, active),
		Model:         firstNonEmpty(opts.Model, e.defaults.LocalModel),
		AttachedFiles: nonNil(opts.AttachedFiles),
		ClientInfo:    firstNonEmpty(e.defaults.ClientInfo, DefaultClientInfo),
	}, nil
}

// ResolveChatID picks the explicit id, else the active one. Both empty
// encodes as null.
func ResolveChatID(explicit, active model.ChatID) model.ChatID {
	if !explicit.IsZero() {
		return explicit
	}
	return active
}

// NormalizePrompt returns the NFC form of a prompt. Prompts consisting only
// of whitespace fail with ErrEmptyPrompt.
func NormalizePrompt(prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	return norm.NFC.String(prompt), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func nonNil(files []string) []string {
	out := make([]string, len(files))
	copy(out, files)
	return out
}
