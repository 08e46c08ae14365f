// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// =============================================================================
// DECODE TESTS
// =============================================================================

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Frame
	}{
		{"streaming", `{"type":"streaming","chunk":"Hel","done":false}`, StreamingFrame{Chunk: "Hel"}},
		{"streaming done", `{"type":"streaming","chunk":"Hello!","done":true}`, StreamingFrame{Chunk: "Hello!", Done: true}},
		{"status detail", `{"type":"status","status":"executing","detail":"running"}`, StatusFrame{Status: model.StatusExecuting, Detail: "running"}},
		{"status message", `{"type":"status","status":"rag_injected","message":"RAG: 120"}`, StatusFrame{Status: "rag_injected", Message: "RAG: 120"}},
		{"error", `{"type":"error","error":"boom"}`, ErrorFrame{Error: "boom"}},
		{"pong", `{"type":"pong"}`, PongFrame{}},
		{"chat created string", `{"type":"chat_created","chat_id":"abc"}`, ChatCreatedFrame{ChatID: "abc"}},
		{"chat created number", `{"type":"chat_created","chat_id":42}`, ChatCreatedFrame{ChatID: "42"}},
		{"title", `{"type":"chat_title_updated","chat_id":"abc","title":"Hi"}`, ChatTitleUpdatedFrame{ChatID: "abc", Title: "Hi"}},
		{"token warning", `{"type":"token_warning","message":"big","token_estimate":9000}`, TokenWarningFrame{Message: "big", TokenEstimate: 9000}},
		{"phase", `{"type":"phase_changed","phase":2,"description":"Phase 2"}`, PhaseChangedFrame{Phase: 2, Description: "Phase 2"}},
		{"llm started", `{"type":"llm_started","category":"coding","model":"m1"}`, LLMStartedFrame{Category: "coding", Model: "m1"}},
		{"llm finished", `{"type":"llm_finished","category":"coding","success":true,"elapsed":12.5}`, LLMFinishedFrame{Category: "coding", Success: true, Elapsed: 12.5}},
		{"progress", `{"type":"phase2_progress","completed":2,"total":5}`, Phase2ProgressFrame{Completed: 2, Total: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_Unknown(t *testing.T) {
	input := `{"type":"telemetry","x":1}`
	f, err := Decode([]byte(input))
	require.NoError(t, err)

	u, ok := f.(UnknownFrame)
	require.True(t, ok, "expected UnknownFrame, got %T", f)
	require.Equal(t, "telemetry", u.Type())
	require.JSONEq(t, input, string(u.Raw))

	f, err = Decode([]byte(`{"chunk":"no type"}`))
	require.NoError(t, err)
	require.Equal(t, "", f.Type())
}

func TestDecode_Malformed(t *testing.T) {
	inputs := []string{
		``,
		`not json`,
		`null`,
		`[1,2]`,
		`"streaming"`,
		`{"type":"streaming","chunk":`,
		`{"type":"streaming","chunk":5}`,
		`{"type":"phase_changed","phase":"one"}`,
	}
	for _, in := range inputs {
		_, err := Decode([]byte(in))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("Decode(%q) error = %v, want ErrMalformedFrame", in, err)
		}
	}
}

func TestStatusFrame_Annotation(t *testing.T) {
	require.Equal(t, "d", StatusFrame{Detail: "d", Message: "m"}.Annotation())
	require.Equal(t, "m", StatusFrame{Message: "m"}.Annotation())
	require.Equal(t, "", StatusFrame{}.Annotation())
}

// =============================================================================
// VISITOR TESTS
// =============================================================================

type recordingVisitor struct {
	calls []string
}

func (r *recordingVisitor) VisitStreaming(StreamingFrame)               { r.calls = append(r.calls, "streaming") }
func (r *recordingVisitor) VisitStatus(StatusFrame)                     { r.calls = append(r.calls, "status") }
func (r *recordingVisitor) VisitError(ErrorFrame)                       { r.calls = append(r.calls, "error") }
func (r *recordingVisitor) VisitPong(PongFrame)                         { r.calls = append(r.calls, "pong") }
func (r *recordingVisitor) VisitChatCreated(ChatCreatedFrame)           { r.calls = append(r.calls, "chat_created") }
func (r *recordingVisitor) VisitChatTitleUpdated(ChatTitleUpdatedFrame) { r.calls = append(r.calls, "chat_title_updated") }
func (r *recordingVisitor) VisitTokenWarning(TokenWarningFrame)         { r.calls = append(r.calls, "token_warning") }
func (r *recordingVisitor) VisitPhaseChanged(PhaseChangedFrame)         { r.calls = append(r.calls, "phase_changed") }
func (r *recordingVisitor) VisitLLMStarted(LLMStartedFrame)             { r.calls = append(r.calls, "llm_started") }
func (r *recordingVisitor) VisitLLMFinished(LLMFinishedFrame)           { r.calls = append(r.calls, "llm_finished") }
func (r *recordingVisitor) VisitPhase2Progress(Phase2ProgressFrame)     { r.calls = append(r.calls, "phase2_progress") }
func (r *recordingVisitor) VisitUnknown(UnknownFrame)                   { r.calls = append(r.calls, "unknown") }

func TestAccept_RoutesByKind(t *testing.T) {
	frames := []Frame{
		StreamingFrame{}, StatusFrame{}, ErrorFrame{}, PongFrame{},
		ChatCreatedFrame{}, ChatTitleUpdatedFrame{}, TokenWarningFrame{},
		PhaseChangedFrame{}, LLMStartedFrame{}, LLMFinishedFrame{},
		Phase2ProgressFrame{}, UnknownFrame{Kind: "x"},
	}

	v := &recordingVisitor{}
	for _, f := range frames {
		f.Accept(v)
	}

	want := []string{
		"streaming", "status", "error", "pong", "chat_created",
		"chat_title_updated", "token_warning", "phase_changed",
		"llm_started", "llm_finished", "phase2_progress", "unknown",
	}
	if diff := cmp.Diff(want, v.calls); diff != "" {
		t.Errorf("visit order mismatch (-want +got):\n%s", diff)
	}

	// Every known frame reports the discriminator it decodes from.
	for i, f := range frames[:len(frames)-1] {
		require.Equal(t, want[i], f.Type())
	}
}

// =============================================================================
// ENCODER TESTS
// =============================================================================

func encode(t *testing.T, cmd Command) map[string]any {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestEncoder_ExecuteDefaults(t *testing.T) {
	enc := NewEncoder(DefaultDefaults())
	cmd, err := enc.Execute("hello", model.NoChat, ExecuteOptions{})
	require.NoError(t, err)

	want := map[string]any{
		"action":         "execute",
		"prompt":         "hello",
		"chat_id":        nil,
		"model_id":       "",
		"project_dir":    "",
		"timeout":        float64(0),
		"use_mcp":        true,
		"auto_approve":   true,
		"enable_rag":     true,
		"attached_files": []any{},
	}
	if diff := cmp.Diff(want, encode(t, cmd)); diff != "" {
		t.Errorf("execute frame mismatch (-want +got):\n%s", diff)
	}
}

func TestEncoder_ZeroDefaults(t *testing.T) {
	enc := NewEncoder(Defaults{})

	cmd, err := enc.Execute("hi", model.NoChat, ExecuteOptions{})
	require.NoError(t, err)
	got := encode(t, cmd)
	assert.Equal(t, true, got["use_mcp"])
	assert.Equal(t, true, got["auto_approve"])
	assert.Equal(t, true, got["enable_rag"])

	local, err := enc.Local("hi", model.NoChat, LocalOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultClientInfo, local.ClientInfo)

	// Configured false still wins over the implicit true.
	enc = NewEncoder(Defaults{UseMCP: Bool(false)})
	cmd, err = enc.Execute("hi", model.NoChat, ExecuteOptions{})
	require.NoError(t, err)
	assert.False(t, cmd.UseMCP)
	assert.True(t, cmd.AutoApprove)
}

func TestEncoder_ExecuteOverrides(t *testing.T) {
	d := DefaultDefaults()
	d.ModelID = "default-model"
	d.Timeout = 600
	enc := NewEncoder(d)

	cmd, err := enc.Execute("hi", "active", ExecuteOptions{
		ChatID:        "explicit",
		ModelID:       "claude-x",
		ProjectDir:    "/src",
		UseMCP:        Bool(false),
		AutoApprove:   Bool(false),
		EnableRAG:     Bool(false),
		AttachedFiles: []string{"a.txt"},
	})
	require.NoError(t, err)

	require.Equal(t, model.ChatID("explicit"), cmd.ChatID)
	require.Equal(t, "claude-x", cmd.ModelID)
	require.Equal(t, "/src", cmd.ProjectDir)
	require.Equal(t, 600, cmd.Timeout)
	require.False(t, cmd.UseMCP)
	require.False(t, cmd.AutoApprove)
	require.False(t, cmd.EnableRAG)
	require.Equal(t, []string{"a.txt"}, cmd.AttachedFiles)
}

func TestResolveChatID(t *testing.T) {
	tests := []struct {
		explicit, active, want model.ChatID
	}{
		{"x", "y", "x"},
		{"", "y", "y"},
		{"", "", model.NoChat},
	}
	for _, tt := range tests {
		if got := ResolveChatID(tt.explicit, tt.active); got != tt.want {
			t.Errorf("ResolveChatID(%q, %q) = %q, want %q", tt.explicit, tt.active, got, tt.want)
		}
	}
}

func TestEncoder_Mix(t *testing.T) {
	enc := NewEncoder(DefaultDefaults())

	cmd, err := enc.Mix("plan it", "c1", MixOptions{})
	require.NoError(t, err)
	got := encode(t, cmd)
	require.Equal(t, map[string]any{}, got["model_assignments"])
	require.Equal(t, "c1", got["chat_id"])
	require.Equal(t, "execute", got["action"])
	require.Contains(t, got, "use_mcp")

	assignments := map[string]string{"coding": "devstral"}
	cmd, err = enc.Mix("plan it", "", MixOptions{ModelAssignments: assignments})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"coding": "devstral"}, encode(t, cmd)["model_assignments"])

	// The frame does not alias the caller map.
	assignments["coding"] = "changed"
	require.Equal(t, "devstral", cmd.ModelAssignments["coding"])
}

func TestEncoder_Local(t *testing.T) {
	d := DefaultDefaults()
	d.LocalModel = "gemma3"
	enc := NewEncoder(d)

	cmd, err := enc.Local("hola", model.NoChat, LocalOptions{})
	require.NoError(t, err)

	want := map[string]any{
		"action":         "execute",
		"prompt":         "hola",
		"chat_id":        nil,
		"model":          "gemma3",
		"attached_files": []any{},
		"client_info":    DefaultClientInfo,
	}
	if diff := cmp.Diff(want, encode(t, cmd)); diff != "" {
		t.Errorf("local frame mismatch (-want +got):\n%s", diff)
	}
}

func TestEncoder_NormalizesPrompt(t *testing.T) {
	enc := NewEncoder(DefaultDefaults())
	cmd, err := enc.Execute("cafe\u0301", model.NoChat, ExecuteOptions{})
	require.NoError(t, err)
	require.Equal(t, "caf\u00e9", cmd.Prompt)
}

func TestEncoder_EmptyPrompt(t *testing.T) {
	enc := NewEncoder(DefaultDefaults())

	_, err := enc.Execute("  \n", model.NoChat, ExecuteOptions{})
	require.ErrorIs(t, err, ErrEmptyPrompt)
	_, err = enc.Mix("", model.NoChat, MixOptions{})
	require.ErrorIs(t, err, ErrEmptyPrompt)
	_, err = enc.Local("\t", model.NoChat, LocalOptions{})
	require.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestControlCommands(t *testing.T) {
	require.Equal(t, map[string]any{"action": "ping"}, encode(t, Ping()))
	require.Equal(t, map[string]any{"action": "cancel"}, encode(t, Cancel()))
	require.Equal(t, ActionCancel, Cancel().ActionName())
}
