// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

func msg(id string, role model.Role, content string) model.ChatMessage {
	return model.ChatMessage{ID: id, Role: role, Content: content}
}

func streaming(id, content string) model.ChatMessage {
	m := msg(id, model.RoleAssistant, content)
	m.Streaming = true
	return m
}

// =============================================================================
// MESSAGES
// =============================================================================

func TestRenderer_StreamsIncrementally(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	user := msg("u1", model.RoleUser, "hi")

	r.Render(model.Snapshot{Messages: []model.ChatMessage{user, streaming("a1", "Hel")}})
	r.Render(model.Snapshot{Messages: []model.ChatMessage{user, streaming("a1", "Hello")}})
	r.Render(model.Snapshot{Messages: []model.ChatMessage{user, msg("a1", model.RoleAssistant, "Hello!")}})
	// Rendering the same snapshot again prints nothing.
	r.Render(model.Snapshot{Messages: []model.ChatMessage{user, msg("a1", model.RoleAssistant, "Hello!")}})

	assert.Equal(t, "Assistant:\nHello!\n", buf.String())
}

func TestRenderer_ShowUser(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	r.ShowUser = true

	r.Render(model.Snapshot{Messages: []model.ChatMessage{
		msg("u1", model.RoleUser, "hi"),
		msg("a1", model.RoleAssistant, "hello"),
	}})

	assert.Equal(t, "You: hi\nAssistant:\nhello\n", buf.String())
}

func TestRenderer_ReplacedFinalContent(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Render(model.Snapshot{Messages: []model.ChatMessage{streaming("a1", "draft")}})
	r.Render(model.Snapshot{Messages: []model.ChatMessage{msg("a1", model.RoleAssistant, "final text")}})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Assistant:\ndraft\n"), out)
	assert.Contains(t, out, "(final answer)\nfinal text\n")
}

func TestRenderer_SystemMessages(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	errMsg := msg("s1", model.RoleSystem, "boom")
	errMsg.IsError = true
	r.Render(model.Snapshot{Messages: []model.ChatMessage{
		streaming("a1", "partial"),
	}})
	r.Render(model.Snapshot{Messages: []model.ChatMessage{
		msg("a1", model.RoleAssistant, "partial"),
		errMsg,
		msg("s2", model.RoleSystem, "context is large"),
	}})

	assert.Equal(t, "Assistant:\npartial\n[ERROR] boom\n[INFO] context is large\n", buf.String())
}

func TestRenderer_MarkPrintedAndForget(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	snap := model.Snapshot{Messages: []model.ChatMessage{msg("a1", model.RoleAssistant, "old")}}

	r.MarkPrinted(snap)
	r.Render(snap)
	assert.Empty(t, buf.String())

	r.Forget()
	r.Render(snap)
	assert.Equal(t, "Assistant:\nold\n", buf.String())
}

// =============================================================================
// PROGRESS
// =============================================================================

func TestRenderer_MixProgress(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Render(model.Snapshot{Phase: model.PhaseInfo{Phase: 1, Description: "planning"}})
	r.Render(model.Snapshot{
		Phase:   model.PhaseInfo{Phase: 2, Description: "workers"},
		Workers: []model.WorkerStatusEntry{{Category: "coding", Model: "qwen3", Status: model.WorkerRunning}},
	})
	r.Render(model.Snapshot{
		Phase:    model.PhaseInfo{Phase: 2, Description: "workers"},
		Workers:  []model.WorkerStatusEntry{{Category: "coding", Model: "qwen3", Status: model.WorkerDone, Elapsed: 1.5}},
		Progress: model.Phase2Progress{Completed: 1, Total: 1},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Phase 1/3: planning", lines[0])
	assert.Equal(t, "Phase 2/3: workers", lines[1])
	assert.Equal(t, "  coding (qwen3) running", lines[2])
	assert.Equal(t, "  coding (qwen3) done 1.5s", lines[3])
	assert.Equal(t, "  1/1 workers finished", lines[4])
}

func TestRenderer_StatusLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	r.ShowStatus = true

	r.Render(model.Snapshot{Status: model.StatusConnected})
	r.Render(model.Snapshot{Status: model.StatusExecuting})
	r.Render(model.Snapshot{Status: model.StatusDisconnected})

	assert.Equal(t, "[CONNECTED]\n[DISCONNECTED]\n", buf.String())
}
