// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
	"github.com/tsunamayo7/helix-ai-studio/internal/protocol"
	"github.com/tsunamayo7/helix-ai-studio/internal/transcript"
)

var ignoreIdentity = cmpopts.IgnoreFields(model.ChatMessage{}, "ID", "Timestamp")

type fakeSession struct {
	created []model.ChatID
	title   string
}

func (s *fakeSession) OnChatCreated(id model.ChatID)             { s.created = append(s.created, id) }
func (s *fakeSession) OnTitleUpdated(_ model.ChatID, title string) { s.title = title }

type fixture struct {
	d        *Dispatcher
	tr       *transcript.Transcript
	session  *fakeSession
	logs     *observer.ObservedLogs
	recorded []model.ChatMessage
}

func newFixture() *fixture {
	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{
		tr:      transcript.New(),
		session: &fakeSession{},
		logs:    logs,
	}
	f.d = New(Options{
		Transcript: f.tr,
		Session:    f.session,
		Logger:     zap.New(core),
		OnMessage:  func(m model.ChatMessage) { f.recorded = append(f.recorded, m) },
	})
	return f
}

func (f *fixture) feed(t *testing.T, frames ...string) {
	t.Helper()
	for _, fr := range frames {
		require.NoError(t, f.d.HandleRaw([]byte(fr)))
	}
}

// =============================================================================
// STREAMING
// =============================================================================

func TestStreaming_ReplacingFinalChunk(t *testing.T) {
	f := newFixture()
	f.d.BeginExecution()

	f.feed(t,
		`{"type":"streaming","chunk":"Hel","done":false}`,
		`{"type":"streaming","chunk":"Hello!","done":true}`,
	)

	want := []model.ChatMessage{{Role: model.RoleAssistant, Content: "Hello!"}}
	if diff := cmp.Diff(want, f.tr.Messages(), ignoreIdentity); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	require.False(t, f.d.Executing())
	require.Len(t, f.recorded, 1)
	require.Equal(t, "Hello!", f.recorded[0].Content)
}

func TestStreaming_Concatenation(t *testing.T) {
	f := newFixture()
	f.feed(t,
		`{"type":"streaming","chunk":"a","done":false}`,
		`{"type":"streaming","chunk":"b","done":false}`,
		`{"type":"streaming","chunk":"c","done":false}`,
		`{"type":"streaming","chunk":"","done":true}`,
	)

	msgs := f.tr.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "abc", msgs[0].Content)
	require.False(t, msgs[0].Streaming)
}

// =============================================================================
// STATUS AND ERRORS
// =============================================================================

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		frame         string
		start         bool
		wantStatus    model.ConnectionStatus
		wantExecuting bool
		wantDetail    string
	}{
		{`{"type":"status","status":"executing","detail":"d"}`, false, model.StatusExecuting, true, "d"},
		{`{"type":"status","status":"completed"}`, true, model.StatusCompleted, false, ""},
		{`{"type":"status","status":"cancelled"}`, true, model.StatusCancelled, false, ""},
		{`{"type":"status","status":"rag_injected","message":"RAG 10"}`, true, "rag_injected", true, "RAG 10"},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			f := newFixture()
			if tt.start {
				f.d.BeginExecution()
			}
			f.feed(t, tt.frame)
			require.Equal(t, tt.wantStatus, f.d.Status())
			require.Equal(t, tt.wantExecuting, f.d.Executing())
			require.Equal(t, tt.wantDetail, f.d.StatusDetail())
		})
	}
}

func TestSetStatus_ClearsDetail(t *testing.T) {
	f := newFixture()
	f.feed(t, `{"type":"status","status":"executing","detail":"x"}`)
	f.d.SetStatus(model.StatusDisconnected)
	require.Equal(t, model.StatusDisconnected, f.d.Status())
	require.Empty(t, f.d.StatusDetail())
}

func TestErrorFrame(t *testing.T) {
	f := newFixture()
	f.d.BeginExecution()
	f.feed(t,
		`{"type":"streaming","chunk":"part","done":false}`,
		`{"type":"error","error":"model crashed"}`,
	)

	want := []model.ChatMessage{
		{Role: model.RoleAssistant, Content: "part"},
		{Role: model.RoleSystem, Content: "model crashed", IsError: true},
	}
	if diff := cmp.Diff(want, f.tr.Messages(), ignoreIdentity); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	require.False(t, f.d.Executing())

	// The interrupted answer is reported before the error.
	if diff := cmp.Diff(want, f.recorded, ignoreIdentity); diff != "" {
		t.Errorf("recorded mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenWarning(t *testing.T) {
	f := newFixture()
	f.feed(t, `{"type":"token_warning","message":"context is large","token_estimate":120000}`)

	msgs := f.tr.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, model.RoleSystem, msgs[0].Role)
	require.False(t, msgs[0].IsError)
	require.Equal(t, "context is large", msgs[0].Content)

	entries := f.logs.FilterMessage("token warning").All()
	require.Len(t, entries, 1)
	require.Equal(t, int64(120000), entries[0].ContextMap()["token_estimate"])
}

func TestPong_NoChange(t *testing.T) {
	f := newFixture()
	f.feed(t, `{"type":"pong"}`)
	require.Equal(t, 0, f.tr.Len())
	require.Equal(t, model.StatusDisconnected, f.d.Status())
}

// =============================================================================
// CHAT IDENTITY
// =============================================================================

func TestChatIdentityFrames(t *testing.T) {
	f := newFixture()
	f.feed(t,
		`{"type":"chat_created","chat_id":"c-1"}`,
		`{"type":"chat_title_updated","chat_id":"c-1","title":"Greetings"}`,
	)
	require.Equal(t, []model.ChatID{"c-1"}, f.session.created)
	require.Equal(t, "Greetings", f.session.title)
}

func TestChatIdentityFrames_NilSession(t *testing.T) {
	d := New(Options{Transcript: transcript.New()})
	require.NotPanics(t, func() {
		d.Apply(protocol.ChatCreatedFrame{ChatID: "x"})
		d.Apply(protocol.ChatTitleUpdatedFrame{Title: "t"})
	})
}

// =============================================================================
// MIX ORCHESTRATION
// =============================================================================

func TestWorkers_StartThenFinish(t *testing.T) {
	f := newFixture()
	f.feed(t,
		`{"type":"llm_started","category":"coding","model":"m1"}`,
		`{"type":"llm_finished","category":"coding","success":true,"elapsed":12}`,
	)

	want := []model.WorkerStatusEntry{{Category: "coding", Model: "m1", Status: model.WorkerDone, Elapsed: 12}}
	if diff := cmp.Diff(want, f.d.Workers()); diff != "" {
		t.Errorf("workers mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkers_RestartUpdatesInPlace(t *testing.T) {
	f := newFixture()
	f.feed(t,
		`{"type":"llm_started","category":"coding","model":"m1"}`,
		`{"type":"llm_started","category":"research","model":"m2"}`,
		`{"type":"llm_finished","category":"coding","success":false,"elapsed":3.5}`,
		`{"type":"llm_started","category":"coding","model":"m3"}`,
	)

	want := []model.WorkerStatusEntry{
		{Category: "coding", Model: "m3", Status: model.WorkerRunning},
		{Category: "research", Model: "m2", Status: model.WorkerRunning},
	}
	if diff := cmp.Diff(want, f.d.Workers()); diff != "" {
		t.Errorf("workers mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkers_FinishUnknownCategory(t *testing.T) {
	f := newFixture()
	f.feed(t, `{"type":"llm_finished","category":"vision","success":true,"elapsed":1}`)
	require.Empty(t, f.d.Workers())
	require.Equal(t, 1, f.logs.FilterMessage("finish for unknown worker").Len())
}

func TestPhaseChanged(t *testing.T) {
	f := newFixture()
	f.feed(t, `{"type":"phase_changed","phase":2,"description":"Phase 2: workers"}`)
	require.Equal(t, model.PhaseInfo{Phase: 2, Description: "Phase 2: workers"}, f.d.Phase())
	require.True(t, f.d.Executing())

	f.feed(t, `{"type":"phase_changed","phase":9,"description":"bogus"}`)
	require.Equal(t, model.MaxPhase, f.d.Phase().Phase)
}

func TestPhase2Progress_NeverDecreases(t *testing.T) {
	f := newFixture()
	f.feed(t,
		`{"type":"phase2_progress","completed":2,"total":5}`,
		`{"type":"phase2_progress","completed":1,"total":5}`,
	)
	require.Equal(t, model.Phase2Progress{Completed: 2, Total: 5}, f.d.Progress())

	f.d.ResetMix()
	f.feed(t, `{"type":"phase2_progress","completed":1,"total":3}`)
	require.Equal(t, model.Phase2Progress{Completed: 1, Total: 3}, f.d.Progress())
}

func TestReset(t *testing.T) {
	f := newFixture()
	f.feed(t,
		`{"type":"phase_changed","phase":1,"description":"plan"}`,
		`{"type":"llm_started","category":"coding","model":"m1"}`,
		`{"type":"phase2_progress","completed":1,"total":2}`,
	)
	f.d.SetStatus(model.StatusConnected)
	f.d.Reset()

	require.False(t, f.d.Executing())
	require.True(t, f.d.Phase().IsIdle())
	require.Empty(t, f.d.Workers())
	require.Equal(t, model.Phase2Progress{}, f.d.Progress())
	require.Equal(t, model.StatusConnected, f.d.Status())
}

func TestWorkers_ReturnsCopy(t *testing.T) {
	f := newFixture()
	f.feed(t, `{"type":"llm_started","category":"coding","model":"m1"}`)
	w := f.d.Workers()
	w[0].Model = "changed"
	require.Equal(t, "m1", f.d.Workers()[0].Model)
}

// =============================================================================
// UNKNOWN AND MALFORMED FRAMES
// =============================================================================

func TestUnknownFrame_NoStateChange(t *testing.T) {
	f := newFixture()
	f.feed(t, `{"type":"telemetry","cpu":0.5}`)

	require.Equal(t, 0, f.tr.Len())
	require.Equal(t, model.StatusDisconnected, f.d.Status())
	require.Equal(t, 1, f.logs.FilterMessage("ignoring unknown frame type").Len())
}

func TestMalformedFrame_Dropped(t *testing.T) {
	f := newFixture()
	f.feed(t, `{"type":"streaming","chunk":"ok","done":false}`)

	err := f.d.HandleRaw([]byte(`{"type":"streaming","chunk":`))
	require.True(t, errors.Is(err, protocol.ErrMalformedFrame))

	last, ok := f.tr.Last()
	require.True(t, ok)
	require.Equal(t, "ok", last.Content)
	require.True(t, last.Streaming)

	entries := f.logs.FilterMessage("dropping malformed frame").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
}
