// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
	"github.com/tsunamayo7/helix-ai-studio/internal/transcript"
)

// =============================================================================
// HELPERS
// =============================================================================

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	archive, err := Open(filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	clock := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	archive.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return archive
}

// =============================================================================
// RECORD / GET
// =============================================================================

func TestArchive_RoundTrip(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	msgs := []model.ChatMessage{
		model.NewUserMessage("hello"),
		model.NewMessage(model.RoleAssistant, "hi there"),
		model.NewSystemMessage("boom", true),
		model.NewSystemMessage("note", false),
	}
	for _, m := range msgs {
		require.NoError(t, archive.RecordMessage(ctx, "c1", "mix", m))
	}
	require.NoError(t, archive.SetTitle(ctx, "c1", "Greetings"))

	chat, err := archive.GetChat(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, model.ChatID("c1"), chat.ID)
	assert.Equal(t, "Greetings", chat.Title)
	assert.Equal(t, history.TabMix, chat.Tab)
	assert.Equal(t, 4, chat.MessageCount)

	// Replay through a transcript gives back the recorded messages.
	tr := transcript.New()
	tr.ReplaceAll(chat.Transcript())
	got := tr.Messages()

	if diff := cmp.Diff(msgs, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("replayed transcript mismatch (-recorded +replayed):\n%s", diff)
	}
}

func TestArchive_RecordIsIdempotent(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	msg := model.NewUserMessage("once")
	require.NoError(t, archive.RecordMessage(ctx, "c1", "solo", msg))
	require.NoError(t, archive.RecordMessage(ctx, "c1", "solo", msg))

	chat, err := archive.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, chat.Messages, 1)
}

func TestArchive_SequencePerChat(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	require.NoError(t, archive.RecordMessage(ctx, "a", "solo", model.NewUserMessage("a1")))
	require.NoError(t, archive.RecordMessage(ctx, "b", "solo", model.NewUserMessage("b1")))
	require.NoError(t, archive.RecordMessage(ctx, "a", "solo", model.NewUserMessage("a2")))

	chat, err := archive.GetChat(ctx, "a")
	require.NoError(t, err)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "a1", chat.Messages[0].Content)
	assert.Equal(t, "a2", chat.Messages[1].Content)
}

func TestArchive_NoChat(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	assert.ErrorIs(t, archive.RecordMessage(ctx, model.NoChat, "solo", model.NewUserMessage("x")), ErrNoChat)
	assert.ErrorIs(t, archive.SetTitle(ctx, model.NoChat, "t"), ErrNoChat)
}

func TestArchive_GetChatNotFound(t *testing.T) {
	archive := openTestArchive(t)

	_, err := archive.GetChat(context.Background(), "missing")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestArchive_SetTitleKeepsEndpoint(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	require.NoError(t, archive.RecordMessage(ctx, "c1", "local", model.NewUserMessage("q")))
	require.NoError(t, archive.SetTitle(ctx, "c1", "First"))
	require.NoError(t, archive.SetTitle(ctx, "c1", "Second"))

	chat, err := archive.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Second", chat.Title)
	assert.Equal(t, history.TabLocal, chat.Tab)
}

// =============================================================================
// LIST / DELETE
// =============================================================================

func TestArchive_ListChats(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	require.NoError(t, archive.RecordMessage(ctx, "old", "solo", model.NewUserMessage("1")))
	require.NoError(t, archive.RecordMessage(ctx, "mixed", "mix", model.NewUserMessage("2")))
	require.NoError(t, archive.RecordMessage(ctx, "new", "solo", model.NewUserMessage("3")))
	require.NoError(t, archive.RecordMessage(ctx, "new", "solo", model.NewUserMessage("4")))

	all, err := archive.ListChats(ctx, "")
	require.NoError(t, err)
	ids := make([]model.ChatID, len(all))
	for i, c := range all {
		ids[i] = c.ID
	}
	assert.Equal(t, []model.ChatID{"new", "mixed", "old"}, ids)
	assert.Equal(t, 2, all[0].MessageCount)

	solo, err := archive.ListChats(ctx, "solo")
	require.NoError(t, err)
	assert.Len(t, solo, 2)
	for _, c := range solo {
		assert.Equal(t, history.TabCloud, c.Tab)
	}
}

func TestArchive_ListChatsEmpty(t *testing.T) {
	archive := openTestArchive(t)

	chats, err := archive.ListChats(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, chats)
	assert.Empty(t, chats)
}

func TestArchive_DeleteChat(t *testing.T) {
	archive := openTestArchive(t)
	ctx := context.Background()

	require.NoError(t, archive.RecordMessage(ctx, "c1", "solo", model.NewUserMessage("x")))
	require.NoError(t, archive.DeleteChat(ctx, "c1"))

	_, err := archive.GetChat(ctx, "c1")
	assert.ErrorIs(t, err, history.ErrNotFound)
	assert.ErrorIs(t, archive.DeleteChat(ctx, "c1"), history.ErrNotFound)

	// Messages were removed with the chat, so reusing the id starts fresh.
	require.NoError(t, archive.RecordMessage(ctx, "c1", "solo", model.NewUserMessage("y")))
	chat, err := archive.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, chat.Messages, 1)
}

func TestArchive_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.RecordMessage(ctx, "c1", "solo", model.NewUserMessage("kept")))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	chat, err := second.GetChat(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, "kept", chat.Messages[0].Content)
	assert.Equal(t, path, second.Path())
}

// =============================================================================
// FORMATTING
// =============================================================================

func TestFormatChatList(t *testing.T) {
	assert.Equal(t, "No chats found.\n", FormatChatList(nil))

	out := FormatChatList([]history.ChatSummary{
		{ID: "1", Tab: history.TabCloud, Title: "日本語のタイトル", MessageCount: 3, UpdatedAt: "2025-01-02T03:04:05.000001"},
		{ID: "2", Tab: history.TabMix, Title: "", MessageCount: 0, UpdatedAt: "garbage"},
		{ID: "3", Tab: history.TabLocal, Title: "line one\nline two", MessageCount: 1},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "Title")
	assert.Contains(t, lines[2], "日本語のタイトル")
	assert.Contains(t, lines[3], "(untitled)")
	assert.Contains(t, lines[3], "garbage")
	assert.Contains(t, lines[4], "line one line two")
}
