// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
	"github.com/tsunamayo7/helix-ai-studio/internal/transcript"
)

var (
	// ErrSuperseded is returned by SelectChat when a newer selection or a
	// server-created chat replaced the one being loaded.
	ErrSuperseded = errors.New("chat selection superseded")

	// ErrNoStore is returned when a chat is selected without a history store.
	ErrNoStore = errors.New("no chat history store configured")
)

// =============================================================================
// TRACKER
// =============================================================================

// Resetter clears transient execution state (executing flag, phase, workers,
// progress).
type Resetter interface {
	Reset()
}

// Config holds configuration for the tracker.
type Config struct {
	// Store fetches chat history. Required for selecting a chat.
	Store history.Store

	// Transcript receives replayed history. Required.
	Transcript *transcript.Transcript

	// Progress is reset whenever the chat changes. May be nil.
	Progress Resetter

	// Locker guards the tracker together with Transcript and Progress.
	// Defaults to a private mutex.
	Locker sync.Locker

	// Logger is the diagnostic sink. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Tracker holds the identity of the active chat.
type Tracker struct {
	mu         sync.Locker
	store      history.Store
	transcript *transcript.Transcript
	progress   Resetter
	logger     *zap.Logger

	session model.ChatSession

	// selection counts SelectChat, NewChat and Reset calls. A fetch result
	// is applied only if no other selection started after it.
	selection uint64
}

// NewTracker creates a tracker with an empty session.
func NewTracker(cfg Config) *Tracker {
	if cfg.Transcript == nil {
		cfg.Transcript = transcript.New()
	}
	if cfg.Locker == nil {
		cfg.Locker = &sync.Mutex{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Tracker{
		mu:         cfg.Locker,
		store:      cfg.Store,
		transcript: cfg.Transcript,
		progress:   cfg.Progress,
		logger:     cfg.Logger,
	}
}

// Session returns the active chat identity and title.
func (t *Tracker) Session() model.ChatSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// ActiveChatID returns the active chat id.
func (t *Tracker) ActiveChatID() model.ChatID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.ActiveChatID
}

// Peek returns the session without locking. The caller holds the lock.
func (t *Tracker) Peek() model.ChatSession {
	return t.session
}

// SetProgress sets the state reset alongside the transcript. It is meant
// for construction, before the tracker is shared.
func (t *Tracker) SetProgress(p Resetter) {
	t.progress = p
}

// SetStore replaces the history store used by later selections.
func (t *Tracker) SetStore(store history.Store) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store = store
}

// =============================================================================
// CHAT SWITCHING
// =============================================================================

// SelectChat makes id the active chat.
//
// The empty id clears the transcript, the progress and the title. Any other
// id fetches the chat from the store and replaces the transcript with its
// history. If the fetch fails, the transcript and title are left as they
// were and the error is returned. If another selection started meanwhile,
// the result is dropped and ErrSuperseded is returned.
func (t *Tracker) SelectChat(ctx context.Context, id model.ChatID) error {
	t.mu.Lock()
	t.selection++
	selection := t.selection
	t.session.ActiveChatID = id

	if id.IsZero() {
		t.clearLocked()
		t.mu.Unlock()
		return nil
	}

	store := t.store
	t.mu.Unlock()

	if store == nil {
		t.logger.Warn("cannot load chat", zap.String("chat_id", id.String()), zap.Error(ErrNoStore))
		return ErrNoStore
	}

	chat, err := store.GetChat(ctx, id)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.selection != selection || t.session.ActiveChatID != id {
		t.logger.Debug("dropping stale chat history", zap.String("chat_id", id.String()))
		return ErrSuperseded
	}
	if err != nil {
		t.logger.Warn("failed to load chat", zap.String("chat_id", id.String()), zap.Error(err))
		return fmt.Errorf("load chat %s: %w", id, err)
	}

	t.transcript.ReplaceAll(chat.Transcript())
	if t.progress != nil {
		t.progress.Reset()
	}
	t.session.ChatTitle = chat.Title
	t.logger.Debug("chat loaded",
		zap.String("chat_id", id.String()),
		zap.Int("messages", len(chat.Messages)))
	return nil
}

// NewChat detaches from the active chat. The next prompt makes the server
// create a chat.
func (t *Tracker) NewChat() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selection++
	t.session = model.ChatSession{}
	t.clearLocked()
}

// Reset empties the session, for example on logout.
func (t *Tracker) Reset() {
	t.NewChat()
}

func (t *Tracker) clearLocked() {
	t.transcript.Clear()
	if t.progress != nil {
		t.progress.Reset()
	}
	t.session.ChatTitle = ""
}

// =============================================================================
// SERVER NOTIFICATIONS
// =============================================================================

// OnChatCreated anchors the session to a chat the server created for the
// first prompt. The caller holds the lock.
func (t *Tracker) OnChatCreated(id model.ChatID) {
	if id.IsZero() {
		return
	}
	t.session.ActiveChatID = id
}

// OnTitleUpdated sets the session title. A title is applied when the frame
// names no chat, when no chat is active yet, or when it names the active
// chat; a title for a different chat is ignored. The caller holds the lock.
func (t *Tracker) OnTitleUpdated(id model.ChatID, title string) {
	active := t.session.ActiveChatID
	if !id.IsZero() && !active.IsZero() && id != active {
		t.logger.Debug("ignoring title for inactive chat",
			zap.String("chat_id", id.String()),
			zap.String("active_chat_id", active.String()))
		return
	}
	t.session.ChatTitle = title
}
