// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsunamayo7/helix-ai-studio/internal/conn"
	"github.com/tsunamayo7/helix-ai-studio/internal/dispatch"
	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
	"github.com/tsunamayo7/helix-ai-studio/internal/protocol"
	"github.com/tsunamayo7/helix-ai-studio/internal/session"
	"github.com/tsunamayo7/helix-ai-studio/internal/transcript"
)

// recordTimeout bounds a single archive write.
const recordTimeout = 5 * time.Second

// EndpointOptions configures an Endpoint.
type EndpointOptions struct {
	Endpoint    conn.Endpoint
	BaseURL     string
	Credentials conn.CredentialSource

	// Store serves chat selection. May be nil; SelectChat then fails for
	// non-empty ids.
	Store history.Store

	// Recorder mirrors finalized messages of the active chat. May be nil.
	Recorder history.Recorder

	Defaults protocol.Defaults

	// MaxMessages bounds the transcript. Zero keeps the transcript default,
	// a negative value disables the bound.
	MaxMessages int

	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	KeepAlive      time.Duration

	// Dialer and Scheduler are handed to the connection manager.
	Dialer    conn.Dialer
	Scheduler conn.Scheduler

	Logger *zap.Logger
}

// pendingWrite is one archive operation waiting to be flushed.
type pendingWrite struct {
	chat  model.ChatID
	msg   *model.ChatMessage
	title *string
}

// Endpoint is the facade of one server endpoint.
type Endpoint struct {
	name     conn.Endpoint
	instance string
	logger   *zap.Logger
	recorder history.Recorder

	mu         sync.Mutex
	transcript *transcript.Transcript
	dispatcher *dispatch.Dispatcher
	tracker    *session.Tracker
	encoder    *protocol.Encoder
	authErr    error

	// unanchored holds messages written before the server assigned a chat
	// id. They move to outbox on chat_created.
	unanchored []model.ChatMessage
	outbox     []pendingWrite

	subs    map[int]chan struct{}
	nextSub int
	closed  bool

	// flushMu keeps archive writes in the order they were queued.
	flushMu sync.Mutex

	manager *conn.Manager
}

// NewEndpoint builds an endpoint. It does not connect until Connect.
func NewEndpoint(opts EndpointOptions) *Endpoint {
	if opts.Endpoint == "" {
		opts.Endpoint = conn.EndpointSolo
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	e := &Endpoint{
		name:     opts.Endpoint,
		instance: uuid.NewString(),
		recorder: opts.Recorder,
		encoder:  protocol.NewEncoder(opts.Defaults),
		subs:     make(map[int]chan struct{}),
	}
	e.logger = opts.Logger.With(
		zap.String("endpoint", opts.Endpoint.String()),
		zap.String("instance", e.instance))

	switch {
	case opts.MaxMessages > 0:
		e.transcript = transcript.NewWithLimit(opts.MaxMessages)
	case opts.MaxMessages < 0:
		e.transcript = transcript.NewWithLimit(0)
	default:
		e.transcript = transcript.New()
	}

	e.tracker = session.NewTracker(session.Config{
		Store:      opts.Store,
		Transcript: e.transcript,
		Locker:     &e.mu,
		Logger:     e.logger.Named("session"),
	})
	e.dispatcher = dispatch.New(dispatch.Options{
		Transcript: e.transcript,
		Session:    e.tracker,
		Logger:     e.logger.Named("dispatch"),
		OnMessage:  e.queueLocked,
	})
	e.tracker.SetProgress(e.dispatcher)

	e.manager = conn.NewManager(conn.Options{
		BaseURL:        opts.BaseURL,
		Endpoint:       opts.Endpoint,
		Credentials:    opts.Credentials,
		Handler:        handler{e},
		Dialer:         opts.Dialer,
		Scheduler:      opts.Scheduler,
		ReconnectDelay: opts.ReconnectDelay,
		DialTimeout:    opts.DialTimeout,
		KeepAlive:      opts.KeepAlive,
		Logger:         e.logger.Named("conn"),
	})
	return e
}

// Name returns the endpoint name.
func (e *Endpoint) Name() conn.Endpoint {
	return e.name
}

// Instance returns the id that tags every log line of this endpoint.
func (e *Endpoint) Instance() string {
	return e.instance
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Connect starts the connection manager.
func (e *Endpoint) Connect() error {
	return e.manager.Start()
}

// Reconnect drops the current transport and dials again immediately, for
// example after the credential changed. It clears an auth rejection.
func (e *Endpoint) Reconnect() error {
	e.mu.Lock()
	e.authErr = nil
	e.mu.Unlock()
	return e.manager.Restart()
}

// Close stops the transport and every goroutine of the endpoint.
func (e *Endpoint) Close() error {
	err := e.manager.Close()

	e.mu.Lock()
	e.closed = true
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.mu.Unlock()
	return err
}

// IsOpen reports whether a transport is live.
func (e *Endpoint) IsOpen() bool {
	return e.manager.IsOpen()
}

// AuthError returns the last auth rejection, or nil.
func (e *Endpoint) AuthError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authErr
}

// =============================================================================
// SENDING
// =============================================================================

// Send submits a single-model prompt.
func (e *Endpoint) Send(prompt string, opts protocol.ExecuteOptions) error {
	return e.send(prompt, false, func(active model.ChatID) (protocol.Command, error) {
		return e.encoder.Execute(prompt, active, opts)
	})
}

// SendMix submits a multi-model prompt. Phase, workers and progress are
// reset before the frame is written.
func (e *Endpoint) SendMix(prompt string, opts protocol.MixOptions) error {
	return e.send(prompt, true, func(active model.ChatID) (protocol.Command, error) {
		return e.encoder.Mix(prompt, active, opts)
	})
}

// SendLocal submits a prompt to the local model endpoint.
func (e *Endpoint) SendLocal(prompt string, opts protocol.LocalOptions) error {
	return e.send(prompt, false, func(active model.ChatID) (protocol.Command, error) {
		return e.encoder.Local(prompt, active, opts)
	})
}

// Cancel asks the server to stop the running execution.
func (e *Endpoint) Cancel() error {
	if err := e.manager.Send(protocol.Cancel()); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	return nil
}

// Ping writes a keep-alive frame.
func (e *Endpoint) Ping() error {
	if err := e.manager.Send(protocol.Ping()); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// send implements the send sequence shared by all prompt kinds. A closed
// transport or an empty prompt leave the state untouched.
func (e *Endpoint) send(prompt string, mix bool, build func(model.ChatID) (protocol.Command, error)) error {
	e.mu.Lock()
	if !e.manager.IsOpen() {
		e.mu.Unlock()
		e.logger.Warn("send while disconnected", zap.Error(conn.ErrNotConnected))
		return conn.ErrNotConnected
	}

	text, err := protocol.NormalizePrompt(prompt)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	cmd, err := build(e.tracker.Peek().ActiveChatID)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	if mix {
		e.dispatcher.ResetMix()
	}
	if sealed, ok := e.transcript.SealStream(); ok {
		e.queueLocked(sealed)
	}
	e.queueLocked(e.transcript.AppendUser(text))
	e.dispatcher.BeginExecution()
	e.mu.Unlock()
	e.flush()
	e.notify()

	sendErr := e.manager.Send(cmd)
	if sendErr == nil {
		return nil
	}

	e.logger.Warn("write failed", zap.String("action", cmd.ActionName()), zap.Error(sendErr))
	e.mu.Lock()
	e.dispatcher.FailExecution()
	e.queueLocked(e.transcript.AppendSystem("send failed: "+sendErr.Error(), true))
	e.mu.Unlock()
	e.flush()
	e.notify()
	return fmt.Errorf("send %s: %w", cmd.ActionName(), sendErr)
}

// =============================================================================
// CHAT SWITCHING
// =============================================================================

// SelectChat makes id the active chat. See session.Tracker.SelectChat.
func (e *Endpoint) SelectChat(ctx context.Context, id model.ChatID) error {
	e.mu.Lock()
	e.unanchored = nil
	e.mu.Unlock()

	err := e.tracker.SelectChat(ctx, id)
	e.notify()
	return err
}

// NewChat detaches from the active chat and clears the transcript.
func (e *Endpoint) NewChat() {
	e.mu.Lock()
	e.unanchored = nil
	e.mu.Unlock()

	e.tracker.NewChat()
	e.notify()
}

// ResetSession empties the session, for example on logout.
func (e *Endpoint) ResetSession() {
	e.mu.Lock()
	e.unanchored = nil
	e.mu.Unlock()

	e.tracker.Reset()
	e.notify()
}

// Clear empties the transcript, clears the executing flag and resets mix
// progress. The active chat is kept.
func (e *Endpoint) Clear() {
	e.mu.Lock()
	e.transcript.Clear()
	e.dispatcher.Reset()
	e.unanchored = nil
	e.mu.Unlock()
	e.notify()
}

// SetStore replaces the history store used by later selections.
func (e *Endpoint) SetStore(store history.Store) {
	e.tracker.SetStore(store)
}

// =============================================================================
// OBSERVATION
// =============================================================================

// Snapshot returns an immutable copy of the endpoint state.
func (e *Endpoint) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.Snapshot{
		Endpoint:     e.name.String(),
		Status:       e.dispatcher.Status(),
		StatusDetail: e.dispatcher.StatusDetail(),
		Executing:    e.dispatcher.Executing(),
		Messages:     e.transcript.Messages(),
		Phase:        e.dispatcher.Phase(),
		Workers:      e.dispatcher.Workers(),
		Progress:     e.dispatcher.Progress(),
		Session:      e.tracker.Peek(),
	}
}

// Subscribe returns a channel that receives a signal after every state
// change. Signals coalesce: a slow reader sees at least one signal after the
// last change. The channel is closed by Close or by the returned function.
func (e *Endpoint) Subscribe() (<-chan struct{}, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan struct{}, 1)
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if c, ok := e.subs[id]; ok {
				close(c)
				delete(e.subs, id)
			}
		})
	}
}

// Wait blocks until cond holds for a snapshot, the context ends or the
// endpoint is closed.
func (e *Endpoint) Wait(ctx context.Context, cond func(model.Snapshot) bool) (model.Snapshot, error) {
	ch, cancel := e.Subscribe()
	defer cancel()

	for {
		snap := e.Snapshot()
		if cond(snap) {
			return snap, nil
		}
		select {
		case _, ok := <-ch:
			if !ok {
				return snap, conn.ErrClosed
			}
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

func (e *Endpoint) notify() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// =============================================================================
// ARCHIVE
// =============================================================================

// queueLocked schedules msg for the recorder. The caller holds the lock.
func (e *Endpoint) queueLocked(msg model.ChatMessage) {
	if e.recorder == nil {
		return
	}
	chat := e.tracker.Peek().ActiveChatID
	if chat.IsZero() {
		e.unanchored = append(e.unanchored, msg)
		return
	}
	e.outbox = append(e.outbox, pendingWrite{chat: chat, msg: &msg})
}

// afterFrameLocked queues the writes implied by a session change.
func (e *Endpoint) afterFrameLocked(before model.ChatSession) {
	if e.recorder == nil {
		return
	}
	after := e.tracker.Peek()
	if after.ActiveChatID.IsZero() {
		return
	}
	for i := range e.unanchored {
		msg := e.unanchored[i]
		e.outbox = append(e.outbox, pendingWrite{chat: after.ActiveChatID, msg: &msg})
	}
	e.unanchored = nil

	if after.ChatTitle != before.ChatTitle && after.ChatTitle != "" {
		title := after.ChatTitle
		e.outbox = append(e.outbox, pendingWrite{chat: after.ActiveChatID, title: &title})
	}
}

// flush writes the queued archive operations outside the endpoint lock.
func (e *Endpoint) flush() {
	if e.recorder == nil {
		return
	}
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	writes := e.outbox
	e.outbox = nil
	e.mu.Unlock()

	for _, w := range writes {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		var err error
		if w.msg != nil {
			err = e.recorder.RecordMessage(ctx, w.chat, e.name.String(), *w.msg)
		} else {
			err = e.recorder.SetTitle(ctx, w.chat, *w.title)
		}
		cancel()
		if err != nil {
			e.logger.Warn("archive write failed",
				zap.String("chat_id", w.chat.String()),
				zap.Error(err))
		}
	}
}

// =============================================================================
// CONNECTION EVENTS
// =============================================================================

// handler adapts the endpoint to conn.Handler.
type handler struct {
	e *Endpoint
}

func (h handler) OnStatus(status model.ConnectionStatus) {
	e := h.e
	e.mu.Lock()
	e.dispatcher.SetStatus(status)
	e.mu.Unlock()
	e.notify()
}

func (h handler) OnFrame(data []byte) {
	e := h.e
	e.mu.Lock()
	before := e.tracker.Peek()
	err := e.dispatcher.HandleRaw(data)
	if err == nil {
		e.afterFrameLocked(before)
	}
	e.mu.Unlock()

	if errors.Is(err, protocol.ErrMalformedFrame) {
		return
	}
	e.flush()
	e.notify()
}

func (h handler) OnAuthRejected(err error) {
	e := h.e
	e.mu.Lock()
	e.authErr = err
	e.mu.Unlock()
	e.logger.Warn("credential rejected, not reconnecting", zap.Error(err))
	e.notify()
}
