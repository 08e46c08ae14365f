// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
	"github.com/tsunamayo7/helix-ai-studio/internal/protocol"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultReconnectDelay is the fixed delay before reconnecting.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultDialTimeout bounds the WebSocket handshake.
	DefaultDialTimeout = 10 * time.Second
)

// =============================================================================
// OPTIONS
// =============================================================================

// CredentialSource supplies the current bearer credential. The manager only
// reads it.
type CredentialSource interface {
	Token() string
}

// Handler receives connection events. Calls are made from manager goroutines,
// one at a time, never while the manager holds its lock. A Handler must not
// call Close or Restart synchronously.
type Handler interface {
	// OnStatus reports connected, disconnected and error transitions.
	OnStatus(status model.ConnectionStatus)
	// OnFrame delivers one inbound text frame.
	OnFrame(data []byte)
	// OnAuthRejected reports a reserved close code. err wraps ErrAuthRejected.
	OnAuthRejected(err error)
}

// Options configures a Manager.
type Options struct {
	BaseURL     string
	Endpoint    Endpoint
	Credentials CredentialSource
	Handler     Handler

	// Dialer defaults to a gorilla websocket dialer with DialTimeout.
	Dialer Dialer
	// Scheduler defaults to SystemScheduler.
	Scheduler Scheduler

	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	// KeepAlive is the ping interval. Zero disables keep-alive.
	KeepAlive time.Duration

	Logger *zap.Logger
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the transport of one endpoint.
type Manager struct {
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	gen       uint64 // incremented on every teardown
	ctx       context.Context
	cancel    context.CancelFunc
	transport Transport
	timer     Timer
	started   bool
	rejected  bool
	closed    bool

	// writeMu serializes writers; the transport allows one at a time.
	writeMu sync.Mutex

	wg sync.WaitGroup

	// restartMu serializes Restart and Close so that a teardown never waits
	// on the group while another caller adds to it.
	restartMu sync.Mutex
}

// NewManager creates a manager. It does not connect until Start.
func NewManager(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebsocketDialer(opts.DialTimeout)
	}
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler{}
	}
	if opts.Endpoint == "" {
		opts.Endpoint = EndpointSolo
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Handler == nil {
		opts.Handler = nopHandler{}
	}
	return &Manager{
		opts:   opts,
		logger: opts.Logger,
	}
}

// Endpoint returns the endpoint the manager connects to.
func (m *Manager) Endpoint() Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Endpoint
}

// IsOpen reports whether a transport is open.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport != nil
}

// Rejected reports whether the server refused the credential.
func (m *Manager) Rejected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected
}

// Start begins connecting in the background. With an empty credential no
// connection is attempted and the status stays disconnected. Calling Start
// on a running manager is a no-op.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}

	token := ""
	if m.opts.Credentials != nil {
		token = m.opts.Credentials.Token()
	}
	if token == "" {
		m.mu.Unlock()
		m.logger.Info("no credential, not connecting")
		m.emitStatus(model.StatusDisconnected)
		return nil
	}

	m.started = true
	m.rejected = false
	m.ctx, m.cancel = context.WithCancel(context.Background())
	ctx, gen := m.ctx, m.gen
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, gen)
	return nil
}

// Restart tears the connection down and starts again, reading the credential
// afresh. Used for credential rotation and after an authentication rejection.
func (m *Manager) Restart() error {
	m.restartMu.Lock()
	defer m.restartMu.Unlock()

	if err := m.teardown(false); err != nil {
		return err
	}
	return m.Start()
}

// SetEndpoint switches to another endpoint. A running manager reconnects.
func (m *Manager) SetEndpoint(e Endpoint) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.opts.Endpoint == e {
		m.mu.Unlock()
		return nil
	}
	m.opts.Endpoint = e
	running := m.started
	m.mu.Unlock()

	if !running {
		return nil
	}
	return m.Restart()
}

// Close cancels any pending reconnect, closes the transport and waits for the
// manager goroutines to exit. It is idempotent.
func (m *Manager) Close() error {
	m.restartMu.Lock()
	defer m.restartMu.Unlock()

	err := m.teardown(true)
	if err == ErrClosed {
		return nil
	}
	return err
}

// teardown stops everything the current session started. With final set the
// manager can no longer be started.
func (m *Manager) teardown(final bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if final {
		m.closed = true
	}
	m.gen++
	wasStarted := m.started
	m.started = false

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	t := m.transport
	m.transport = nil
	m.mu.Unlock()

	if t != nil {
		m.writeMu.Lock()
		_ = t.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		_ = t.Close()
	}

	m.wg.Wait()

	if wasStarted {
		m.emitStatus(model.StatusDisconnected)
	}
	return nil
}

// Send writes one command frame synchronously.
func (m *Manager) Send(cmd protocol.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", cmd.ActionName(), err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	t := m.transport
	m.mu.Unlock()
	if t == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := t.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s frame: %w", cmd.ActionName(), err)
	}
	return nil
}

// =============================================================================
// CONNECTION LOOP
// =============================================================================

// run dials once and reads until the transport closes.
func (m *Manager) run(ctx context.Context, gen uint64) {
	defer m.wg.Done()

	m.mu.Lock()
	endpoint := m.opts.Endpoint
	m.mu.Unlock()

	token := ""
	if m.opts.Credentials != nil {
		token = m.opts.Credentials.Token()
	}
	if token == "" {
		m.logger.Info("credential gone, not reconnecting")
		m.emitStatusFor(gen, model.StatusDisconnected)
		return
	}

	url, err := BuildURL(m.opts.BaseURL, endpoint, token)
	if err != nil {
		m.logger.Error("cannot build socket URL", zap.Error(err))
		m.emitStatusFor(gen, model.StatusError)
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	t, resp, err := m.opts.Dialer.DialContext(dialCtx, url, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("dial failed", zap.String("url", redactURL(url)), zap.Error(err))
		m.emitStatusFor(gen, model.StatusError)
		m.handleClose(gen, websocket.CloseAbnormalClosure, "")
		return
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		_ = t.Close()
		return
	}
	m.transport = t
	m.mu.Unlock()

	m.logger.Info("connected", zap.String("url", redactURL(url)))
	m.emitStatusFor(gen, model.StatusConnected)

	stop := make(chan struct{})
	if m.opts.KeepAlive > 0 {
		m.wg.Add(1)
		go m.keepAlive(ctx, t, stop)
	}

	var readErr error
	for {
		msgType, data, err := t.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !m.current(gen) {
			continue
		}
		m.opts.Handler.OnFrame(data)
	}
	close(stop)

	m.mu.Lock()
	if m.transport == t {
		m.transport = nil
	}
	m.mu.Unlock()
	_ = t.Close()

	if ctx.Err() != nil || !m.current(gen) {
		return
	}

	code, text := closeDetails(readErr)
	if code == websocket.CloseAbnormalClosure {
		m.logger.Warn("transport error", zap.Error(readErr))
		m.emitStatusFor(gen, model.StatusError)
	}
	m.handleClose(gen, code, text)
}

// handleClose applies the reconnection policy.
func (m *Manager) handleClose(gen uint64, code int, text string) {
	m.emitStatusFor(gen, model.StatusDisconnected)

	closeErr := &CloseError{Code: code, Text: text}
	if IsReservedCloseCode(code) {
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return
		}
		m.rejected = true
		m.started = false
		m.mu.Unlock()

		m.logger.Warn("credential rejected, not reconnecting", zap.Int("code", code), zap.String("reason", text))
		m.opts.Handler.OnAuthRejected(closeErr)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.closed {
		return
	}
	m.logger.Info("connection closed, reconnect scheduled",
		zap.Int("code", code),
		zap.Duration("delay", m.opts.ReconnectDelay))
	m.timer = m.opts.Scheduler.AfterFunc(m.opts.ReconnectDelay, func() {
		m.reconnect(gen)
	})
}

// reconnect runs on the scheduler's goroutine.
func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.closed || m.ctx == nil || m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	ctx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Debug("reconnecting")
	go m.run(ctx, gen)
}

func (m *Manager) keepAlive(ctx context.Context, t Transport, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.KeepAlive)
	defer ticker.Stop()

	data, _ := json.Marshal(protocol.Ping())
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.writeMu.Lock()
			err := t.WriteMessage(websocket.TextMessage, data)
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Debug("keep-alive ping failed", zap.Error(err))
				return
			}
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

func (m *Manager) emitStatusFor(gen uint64, status model.ConnectionStatus) {
	if !m.current(gen) {
		return
	}
	m.emitStatus(status)
}

func (m *Manager) emitStatus(status model.ConnectionStatus) {
	m.opts.Handler.OnStatus(status)
}

type nopHandler struct{}

func (nopHandler) OnStatus(model.ConnectionStatus) {}
func (nopHandler) OnFrame([]byte)                  {}
func (nopHandler) OnAuthRejected(error)            {}
