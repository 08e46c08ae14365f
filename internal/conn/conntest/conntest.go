// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conntest provides in-memory transports, a manual scheduler and an
// event recorder for testing code built on package conn.
package conntest

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tsunamayo7/helix-ai-studio/internal/conn"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// WaitTimeout bounds every wait helper.
const WaitTimeout = 2 * time.Second

// =============================================================================
// TRANSPORT
// =============================================================================

type inbound struct {
	data []byte
	err  error
}

// Transport is an in-memory conn.Transport.
type Transport struct {
	inbound chan inbound
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

// NewTransport creates an open transport.
func NewTransport() *Transport {
	return &Transport{
		inbound: make(chan inbound, 64),
		closed:  make(chan struct{}),
	}
}

// Push queues one inbound text frame.
func (t *Transport) Push(frame string) {
	t.inbound <- inbound{data: []byte(frame)}
}

// CloseWith makes the next read fail with a close frame carrying code.
func (t *Transport) CloseWith(code int) {
	t.inbound <- inbound{err: &websocket.CloseError{Code: code}}
}

// Fail makes the next read fail without a close frame.
func (t *Transport) Fail(err error) {
	t.inbound <- inbound{err: err}
}

// FailWrites makes every subsequent write return err.
func (t *Transport) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// ReadMessage implements conn.Transport.
func (t *Transport) ReadMessage() (int, []byte, error) {
	select {
	case in := <-t.inbound:
		if in.err != nil {
			return 0, nil, in.err
		}
		return websocket.TextMessage, in.data, nil
	case <-t.closed:
		return 0, nil, errors.New("use of closed transport")
	}
}

// WriteMessage implements conn.Transport. Only text frames are recorded.
func (t *Transport) WriteMessage(messageType int, data []byte) error {
	select {
	case <-t.closed:
		return errors.New("use of closed transport")
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	if messageType == websocket.TextMessage {
		t.written = append(t.written, append([]byte(nil), data...))
	}
	return nil
}

// Close implements conn.Transport.
func (t *Transport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// IsClosed reports whether Close was called.
func (t *Transport) IsClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// Written returns the text frames written so far.
func (t *Transport) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.written))
	for i, w := range t.written {
		out[i] = string(w)
	}
	return out
}

// =============================================================================
// DIALER
// =============================================================================

// Dialer hands out Transports and records dialed URLs.
type Dialer struct {
	mu   sync.Mutex
	err  error
	urls []string

	// dials receives every attempt; failed attempts send nil.
	dials chan *Transport
}

// NewDialer creates a dialer whose dials succeed.
func NewDialer() *Dialer {
	return &Dialer{dials: make(chan *Transport, 64)}
}

// SetError makes subsequent dials fail with err. nil restores success.
func (d *Dialer) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// DialContext implements conn.Dialer.
func (d *Dialer) DialContext(ctx context.Context, url string, _ http.Header) (conn.Transport, *http.Response, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	err := d.err
	d.mu.Unlock()

	if err != nil {
		d.dials <- nil
		return nil, nil, err
	}
	if ctx.Err() != nil {
		d.dials <- nil
		return nil, nil, ctx.Err()
	}
	t := NewTransport()
	d.dials <- t
	return t, nil, nil
}

// Count returns the number of dial attempts.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// URLs returns the dialed URLs in order.
func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Next waits for the next dial attempt. It returns nil for a failed attempt.
func (d *Dialer) Next(t testing.TB) *Transport {
	t.Helper()
	select {
	case tr := <-d.dials:
		return tr
	case <-time.After(WaitTimeout):
		t.Fatalf("no dial attempt within %s", WaitTimeout)
		return nil
	}
}

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler records scheduled tasks; they run only when fired.
type Scheduler struct {
	mu        sync.Mutex
	timers    []*Timer
	scheduled chan *Timer
}

// NewScheduler creates a manual scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{scheduled: make(chan *Timer, 64)}
}

// AfterFunc implements conn.Scheduler.
func (s *Scheduler) AfterFunc(d time.Duration, f func()) conn.Timer {
	timer := &Timer{Delay: d, fn: f}
	s.mu.Lock()
	s.timers = append(s.timers, timer)
	s.mu.Unlock()
	s.scheduled <- timer
	return timer
}

// Timers returns every task scheduled so far.
func (s *Scheduler) Timers() []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Timer(nil), s.timers...)
}

// Next waits for the next scheduled task.
func (s *Scheduler) Next(t testing.TB) *Timer {
	t.Helper()
	select {
	case timer := <-s.scheduled:
		return timer
	case <-time.After(WaitTimeout):
		t.Fatalf("nothing scheduled within %s", WaitTimeout)
		return nil
	}
}

// Timer is a task of Scheduler.
type Timer struct {
	Delay time.Duration

	mu      sync.Mutex
	fn      func()
	stopped bool
	fired   bool
}

// Stop implements conn.Timer.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Stopped reports whether Stop cancelled the task.
func (t *Timer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the task synchronously unless it was stopped.
func (t *Timer) Fire() bool {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	fn := t.fn
	t.mu.Unlock()
	fn()
	return true
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder is a conn.Handler that records every event.
type Recorder struct {
	mu       sync.Mutex
	statuses []model.ConnectionStatus
	frames   []string
	rejected []error

	events chan string
}

// NewRecorder creates a recorder.
func NewRecorder() *Recorder {
	return &Recorder{events: make(chan string, 256)}
}

// OnStatus implements conn.Handler.
func (r *Recorder) OnStatus(s model.ConnectionStatus) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
	r.events <- "status:" + s.String()
}

// OnFrame implements conn.Handler.
func (r *Recorder) OnFrame(data []byte) {
	r.mu.Lock()
	r.frames = append(r.frames, string(data))
	r.mu.Unlock()
	r.events <- "frame"
}

// OnAuthRejected implements conn.Handler.
func (r *Recorder) OnAuthRejected(err error) {
	r.mu.Lock()
	r.rejected = append(r.rejected, err)
	r.mu.Unlock()
	r.events <- "rejected"
}

// Statuses returns the reported statuses in order.
func (r *Recorder) Statuses() []model.ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ConnectionStatus(nil), r.statuses...)
}

// Frames returns the delivered frames in order.
func (r *Recorder) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

// Rejections returns the reported authentication rejections.
func (r *Recorder) Rejections() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.rejected...)
}

// WaitFor blocks until an event with the given name arrives, for example
// "status:connected", "frame" or "rejected".
func (r *Recorder) WaitFor(t testing.TB, event string) {
	t.Helper()
	deadline := time.After(WaitTimeout)
	for {
		select {
		case got := <-r.events:
			if got == event {
				return
			}
		case <-deadline:
			t.Fatalf("event %q not seen within %s", event, WaitTimeout)
			return
		}
	}
}
