// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tsunamayo7/helix-ai-studio/internal/conn"
	"github.com/tsunamayo7/helix-ai-studio/internal/conn/conntest"
	"github.com/tsunamayo7/helix-ai-studio/internal/protocol"
)

// fakeService is a minimal Helix socket endpoint.
type fakeService struct {
	upgrader websocket.Upgrader
	paths    chan string
	actions  chan string
	done     chan struct{}

	// script runs once the socket is open.
	script func(c *websocket.Conn)
}

func newFakeService(t *testing.T, script func(c *websocket.Conn)) (*fakeService, *httptest.Server) {
	svc := &fakeService{
		paths:   make(chan string, 64),
		actions: make(chan string, 64),
		done:    make(chan struct{}, 64),
		script:  script,
	}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	return svc, srv
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() { s.done <- struct{}{} }()

	s.paths <- r.URL.Path + "?token=" + r.URL.Query().Get("token")
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()

	go func() {
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			var frame struct {
				Action string `json:"action"`
			}
			if json.Unmarshal(data, &frame) != nil {
				continue
			}
			select {
			case s.actions <- frame.Action:
			default:
			}
		}
	}()

	s.script(c)
}

func (s *fakeService) waitAction(t *testing.T, action string) {
	t.Helper()
	deadline := time.After(conntest.WaitTimeout)
	for {
		select {
		case got := <-s.actions:
			if got == action {
				return
			}
		case <-deadline:
			t.Fatalf("action %q not received", action)
		}
	}
}

func closeWith(c *websocket.Conn, code int, text string) {
	_ = c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func TestWebsocket_EndToEnd(t *testing.T) {
	release := make(chan struct{})
	svc, srv := newFakeService(t, func(c *websocket.Conn) {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"streaming","chunk":"Hi","done":true}`))
		<-release
		closeWith(c, conn.CloseIPNotAllowed, "ip not allowed")
	})

	events := conntest.NewRecorder()
	scheduler := conntest.NewScheduler()
	m := conn.NewManager(conn.Options{
		BaseURL:     srv.URL,
		Endpoint:    conn.EndpointMix,
		Credentials: &token{value: "jwt-123"},
		Handler:     events,
		Scheduler:   scheduler,
		KeepAlive:   20 * time.Millisecond,
	})
	defer m.Close()

	require.NoError(t, m.Start())
	require.Equal(t, "/ws/mix?token=jwt-123", <-svc.paths)

	events.WaitFor(t, "status:connected")
	events.WaitFor(t, "frame")
	require.Equal(t, []string{`{"type":"streaming","chunk":"Hi","done":true}`}, events.Frames())

	svc.waitAction(t, "ping")
	require.NoError(t, m.Send(protocol.Cancel()))
	svc.waitAction(t, "cancel")

	close(release)
	events.WaitFor(t, "rejected")
	require.Empty(t, scheduler.Timers())

	var ce *conn.CloseError
	require.ErrorAs(t, events.Rejections()[0], &ce)
	require.Equal(t, "ip not allowed", ce.Text)

	<-svc.done
}

func TestWebsocket_ServerDropReconnects(t *testing.T) {
	svc, srv := newFakeService(t, func(c *websocket.Conn) {
		closeWith(c, websocket.CloseGoingAway, "restart")
	})

	events := conntest.NewRecorder()
	m := conn.NewManager(conn.Options{
		BaseURL:        srv.URL,
		Credentials:    &token{value: "jwt"},
		Handler:        events,
		ReconnectDelay: 30 * time.Millisecond,
	})
	defer m.Close()

	require.NoError(t, m.Start())
	<-svc.paths
	events.WaitFor(t, "status:connected")
	events.WaitFor(t, "status:disconnected")

	// The real scheduler dials again after the delay.
	select {
	case p := <-svc.paths:
		require.Equal(t, "/ws/solo?token=jwt", p)
	case <-time.After(conntest.WaitTimeout):
		t.Fatal("no reconnect")
	}
	events.WaitFor(t, "status:connected")

	require.NoError(t, m.Close())
}
