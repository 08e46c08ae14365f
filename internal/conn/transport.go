// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes with a meaning for reconnection.
const (
	// CloseInvalidToken means the credential was rejected.
	CloseInvalidToken = 4001
	// CloseIPNotAllowed means the client address is not allowed.
	CloseIPNotAllowed = 4003
	// CloseTooManyConnections means the server is at capacity. It is not
	// reserved: the client retries after the normal delay.
	CloseTooManyConnections = 4029
)

// IsReservedCloseCode reports whether code means "authentication rejected".
func IsReservedCloseCode(code int) bool {
	return code == CloseInvalidToken || code == CloseIPNotAllowed
}

// Transport is one open duplex connection.
type Transport interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (Transport, *http.Response, error)
}

// WebsocketDialer adapts a gorilla websocket.Dialer to Dialer.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

// NewWebsocketDialer creates a dialer with the given handshake timeout.
func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = handshakeTimeout
	return &WebsocketDialer{Dialer: &d}
}

// DialContext dials url.
func (w *WebsocketDialer) DialContext(ctx context.Context, url string, header http.Header) (Transport, *http.Response, error) {
	d := w.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	c, resp, err := d.DialContext(ctx, url, header)
	if err != nil {
		return nil, resp, err
	}
	return c, resp, nil
}

// closeDetails extracts the close code from a read error. Errors that did
// not carry a close frame map to 1006 (abnormal closure).
func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	var own *CloseError
	if errors.As(err, &own) {
		return own.Code, own.Text
	}
	return websocket.CloseAbnormalClosure, ""
}
