// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when no transport is open.
	ErrNotConnected = errors.New("not connected")

	// ErrAuthRejected is reported when the server closes with a reserved
	// authentication code. The manager does not reconnect afterwards.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrClosed is returned by operations on a closed manager.
	ErrClosed = errors.New("connection manager closed")

	// ErrUnknownEndpoint is returned for endpoint names the service does not serve.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
)

// CloseError describes how the server ended a connection.
type CloseError struct {
	Code int
	Text string
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("connection closed (%d): %s", e.Code, e.Text)
	}
	return fmt.Sprintf("connection closed (%d)", e.Code)
}

// Unwrap maps reserved codes onto ErrAuthRejected.
func (e *CloseError) Unwrap() error {
	if IsReservedCloseCode(e.Code) {
		return ErrAuthRejected
	}
	return nil
}
