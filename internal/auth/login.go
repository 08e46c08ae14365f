// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tsunamayo7/helix-ai-studio/internal/history"
)

var (
	// ErrEmptyPIN is returned by Login for a blank PIN.
	ErrEmptyPIN = errors.New("PIN is empty")

	// ErrNoToken is returned when the service accepted the PIN but sent no
	// token.
	ErrNoToken = errors.New("login response carried no token")
)

// Authenticator exchanges a PIN for a token. *history.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, pin string) (*history.LoginResult, error)
}

// Login exchanges pin for a token and hands it to sink.
func Login(ctx context.Context, a Authenticator, pin string, sink TokenSink) (*history.LoginResult, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return nil, ErrEmptyPIN
	}

	result, err := a.Login(ctx, pin)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if strings.TrimSpace(result.Token) == "" {
		return nil, ErrNoToken
	}

	if err := sink.Set(result.Token); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	return result, nil
}

// Logout forgets the stored token.
func Logout(sink TokenSink) error {
	return sink.Set("")
}
