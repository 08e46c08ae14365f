// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import (
	"errors"
	"testing"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		endpoint Endpoint
		token    string
		want     string
		wantErr  bool
	}{
		{"http maps to ws", "http://localhost:8500", EndpointSolo, "abc", "ws://localhost:8500/ws/solo?token=abc", false},
		{"https maps to wss", "https://helix.example.com", EndpointMix, "abc", "wss://helix.example.com/ws/mix?token=abc", false},
		{"ws kept", "ws://10.0.0.2:8500/", EndpointLocal, "t", "ws://10.0.0.2:8500/ws/local?token=t", false},
		{"path prefix", "https://example.com/helix/", EndpointSolo, "t", "wss://example.com/helix/ws/solo?token=t", false},
		{"token escaped", "http://h", EndpointSolo, "a b&c", "ws://h/ws/solo?token=a+b%26c", false},
		{"bad scheme", "ftp://h", EndpointSolo, "t", "", true},
		{"no host", "http://", EndpointSolo, "t", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildURL(tt.base, tt.endpoint, tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BuildURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BuildURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    Endpoint
		wantErr bool
	}{
		{"solo", EndpointSolo, false},
		{"cloud", EndpointSolo, false},
		{" MIX ", EndpointMix, false},
		{"local", EndpointLocal, false},
		{"vision", "", true},
	}
	for _, tt := range tests {
		got, err := ParseEndpoint(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownEndpoint) {
				t.Errorf("ParseEndpoint(%q) error = %v, want ErrUnknownEndpoint", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseEndpoint(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("ws://h/ws/solo?token=secret")
	if got != "ws://h/ws/solo?token=REDACTED" {
		t.Errorf("redactURL() = %q", got)
	}
}

func TestCloseError(t *testing.T) {
	tests := []struct {
		code     int
		reserved bool
	}{
		{CloseInvalidToken, true},
		{CloseIPNotAllowed, true},
		{CloseTooManyConnections, false},
		{1000, false},
		{1006, false},
	}
	for _, tt := range tests {
		err := &CloseError{Code: tt.code}
		if got := errors.Is(err, ErrAuthRejected); got != tt.reserved {
			t.Errorf("code %d: errors.Is(ErrAuthRejected) = %v, want %v", tt.code, got, tt.reserved)
		}
		if got := IsReservedCloseCode(tt.code); got != tt.reserved {
			t.Errorf("IsReservedCloseCode(%d) = %v, want %v", tt.code, got, tt.reserved)
		}
	}
}
