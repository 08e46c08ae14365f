// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conn

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint is one execution mode of the service, each with its own socket.
type Endpoint string

const (
	EndpointSolo  Endpoint = "solo"
	EndpointMix   Endpoint = "mix"
	EndpointLocal Endpoint = "local"
)

// Endpoints lists every endpoint the service serves.
var Endpoints = []Endpoint{EndpointSolo, EndpointMix, EndpointLocal}

// ParseEndpoint validates an endpoint name. "cloud" is accepted as an alias
// of solo.
func ParseEndpoint(name string) (Endpoint, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "solo", "cloud":
		return EndpointSolo, nil
	case "mix":
		return EndpointMix, nil
	case "local":
		return EndpointLocal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
	}
}

// String returns the path segment of the endpoint.
func (e Endpoint) String() string {
	return string(e)
}

// BuildURL returns the socket address of endpoint. http and https bases map
// to ws and wss. The credential travels in the token query parameter.
func BuildURL(base string, endpoint Endpoint, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid base URL %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing host", base)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + endpoint.String()
	u.RawQuery = url.Values{"token": []string{token}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// redactURL hides the credential for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
