// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error variables for common service errors.
var (
	// ErrNoCredential indicates no bearer credential is available.
	ErrNoCredential = errors.New("no credential")

	// ErrUnauthorized indicates a missing, invalid or expired credential, or a wrong PIN.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the client address is not allowed.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the chat does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidContextMode is returned for a mode outside ContextModes.
	ErrInvalidContextMode = errors.New("invalid context mode")
)

// APIError represents an error response from the service.
type APIError struct {
	Status     int
	Detail     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("helix API error (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("helix API error (HTTP %d)", e.Status)
}

// Unwrap maps the status onto a sentinel error.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

// Temporary reports whether retrying may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || (e.Status >= 500 && e.Status < 600)
}

// errorResponse is the error body of the service. Validation errors carry a
// list in detail instead of a string.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// newAPIError converts an error response into an *APIError.
func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Detail) > 0 {
		var s string
		if json.Unmarshal(parsed.Detail, &s) == nil {
			apiErr.Detail = s
		} else {
			apiErr.Detail = string(parsed.Detail)
		}
	} else {
		apiErr.Detail = strings.TrimSpace(string(body))
	}

	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}
