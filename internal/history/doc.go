// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history talks to the chat-history and authentication REST API of
// the Helix service.
//
// Every request carries the bearer credential. Requests pass through a token
// bucket limiter and idempotent ones are retried with exponential backoff on
// rate limiting and server errors. Errors returned by the service are
// *APIError values that unwrap to ErrUnauthorized, ErrForbidden, ErrNotFound
// or ErrRateLimited.
//
// Store is the narrow read interface the session tracker depends on; both
// Client and the local SQLite archive implement it.
package history
