// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch applies inbound protocol frames to the state of one
// endpoint: connection status, the executing flag, mix orchestration progress,
// the transcript and the active chat.
//
// A Dispatcher is not safe for concurrent use. The endpoint feeds it frames
// from a single reader goroutine, under the endpoint lock, in arrival order.
package dispatch
