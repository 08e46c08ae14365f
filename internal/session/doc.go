// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks the active chat of one endpoint.
//
// The Tracker owns the chat identity and title. Selecting a chat replays its
// history into the endpoint transcript; selecting no chat clears the
// transcript and the orchestration progress.
//
// # Locking
//
// The tracker shares one lock with the rest of the endpoint state, passed in
// as Config.Locker. Exported methods take that lock, except OnChatCreated and
// OnTitleUpdated, which the dispatcher calls while it already holds it.
//
// # Stale responses
//
// A history fetch runs without the lock. When it returns, its result is only
// applied if the same selection is still current:
//
//	tr.SelectChat(ctx, "a") // slow fetch
//	tr.SelectChat(ctx, "b") // supersedes "a"; the result for "a" is dropped
package session
