// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript assembles streamed answer fragments into an ordered
// chat transcript.
//
// The transcript is append-only except for the trailing slot, which is an
// explicit state machine:
//
//	SlotIdle --chunk--> SlotStreaming --final chunk--> SlotSealed
//	    ^                     |                            |
//	    +------- Clear -------+------ next chunk ----------+
//
// At most one message is streaming and it is always the last one. Any other
// append while a message is streaming seals that message first.
//
// A Transcript is not safe for concurrent use; the owning endpoint
// serializes access.
package transcript
