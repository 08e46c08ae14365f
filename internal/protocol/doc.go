// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the JSON frames exchanged with the Helix
// WebSocket service.
//
// Inbound frames are tagged by a "type" discriminator. Decode maps each tag
// onto a concrete Go type; every type implements Frame.Accept, which calls
// the matching Visitor method. Adding a frame kind therefore requires adding
// a Visitor method, and every Visitor implementation stops compiling until it
// handles the new kind.
//
// Outbound frames are execute commands in three variants (single-model, mix,
// local) plus the ping and cancel actions.
package protocol
