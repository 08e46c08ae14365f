// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the plain data structures shared by the session client.
//
// Nothing in this package talks to the network. The types describe what an
// endpoint exposes to a UI: the chat transcript, connection status and the
// progress of a multi-model ("mix") orchestration run.
//
// # Key Types
//
//   - ChatMessage: One transcript entry (role, content, error and streaming flags)
//   - ConnectionStatus: Endpoint status as reported locally or by the server
//   - PhaseInfo, WorkerStatusEntry, Phase2Progress: Mix orchestration progress
//   - ChatID, ChatSession: Identity and title of the active chat
//   - Snapshot: Immutable copy of everything an endpoint exposes
//
// # Usage
//
//	msg := model.NewUserMessage("Hello!")
//	fmt.Println(msg.Role.DisplayName(), msg.Content)
package model
