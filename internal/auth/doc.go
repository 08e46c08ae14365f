// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth supplies the bearer credential used by the socket and REST
// clients.
//
// A Provider returns the current token. Providers that can change notify
// subscribers, and the client restarts its connections with the new token:
//
//	tokens, err := auth.NewFileProvider(auth.DefaultTokenPath(), auth.FileOptions{})
//	if err := tokens.Watch(); err != nil { ... }
//	defer tokens.Close()
//
//	stop := tokens.Subscribe(func(token string) { endpoint.Reconnect() })
//	defer stop()
//
// Login exchanges a PIN for a token and stores it through a TokenSink.
package auth
