// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client composes the connection manager, dispatcher, transcript and
// session tracker of one Helix endpoint into a single object.
//
// An Endpoint is the unit a caller talks to: it sends prompts, switches
// chats and exposes immutable snapshots of its state. All state of an
// endpoint is guarded by one mutex, shared with its session tracker, so
// frames applied by the reader goroutine never interleave with caller
// operations.
//
// A Client owns one Endpoint per configured endpoint name. Endpoints share no
// mutable state; the Client only connects and closes them together and
// reconnects them when the credential changes.
//
// Basic usage:
//
//	c, err := client.New(client.Options{
//		BaseURL:     "http://localhost:8500",
//		Endpoints:   []conn.Endpoint{conn.EndpointSolo},
//		Credentials: provider,
//		Store:       history.NewClient(baseURL, provider),
//	})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	solo, _ := c.Endpoint(conn.EndpointSolo)
//	if err := c.Connect(); err != nil {
//		return err
//	}
//	err = solo.Send("Hello", protocol.ExecuteOptions{})
package client
