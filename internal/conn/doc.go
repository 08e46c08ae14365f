// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conn manages the WebSocket transport of one Helix endpoint.
//
// A Manager dials ws(s)://<host>/ws/<endpoint>?token=<credential>, reads
// frames on a single goroutine and hands them to a Handler in arrival order.
// When the connection drops it schedules exactly one reconnect after a fixed
// delay, unless the server closed with a reserved authentication code (4001
// invalid token, 4003 address not allowed). Those leave the manager rejected
// until Restart is called with a fresh credential.
//
// Close cancels the pending reconnect, closes the transport and waits for
// every goroutine the manager started.
//
// Basic usage:
//
//	m := conn.NewManager(conn.Options{
//	    BaseURL:     "http://localhost:8500",
//	    Endpoint:    conn.EndpointSolo,
//	    Credentials: provider,
//	    Handler:     endpoint,
//	})
//	m.Start()
//	defer m.Close()
package conn
