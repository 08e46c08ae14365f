// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// exec.go - Connecting, sending and waiting for answers, shared by ask and
// chat.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tsunamayo7/helix-ai-studio/internal/client"
	"github.com/tsunamayo7/helix-ai-studio/internal/conn"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
	"github.com/tsunamayo7/helix-ai-studio/internal/protocol"
)

// errConnectionLost is returned when the socket drops during an execution.
var errConnectionLost = fmt.Errorf("connection lost during execution: %w", conn.ErrNotConnected)

// sendFlags are the per-prompt options shared by ask and chat.
type sendFlags struct {
	mode    string
	chatID  string
	model   string
	timeout int
	attach  []string
}

// waitConnected blocks until the endpoint reports connected. An auth
// rejection or the dial timeout ends the wait with an error.
func waitConnected(ctx context.Context, ep *client.Endpoint, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	_, err := ep.Wait(ctx, func(s model.Snapshot) bool {
		return s.Status == model.StatusConnected || ep.AuthError() != nil
	})
	if authErr := ep.AuthError(); authErr != nil {
		return fmt.Errorf("connect %s: %w", ep.Name(), authErr)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", ep.Name(), err)
	}
	return nil
}

// sendPrompt submits prompt with the options matching the endpoint.
func sendPrompt(ep *client.Endpoint, prompt string, f sendFlags) error {
	switch ep.Name() {
	case conn.EndpointMix:
		return ep.SendMix(prompt, protocol.MixOptions{ExecuteOptions: executeOptions(f)})
	case conn.EndpointLocal:
		return ep.SendLocal(prompt, protocol.LocalOptions{Model: f.model, AttachedFiles: f.attach})
	default:
		return ep.Send(prompt, executeOptions(f))
	}
}

func executeOptions(f sendFlags) protocol.ExecuteOptions {
	return protocol.ExecuteOptions{ModelID: f.model, Timeout: f.timeout, AttachedFiles: f.attach}
}

// cancelGrace bounds the wait for the server to confirm a cancellation.
const cancelGrace = 5 * time.Second

// waitAnswer renders snapshots until the execution finishes. When ctx is
// cancelled the server is asked to stop and given cancelGrace to confirm.
func waitAnswer(ctx context.Context, ep *client.Endpoint, r *Renderer) (model.Snapshot, error) {
	ch, unsubscribe := ep.Subscribe()
	defer unsubscribe()

	cancelled := false
	for {
		snap := ep.Snapshot()
		if r != nil {
			r.Render(snap)
		}
		if !snap.Executing {
			return snap, nil
		}
		if snap.Status == model.StatusDisconnected || snap.Status == model.StatusError {
			return snap, errConnectionLost
		}

		select {
		case _, ok := <-ch:
			if !ok {
				return ep.Snapshot(), conn.ErrClosed
			}
		case <-ctx.Done():
			if cancelled || !errors.Is(ctx.Err(), context.Canceled) {
				return ep.Snapshot(), ctx.Err()
			}
			cancelled = true
			if err := ep.Cancel(); err != nil {
				return ep.Snapshot(), err
			}
			var stop context.CancelFunc
			ctx, stop = context.WithTimeout(context.WithoutCancel(ctx), cancelGrace)
			defer stop()
		}
	}
}

// lastAnswer returns the final assistant or error message after the last
// user message.
func lastAnswer(s model.Snapshot) (model.ChatMessage, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		if msg.Role == model.RoleUser {
			break
		}
		if msg.Role == model.RoleAssistant || msg.IsError {
			return msg, true
		}
	}
	return model.ChatMessage{}, false
}
