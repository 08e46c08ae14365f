// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single prompt command.
//
// Command: ask [prompt...]
// Short:   Send one prompt and print the answer
//
// Examples:
//
//	helix ask "Summarize the release notes"
//	helix ask --mode mix "Compare these two designs"
//	helix ask --chat 42 "And what about the second point?"
//	git diff | helix ask --mode local -
//
// Flags:
//
//	--mode MODE       solo, mix or local (default: server.default_endpoint)
//	--chat ID         continue an existing chat
//	-m, --model NAME  model id, or the local model name
//	--timeout SECS    server-side execution timeout (0 keeps the server default)
//	--attach PATH     file path attached to the prompt (repeatable)
//	--wait DURATION   give up waiting for the answer after DURATION
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

type askOptions struct {
	sendFlags
	wait time.Duration
}

func newAskCommand(a *app) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Send one prompt and print the answer",
		Long: `Send one prompt to an execution endpoint and stream the answer.

The prompt is the joined arguments. A single "-" reads it from stdin.`,
		Example: `  helix ask "Summarize the release notes"
  helix ask --mode mix "Compare these two designs"
  git diff | helix ask --mode local -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), a, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.mode, "mode", "", "execution endpoint: solo, mix or local")
	flags.StringVar(&opts.chatID, "chat", "", "continue the chat with this id")
	flags.StringVarP(&opts.model, "model", "m", "", "model id (local model name with --mode local)")
	flags.IntVar(&opts.timeout, "timeout", 0, "server-side execution timeout in seconds")
	flags.StringArrayVar(&opts.attach, "attach", nil, "attach a file path (repeatable)")
	flags.DurationVar(&opts.wait, "wait", 0, "stop waiting for the answer after this long")
	return cmd
}

// readPrompt joins args, or reads stdin when the only argument is "-".
func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}

func runAsk(ctx context.Context, a *app, opts *askOptions, args []string) error {
	prompt, err := readPrompt(a.in, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return ErrMissingArgument("prompt", `helix ask "your question"`)
	}

	mode := opts.mode
	if mode == "" {
		mode = a.cfg.Server.DefaultEndpoint
	}
	s, err := a.openSession(mode, false)
	if err != nil {
		return err
	}
	defer s.Close()
	ep := s.endpoint

	if err := ep.Connect(); err != nil {
		return NewCommandError("ask", "connect", err)
	}
	if err := waitConnected(ctx, ep, a.cfg.Connection.DialTimeout()); err != nil {
		return err
	}

	if opts.chatID != "" {
		if err := ep.SelectChat(ctx, model.ChatID(opts.chatID)); err != nil {
			return NewCommandError("ask", "load chat", err)
		}
	}

	if opts.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.wait)
		defer cancel()
	}

	var r *Renderer
	if !a.jsonMode && !a.quiet {
		r = NewRenderer(a.out)
		r.MarkPrinted(ep.Snapshot())
	}

	if err := sendPrompt(ep, prompt, opts.sendFlags); err != nil {
		return NewCommandError("ask", "send", err)
	}
	snap, err := waitAnswer(ctx, ep, r)
	if err != nil {
		return NewCommandError("ask", "wait", err)
	}
	if snap.Status == model.StatusCancelled {
		return NewCommandError("ask", "wait", context.Canceled)
	}

	answer, ok := lastAnswer(snap)
	if !ok {
		return NewCommandError("ask", "wait", fmt.Errorf("no answer received"))
	}

	switch {
	case a.jsonMode:
		data := AskData{
			Endpoint: ep.Name().String(),
			ChatID:   snap.Session.ActiveChatID.String(),
			Title:    snap.Session.ChatTitle,
			Answer:   answer.Content,
			IsError:  answer.IsError,
		}
		if err := NewJSONResponse("ask", data).Print(a.out); err != nil {
			return err
		}
	case a.quiet:
		fmt.Fprintln(a.out, answer.Content)
	}

	if answer.IsError {
		return NewCommandError("ask", "execute", fmt.Errorf("server reported an error: %s", answer.Content))
	}
	return nil
}
