// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat session.
//
// Command: chat
// Short:   Start an interactive chat
//
// Slash commands inside the session:
//
//	/new              Start a new chat
//	/chat ID          Continue an existing chat
//	/chats            List chats of this endpoint
//	/status           Show connection and chat state
//	/clear            Clear the screen transcript
//	/help             Show the commands
//	/quit, /exit      Leave the session
//
// Keys:
//
//	Ctrl+C            Cancel the running execution
//	Ctrl+D            Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/tsunamayo7/helix-ai-studio/internal/client"
	"github.com/tsunamayo7/helix-ai-studio/internal/config"
	"github.com/tsunamayo7/helix-ai-studio/internal/conn"
	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
	"github.com/tsunamayo7/helix-ai-studio/internal/storage"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads prompts with line editing and a persistent history.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &lineReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		_, _ = r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *lineReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history with owner-only permissions and restores the
// terminal.
func (r *lineReader) Close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

func newChatCommand(a *app) *cobra.Command {
	flags := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat on one execution endpoint.

Answers stream as they arrive. Ctrl+C cancels the running execution and
Ctrl+D leaves the session. Type /help for the slash commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminalReader(a.in) {
				return &TTYRequiredError{Operation: "start a chat"}
			}
			return runChat(cmd.Context(), a, flags)
		},
	}
	cmd.Flags().StringVar(&flags.mode, "mode", "", "execution endpoint: solo, mix or local")
	cmd.Flags().StringVar(&flags.chatID, "chat", "", "continue the chat with this id")
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "model id (local model name with --mode local)")
	cmd.Flags().IntVar(&flags.timeout, "timeout", 0, "server-side execution timeout in seconds")
	return cmd
}

// chatSession is the state of one interactive session.
type chatSession struct {
	app      *app
	endpoint *client.Endpoint
	remote   *history.Client
	archive  *storage.Archive
	renderer *Renderer
	flags    sendFlags
	out      io.Writer
}

func runChat(ctx context.Context, a *app, flags *sendFlags) error {
	mode := flags.mode
	if mode == "" {
		mode = a.cfg.Server.DefaultEndpoint
	}
	s, err := a.openSession(mode, true)
	if err != nil {
		return err
	}
	defer s.Close()

	// Interrupts cancel single executions, not the session.
	base := context.WithoutCancel(ctx)

	cs := &chatSession{
		app:      a,
		endpoint: s.endpoint,
		remote:   a.historyClient(s.cred),
		archive:  s.archive,
		renderer: NewRenderer(a.out),
		flags:    *flags,
		out:      a.out,
	}
	cs.renderer.ShowStatus = !a.quiet

	if err := s.endpoint.Connect(); err != nil {
		return NewCommandError("chat", "connect", err)
	}
	if err := waitConnected(ctx, s.endpoint, a.cfg.Connection.DialTimeout()); err != nil {
		return err
	}
	if flags.chatID != "" {
		if err := cs.selectChat(base, flags.chatID); err != nil {
			return err
		}
	}

	if !a.quiet {
		fmt.Fprintf(a.out, "%s %s\n", TitleStyle.Render("helix chat"), DimStyle.Render("("+s.endpoint.Name().String()+")"))
		fmt.Fprintln(a.out, InfoStyle.Render("Tip: Ctrl+C cancels the running answer, Ctrl+D exits, /help lists commands"))
	}
	cs.renderer.Render(s.endpoint.Snapshot())

	input := newLineReader()
	defer input.Close()

	for {
		line, err := input.Prompt(promptStyle.Render(s.endpoint.Name().String() + "> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed terminal.
			fmt.Fprintln(a.out)
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := cs.handleSlash(base, line)
			if err != nil {
				DisplayError(a.errOut, err, false)
			}
			if quit {
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		if err := cs.turn(base, line); err != nil {
			DisplayError(a.errOut, err, false)
			if errors.Is(err, errConnectionLost) || errors.Is(err, conn.ErrClosed) {
				return err
			}
		}
	}
}

// turn sends one prompt and renders the answer. Ctrl+C while waiting asks
// the server to cancel.
func (cs *chatSession) turn(base context.Context, prompt string) error {
	ctx, stop := signal.NotifyContext(base, os.Interrupt)
	defer stop()

	if err := sendPrompt(cs.endpoint, prompt, cs.flags); err != nil {
		return err
	}
	snap, err := waitAnswer(ctx, cs.endpoint, cs.renderer)
	if err != nil {
		return err
	}
	if snap.Status == model.StatusCancelled {
		fmt.Fprintln(cs.out, WarningStyle.Render("[Cancelled]"))
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlash runs a slash command and reports whether the session ends.
func (cs *chatSession) handleSlash(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		cs.printHelp()

	case "/new":
		cs.endpoint.NewChat()
		cs.renderer.Forget()
		fmt.Fprintln(cs.out, InfoStyle.Render("Started a new chat."))

	case "/chat", "/load":
		if len(args) != 1 {
			return false, ErrMissingArgument("chat id", "/chat ID")
		}
		return false, cs.selectChat(ctx, args[0])

	case "/chats":
		return false, cs.listChats(ctx)

	case "/status":
		cs.printStatus()

	case "/clear":
		cs.endpoint.Clear()
		cs.renderer.Forget()
		fmt.Fprint(cs.out, "\033[H\033[2J")

	default:
		return false, ErrInvalidValue("command", name, "/help lists the commands")
	}
	return false, nil
}

// selectChat loads a chat and prints its transcript.
func (cs *chatSession) selectChat(ctx context.Context, id string) error {
	if err := cs.endpoint.SelectChat(ctx, model.ChatID(id)); err != nil {
		return NewCommandError("chat", "load", err)
	}
	snap := cs.endpoint.Snapshot()
	cs.renderer.Forget()
	if title := snap.Session.ChatTitle; title != "" {
		fmt.Fprintln(cs.out, TitleStyle.Render(title))
	}
	cs.renderer.ShowUser = true
	cs.renderer.Render(snap)
	cs.renderer.ShowUser = false
	return nil
}

func (cs *chatSession) listChats(ctx context.Context) error {
	var (
		chats []history.ChatSummary
		err   error
	)
	endpoint := cs.endpoint.Name().String()
	if cs.app.useArchive() {
		chats, err = cs.archive.ListChats(ctx, endpoint)
	} else {
		chats, err = cs.remote.ListChats(ctx, history.TabForEndpoint(endpoint))
	}
	if err != nil {
		return NewCommandError("chat", "list", err)
	}
	fmt.Fprint(cs.out, storage.FormatChatList(chats))
	return nil
}

func (cs *chatSession) printStatus() {
	snap := cs.endpoint.Snapshot()
	fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Endpoint:"), snap.Endpoint)
	fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Status:"), RenderConnectionStatus(snap.Status))
	if snap.StatusDetail != "" {
		fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Detail:"), snap.StatusDetail)
	}
	chat := snap.Session.ActiveChatID.String()
	if chat == "" {
		chat = "(new)"
	}
	fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Chat:"), chat)
	if snap.Session.ChatTitle != "" {
		fmt.Fprintf(cs.out, "%s %s\n", RenderLabel("Title:"), snap.Session.ChatTitle)
	}
	fmt.Fprintf(cs.out, "%s %d\n", RenderLabel("Messages:"), len(snap.Messages))
	if !snap.Phase.IsIdle() {
		fmt.Fprintf(cs.out, "%s %d/%d %s\n", RenderLabel("Phase:"), snap.Phase.Phase, model.MaxPhase, snap.Phase.Description)
	}
}

func (cs *chatSession) printHelp() {
	fmt.Fprintln(cs.out, TitleStyle.Render("Commands"))
	for _, c := range [][2]string{
		{"/new", "start a new chat"},
		{"/chat ID", "continue an existing chat"},
		{"/chats", "list chats of this endpoint"},
		{"/status", "show connection and chat state"},
		{"/clear", "clear the transcript"},
		{"/quit", "leave the session"},
	} {
		fmt.Fprintf(cs.out, "  %s %s\n", RenderLabel(c[0]), c[1])
	}
}
