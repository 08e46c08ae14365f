// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chats.go - Chat history commands.
//
// Command: chats [subcommand]
// Short:   List, show, export, rename and delete chats
//
// Subcommands:
//
//	list (default)    List chats, newest first
//	show ID           Print the transcript of a chat
//	new               Create an empty chat on the server
//	rename ID TITLE   Set the title of a chat
//	mode ID MODE      Set the context mode of a chat (single, session, full)
//	rm ID             Delete a chat
//	export ID         Write a chat to a Markdown or JSON file
//
// With history.source = "local" every subcommand except new and mode works on
// the local archive instead of the server.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsunamayo7/helix-ai-studio/internal/auth"
	"github.com/tsunamayo7/helix-ai-studio/internal/conn"
	"github.com/tsunamayo7/helix-ai-studio/internal/export"
	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
	"github.com/tsunamayo7/helix-ai-studio/internal/storage"
)

// =============================================================================
// STORES
// =============================================================================

// chatStore is the chat history as the chats command sees it.
type chatStore interface {
	history.Store
	// ListChats lists chats of endpoint, all chats when it is empty.
	ListChats(ctx context.Context, endpoint string) ([]history.ChatSummary, error)
	DeleteChat(ctx context.Context, id model.ChatID) error
	Rename(ctx context.Context, id model.ChatID, title string) error
	Close() error
}

// remoteStore serves chats from the service.
type remoteStore struct {
	*history.Client
	cred *auth.FileProvider
}

func (s remoteStore) ListChats(ctx context.Context, endpoint string) ([]history.ChatSummary, error) {
	tab := ""
	if endpoint != "" {
		tab = history.TabForEndpoint(endpoint)
	}
	return s.Client.ListChats(ctx, tab)
}

func (s remoteStore) Rename(ctx context.Context, id model.ChatID, title string) error {
	return s.UpdateTitle(ctx, id, title)
}

func (s remoteStore) Close() error { return s.cred.Close() }

// archiveStore serves chats from the local archive.
type archiveStore struct {
	*storage.Archive
}

func (s archiveStore) Rename(ctx context.Context, id model.ChatID, title string) error {
	if _, err := s.GetChat(ctx, id); err != nil {
		return err
	}
	return s.SetTitle(ctx, id, title)
}

// openChatStore returns the store selected by history.source.
func (a *app) openChatStore() (chatStore, error) {
	if a.useArchive() {
		archive, err := a.openArchive()
		if err != nil {
			return nil, err
		}
		return archiveStore{archive}, nil
	}
	cred, err := a.credentials(false)
	if err != nil {
		return nil, err
	}
	return remoteStore{Client: a.historyClient(cred), cred: cred}, nil
}

// parseEndpointFlag validates an optional endpoint filter.
func parseEndpointFlag(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	ep, err := conn.ParseEndpoint(name)
	if err != nil {
		return "", ErrInvalidValue("mode", name, "solo, mix or local")
	}
	return ep.String(), nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func newChatsCommand(a *app) *cobra.Command {
	var mode string
	list := func(cmd *cobra.Command, args []string) error {
		return runChatsList(cmd.Context(), a, mode)
	}

	cmd := &cobra.Command{
		Use:     "chats",
		Aliases: []string{"history"},
		Short:   "List, show, export, rename and delete chats",
		Args:    cobra.NoArgs,
		RunE:    list,
	}
	cmd.PersistentFlags().StringVar(&mode, "mode", "", "only chats of this endpoint: solo, mix or local")

	var format, outDir string
	exportCmd := &cobra.Command{
		Use:   "export ID",
		Short: "Write a chat to a Markdown or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatsExport(cmd.Context(), a, model.ChatID(args[0]), format, outDir)
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "markdown", "markdown or json")
	exportCmd.Flags().StringVarP(&outDir, "output", "o", ".", "directory to write the file into")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List chats, newest first",
			Args:  cobra.NoArgs,
			RunE:  list,
		},
		&cobra.Command{
			Use:   "show ID",
			Short: "Print the transcript of a chat",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runChatsShow(cmd.Context(), a, model.ChatID(args[0]))
			},
		},
		&cobra.Command{
			Use:   "new",
			Short: "Create an empty chat on the server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runChatsNew(cmd.Context(), a, mode)
			},
		},
		&cobra.Command{
			Use:   "rename ID TITLE",
			Short: "Set the title of a chat",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runChatsRename(cmd.Context(), a, model.ChatID(args[0]), strings.Join(args[1:], " "))
			},
		},
		&cobra.Command{
			Use:   "mode ID MODE",
			Short: "Set how much chat history the server sends with each prompt",
			Long: `Set the context mode of a chat on the server:

  single   only the new prompt
  session  recent messages plus a summary of older ones (default)
  full     every message of the chat, verbatim`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runChatsMode(cmd.Context(), a, model.ChatID(args[0]), args[1])
			},
		},
		&cobra.Command{
			Use:     "rm ID",
			Aliases: []string{"delete"},
			Short:   "Delete a chat",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runChatsDelete(cmd.Context(), a, model.ChatID(args[0]))
			},
		},
		exportCmd,
	)
	return cmd
}

func runChatsList(ctx context.Context, a *app, mode string) error {
	endpoint, err := parseEndpointFlag(mode)
	if err != nil {
		return err
	}
	store, err := a.openChatStore()
	if err != nil {
		return err
	}
	defer store.Close()

	chats, err := store.ListChats(ctx, endpoint)
	if err != nil {
		return NewCommandError("chats", "list", err)
	}
	if a.jsonMode {
		if chats == nil {
			chats = []history.ChatSummary{}
		}
		return NewJSONResponse("chats list", chats).Print(a.out)
	}
	fmt.Fprint(a.out, storage.FormatChatList(chats))
	return nil
}

func runChatsShow(ctx context.Context, a *app, id model.ChatID) error {
	store, err := a.openChatStore()
	if err != nil {
		return err
	}
	defer store.Close()

	chat, err := store.GetChat(ctx, id)
	if err != nil {
		return NewCommandError("chats", "show", err)
	}
	transcript := chat.Transcript()

	if a.jsonMode {
		data := struct {
			history.ChatSummary
			Messages []model.ChatMessage `json:"messages"`
		}{chat.ChatSummary, transcript}
		return NewJSONResponse("chats show", data).Print(a.out)
	}

	title := chat.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintln(a.out, TitleStyle.Render(title))
	fmt.Fprintf(a.out, "%s %s\n", RenderLabel("ID:"), chat.ID)
	if chat.Tab != "" {
		fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Tab:"), chat.Tab)
	}
	fmt.Fprintf(a.out, "%s %d\n", RenderLabel("Messages:"), len(transcript))
	fmt.Fprintln(a.out, RenderSeparator())

	r := NewRenderer(a.out)
	r.ShowUser = true
	r.Render(model.Snapshot{Messages: transcript})
	return nil
}

func runChatsNew(ctx context.Context, a *app, mode string) error {
	endpoint, err := parseEndpointFlag(mode)
	if err != nil {
		return err
	}
	if endpoint == "" {
		endpoint = a.cfg.Server.DefaultEndpoint
	}
	cred, err := a.credentials(false)
	if err != nil {
		return err
	}
	defer cred.Close()

	chat, err := a.historyClient(cred).CreateChat(ctx, history.TabForEndpoint(endpoint))
	if err != nil {
		return NewCommandError("chats", "new", err)
	}
	if a.jsonMode {
		return NewJSONResponse("chats new", chat).Print(a.out)
	}
	fmt.Fprintf(a.out, "%s Created chat %s\n", SuccessStyle.Render("[OK]"), chat.ID)
	return nil
}

func runChatsRename(ctx context.Context, a *app, id model.ChatID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrMissingArgument("title", "helix chats rename ID TITLE")
	}
	store, err := a.openChatStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Rename(ctx, id, title); err != nil {
		return NewCommandError("chats", "rename", err)
	}
	if a.jsonMode {
		return NewJSONResponse("chats rename", map[string]string{"id": id.String(), "title": title}).Print(a.out)
	}
	fmt.Fprintf(a.out, "%s Renamed chat %s\n", SuccessStyle.Render("[OK]"), id)
	return nil
}

func runChatsMode(ctx context.Context, a *app, id model.ChatID, mode string) error {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if !history.IsContextMode(mode) {
		return ErrInvalidValue("mode", mode, strings.Join(history.ContextModes, ", "))
	}
	cred, err := a.credentials(false)
	if err != nil {
		return err
	}
	defer cred.Close()

	if err := a.historyClient(cred).SetContextMode(ctx, id, mode); err != nil {
		return NewCommandError("chats", "mode", err)
	}
	if a.jsonMode {
		return NewJSONResponse("chats mode", map[string]string{"id": id.String(), "context_mode": mode}).Print(a.out)
	}
	fmt.Fprintf(a.out, "%s Chat %s uses %s context\n", SuccessStyle.Render("[OK]"), id, mode)
	return nil
}

func runChatsDelete(ctx context.Context, a *app, id model.ChatID) error {
	store, err := a.openChatStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteChat(ctx, id); err != nil {
		return NewCommandError("chats", "rm", err)
	}
	if a.jsonMode {
		return NewJSONResponse("chats rm", map[string]string{"id": id.String()}).Print(a.out)
	}
	fmt.Fprintf(a.out, "%s Deleted chat %s\n", SuccessStyle.Render("[OK]"), id)
	return nil
}

func runChatsExport(ctx context.Context, a *app, id model.ChatID, format, outDir string) error {
	exporter, err := export.ForFormat(format, nil)
	if err != nil {
		return ErrInvalidValue("format", format, "markdown or json")
	}
	store, err := a.openChatStore()
	if err != nil {
		return err
	}
	defer store.Close()

	chat, err := store.GetChat(ctx, id)
	if err != nil {
		return NewCommandError("chats", "export", err)
	}
	path, err := export.ExportToFile(chat, exporter, outDir, nil)
	if err != nil {
		return NewCommandError("chats", "export", err)
	}
	if a.jsonMode {
		return NewJSONResponse("chats export", map[string]string{"id": id.String(), "path": path}).Print(a.out)
	}
	fmt.Fprintf(a.out, "%s Exported chat %s to %s\n", SuccessStyle.Render("[OK]"), id, path)
	return nil
}
