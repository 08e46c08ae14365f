// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Server reachability and login state.
//
// Command: status
// Short:   Show server and login status
//
// The health check is unauthenticated. When a token is stored it is also
// verified, so a single call tells whether helix is ready to use.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsunamayo7/helix-ai-studio/internal/config"
)

// statusTimeout bounds each status request.
const statusTimeout = 10 * time.Second

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show server and login status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), a)
		},
	}
}

func runStatus(ctx context.Context, a *app) error {
	cred, err := a.credentials(false)
	if err != nil {
		return err
	}
	defer cred.Close()
	hc := a.historyClient(cred).WithMaxRetries(1)

	data := StatusData{
		Server:    a.cfg.Server.BaseURL,
		Endpoints: a.cfg.Server.Endpoints,
		LoggedIn:  cred.Token() != "",
		TokenFile: cred.Path(),
		History:   a.cfg.History.Source,
	}
	if a.useArchive() || a.cfg.History.Record {
		data.Archive = a.cfg.History.ArchivePath
	}
	if a.configPath != "" {
		data.ConfigFile = a.configPath
	} else if path, err := config.ConfigPathTOML(); err == nil {
		data.ConfigFile = path
	}

	healthCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	health, healthErr := hc.Health(healthCtx)
	cancel()
	if healthErr == nil {
		data.Reachable = true
		data.Service = health.Service
		data.Version = health.Version
	} else {
		a.log.Debug("health check failed", zap.Error(healthErr))
	}

	if data.Reachable && data.LoggedIn {
		verifyCtx, cancel := context.WithTimeout(ctx, statusTimeout)
		result, err := hc.Verify(verifyCtx)
		cancel()
		valid := err == nil && result.Valid
		data.TokenValid = &valid
		if err != nil {
			a.log.Debug("token verification failed", zap.Error(err))
		}
	}

	if a.jsonMode {
		return NewJSONResponse("status", data).Print(a.out)
	}

	fmt.Fprintln(a.out, TitleStyle.Render("Helix AI Studio"))
	fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Server:"), data.Server)
	if data.Reachable {
		service := data.Service
		if data.Version != "" {
			service += " " + data.Version
		}
		fmt.Fprintf(a.out, "%s %s %s\n", RenderLabel("Reachable:"), SuccessStyle.Render("yes"), DimStyle.Render(service))
	} else {
		fmt.Fprintf(a.out, "%s %s %s\n", RenderLabel("Reachable:"), ErrorStyle.Render("no"), DimStyle.Render(healthErr.Error()))
	}

	switch {
	case !data.LoggedIn:
		fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Login:"), WarningStyle.Render("not logged in (run helix login)"))
	case data.TokenValid == nil:
		fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Login:"), ValueStyle.Render("token stored, not verified"))
	case *data.TokenValid:
		fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Login:"), SuccessStyle.Render("token valid"))
	default:
		fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Login:"), ErrorStyle.Render("token rejected (run helix login)"))
	}

	fmt.Fprintf(a.out, "%s %v\n", RenderLabel("Endpoints:"), data.Endpoints)
	fmt.Fprintf(a.out, "%s %s\n", RenderLabel("History:"), data.History)
	if data.Archive != "" {
		fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Archive:"), data.Archive)
	}
	fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Token file:"), data.TokenFile)
	fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Config:"), data.ConfigFile)
	return nil
}
