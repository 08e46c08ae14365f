// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// login.go - Credential commands: login, logout and verify.
//
// login exchanges the server PIN for a token and stores it in the token
// file. Running sessions that watch the file pick the new token up and
// reconnect.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsunamayo7/helix-ai-studio/internal/auth"
	"github.com/tsunamayo7/helix-ai-studio/internal/history"
)

func newLoginCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with the server PIN",
		Long: `Log in with the server PIN and store the token.

The PIN is read without echo from a terminal, or as one line from piped
input:

  echo "$HELIX_PIN" | helix login`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), a)
		},
	}
}

func runLogin(ctx context.Context, a *app) error {
	cred, err := a.credentials(false)
	if err != nil {
		return err
	}
	defer cred.Close()

	pin, err := readSecret(a.in, a.errOut, "PIN: ")
	if err != nil {
		return err
	}

	result, err := auth.Login(ctx, a.historyClient(cred), pin, cred)
	if err != nil {
		return err
	}
	a.log.Info("logged in")

	data := LoginData{TokenFile: cred.Path(), ExpiresInHours: result.ExpiresInHours}
	if a.jsonMode {
		return NewJSONResponse("login", data).Print(a.out)
	}
	fmt.Fprintf(a.out, "%s Logged in to %s\n", SuccessStyle.Render("[OK]"), a.cfg.Server.BaseURL)
	if !a.quiet {
		fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Token file:"), data.TokenFile)
		if data.ExpiresInHours > 0 {
			fmt.Fprintf(a.out, "%s %dh\n", RenderLabel("Expires in:"), data.ExpiresInHours)
		}
	}
	return nil
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := a.credentials(false)
			if err != nil {
				return err
			}
			defer cred.Close()

			if err := auth.Logout(cred); err != nil {
				return NewCommandError("logout", "remove token", err)
			}
			if a.jsonMode {
				return NewJSONResponse("logout", map[string]string{"token_file": cred.Path()}).Print(a.out)
			}
			fmt.Fprintf(a.out, "%s Logged out\n", SuccessStyle.Render("[OK]"))
			return nil
		},
	}
}

func newVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the stored token is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := a.credentials(false)
			if err != nil {
				return err
			}
			defer cred.Close()

			if cred.Token() == "" {
				return fmt.Errorf("not logged in, run \"helix login\": %w", history.ErrNoCredential)
			}
			result, err := a.historyClient(cred).Verify(cmd.Context())
			if err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("token rejected: %w", history.ErrUnauthorized)
			}

			if a.jsonMode {
				return NewJSONResponse("verify", result).Print(a.out)
			}
			fmt.Fprintf(a.out, "%s Token is valid", SuccessStyle.Render("[OK]"))
			if result.Subject != "" {
				fmt.Fprintf(a.out, " (%s)", result.Subject)
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}
}
