// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// root.go - Command tree and shared state for the helix CLI.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/tsunamayo7/helix-ai-studio/internal/config"
	"github.com/tsunamayo7/helix-ai-studio/internal/logging"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// APP STATE
// =============================================================================

// app is shared by every command of one invocation.
type app struct {
	// Global flags
	jsonMode   bool
	verbose    bool
	quiet      bool
	configPath string

	cfg *config.Config
	log *logging.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// load reads the configuration and builds the logger. It runs before every
// command except those that only print static information.
func (a *app) load() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if cfg == nil {
		return fmt.Errorf("config: %w", err)
	}
	if err != nil {
		fmt.Fprintf(a.errOut, "%s %v (using defaults)\n", WarningStyle.Render("[WARN]"), err)
	}
	config.SetGlobal(cfg)
	a.cfg = cfg

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.verbose {
		logger.Level.SetLevel(zapcore.DebugLevel)
	}
	a.log = logger
	return nil
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// =============================================================================
// COMMAND TREE
// =============================================================================

// NewRootCommand builds the helix command tree. in, out and errOut replace
// the standard streams; nil keeps them.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "helix",
		Short: "Terminal client for Helix AI Studio",
		Long: `helix talks to a Helix AI Studio server.

It streams answers from the single-model, multi-model and local-model
execution endpoints, keeps the chat history in sync and can mirror chats
into a local archive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipLoad"] == "true" {
				return nil
			}
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.BoolVar(&a.jsonMode, "json", false, "output in JSON format")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "minimal output")
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.helix/config.toml)")

	root.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newVerifyCommand(a),
		newAskCommand(a),
		newChatCommand(a),
		newChatsCommand(a),
		newStatusCommand(a),
		newConfigCommand(a),
		newVersionCommand(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCommand(nil, nil, nil)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	jsonMode, _ := root.PersistentFlags().GetBool("json")
	DisplayError(root.ErrOrStderr(), err, jsonMode)
	return GetExitCode(err)
}

// =============================================================================
// VERSION
// =============================================================================

// VersionInfo is the payload of "helix version --json".
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{
				Version:   Version,
				GitCommit: GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if a.jsonMode {
				return NewJSONResponse("version", info).Print(a.out)
			}
			fmt.Fprintf(a.out, "helix %s (%s, built %s, %s %s)\n",
				info.Version, info.GitCommit, info.BuildDate, info.GoVersion, info.Platform)
			return nil
		},
	}
}
