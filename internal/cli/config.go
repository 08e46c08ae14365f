// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//
//	show (default)      Display the effective configuration
//	get KEY             Print one value
//	set KEY VALUE       Set a value and save the config file
//	init                Write a config file with the defaults
//	path                Show the configuration file path
//
// Examples:
//
//	helix config set server.base_url https://helix.example.com
//	helix config set server.default_endpoint mix
//	helix config set execute.model_assignments coding=qwen3,research=gemma3
//	helix config set history.source local
//	helix config get connection.keepalive_secs
package cli

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsunamayo7/helix-ai-studio/internal/config"
)

// configFilePath returns the file config commands read and write.
func (a *app) configFilePath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return config.ConfigPathTOML()
}

func newConfigCommand(a *app) *cobra.Command {
	show := func(cmd *cobra.Command, args []string) error {
		return runConfigShow(a)
	}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Args:  cobra.NoArgs,
		RunE:  show,
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with the defaults",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(a, force)
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Display the effective configuration",
			Args:  cobra.NoArgs,
			RunE:  show,
		},
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigGet(a, args[0])
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Set a configuration value and save it",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigSet(a, args[0], args[1])
			},
		},
		initCmd,
		&cobra.Command{
			Use:         "path",
			Short:       "Show the configuration file path",
			Args:        cobra.NoArgs,
			Annotations: map[string]string{"skipLoad": "true"},
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := a.configFilePath()
				if err != nil {
					return err
				}
				if a.jsonMode {
					_, statErr := os.Stat(path)
					return NewJSONResponse("config path", map[string]any{
						"path":   path,
						"exists": statErr == nil,
					}).Print(a.out)
				}
				fmt.Fprintln(a.out, path)
				return nil
			},
		},
	)
	return cmd
}

func runConfigShow(a *app) error {
	if a.jsonMode {
		return NewJSONResponse("config show", a.cfg).Print(a.out)
	}

	fmt.Fprintln(a.out, TitleStyle.Render("helix configuration"))
	section := ""
	for _, key := range config.GetAllKeys() {
		prefix, name, _ := strings.Cut(key, ".")
		if prefix != section {
			if section != "" {
				fmt.Fprintln(a.out)
			}
			section = prefix
			fmt.Fprintln(a.out, InfoStyle.Render("["+section+"]"))
		}
		value, err := a.cfg.Get(key)
		if err != nil {
			continue
		}
		fmt.Fprintf(a.out, "  %s %s\n", LabelStyle.Width(22).Render(name+":"), ValueStyle.Render(formatConfigValue(value)))
	}

	fmt.Fprintln(a.out, RenderSeparator())
	if path, err := a.configFilePath(); err == nil {
		fmt.Fprintf(a.out, "Config file: %s\n", DimStyle.Render(path))
	}
	return nil
}

// formatConfigValue renders values the way "config set" accepts them.
func formatConfigValue(v any) string {
	switch val := v.(type) {
	case []string:
		return strings.Join(val, ",")
	case map[string]string:
		pairs := make([]string, 0, len(val))
		for _, k := range slices.Sorted(maps.Keys(val)) {
			pairs = append(pairs, k+"="+val[k])
		}
		return strings.Join(pairs, ",")
	case string:
		if val == "" {
			return `""`
		}
		return val
	default:
		return fmt.Sprint(val)
	}
}

func runConfigGet(a *app, key string) error {
	value, err := a.cfg.Get(key)
	if err != nil {
		return ErrInvalidValue("key", key, "one of: "+strings.Join(config.GetAllKeys(), ", "))
	}
	if a.jsonMode {
		return NewJSONResponse("config get", map[string]any{"key": key, "value": value}).Print(a.out)
	}
	fmt.Fprintln(a.out, formatConfigValue(value))
	return nil
}

func runConfigSet(a *app, key, value string) error {
	path, err := a.configFilePath()
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		cfg, err = config.LoadFromPath(path)
		if err != nil {
			return err
		}
	}

	if err := cfg.Set(key, value); err != nil {
		if strings.HasPrefix(err.Error(), "unknown field") {
			return ErrInvalidValue("key", key, "helix config show lists the keys")
		}
		return ErrInvalidValue(key, value, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return NewCommandError("config", "set", err)
	}

	if a.jsonMode {
		return NewJSONResponse("config set", map[string]any{"key": key, "value": value, "path": path}).Print(a.out)
	}
	fmt.Fprintf(a.out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, value)
	return nil
}

func runConfigInit(a *app, force bool) error {
	path, err := a.configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return NewCommandError("config", "init", fmt.Errorf("%s already exists (use --force to overwrite)", path))
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return NewCommandError("config", "init", err)
	}

	if err := config.SaveTOML(config.Default(), path); err != nil {
		return NewCommandError("config", "init", err)
	}
	if a.jsonMode {
		return NewJSONResponse("config init", map[string]string{"path": path}).Print(a.out)
	}
	fmt.Fprintf(a.out, "%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}
