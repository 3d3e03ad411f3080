// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jeranaias/heavon/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	model      string
	logLevel   string
}

// NewRootCommand builds the heavon command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "heavon",
		Short: "Chat with hosted language models from the terminal",
		Long: `heavon streams conversations with models served by OpenRouter or the
Hugging Face router, and keeps your chats on this machine.

Run without a subcommand to open the terminal UI.

Quick Start:
  heavon config set provider.openrouter_key sk-or-...
  heavon                          # open the TUI
  heavon chat -m openai/gpt-4-turbo
  heavon chats                    # list saved chats`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			lipgloss.SetColorProfile(GetColorProfile())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default: ~/.heavon/config.toml)")
	flags.StringVarP(&opts.model, "model", "m", "", "model id (overrides default_model)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug/info/warn/error)")

	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	cmd.AddCommand(
		newChatCommand(opts),
		newModelsCommand(opts),
		newChatsCommand(opts),
		newExportCommand(opts),
		newConfigCommand(opts),
	)
	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitCode(err)
	}
	return ExitSuccess
}

// configFile returns the config file path in use.
func (o *rootOptions) configFile() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.ConfigPathTOML()
}

// loadConfig loads the config file and applies the persistent flags.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, &ConfigError{Path: o.configPath, Err: err}
	}

	if o.model != "" {
		cfg.DefaultModel = o.model
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}
