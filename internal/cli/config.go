// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/heavon/internal/config"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Long: `Inspect and edit the heavon configuration file.

Keys use dot notation matching the file's sections, for example
provider.base_url, storage.driver or log.level. Run 'heavon config keys'
for the full list.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				value, err := cfg.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), maskIfSecret(args[0], fmt.Sprint(value)))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change a value and save the config file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return setConfigValue(cmd, opts, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := opts.configFile()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List configuration keys",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				for _, key := range config.GetAllKeys() {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
			},
		},
	)
	return cmd
}

// setConfigValue loads the config file (or defaults when it does not exist
// yet), changes one key, validates and saves it.
func setConfigValue(cmd *cobra.Command, opts *rootOptions, key, value string) error {
	path, err := opts.configFile()
	if err != nil {
		return &ConfigError{Err: err}
	}

	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		cfg, err = config.LoadFile(path)
		if err != nil {
			return &ConfigError{Path: path, Err: err}
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Migrate(); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", SuccessStyle.Render("Set"), key, maskIfSecret(key, value))
	return nil
}

// maskAPIKey replaces a secret by a short SHA-256 fingerprint, so two
// values can be told apart without revealing either.
func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("sha256:%x...", hash[:4])
}

// maskIfSecret masks value when key names a credential.
func maskIfSecret(key, value string) string {
	keyLower := strings.ToLower(key)
	for _, s := range []string{"key", "secret", "token", "password"} {
		if strings.Contains(keyLower, s) {
			return maskAPIKey(value)
		}
	}
	return value
}
