// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/heavon/internal/ui/chat"
	"github.com/jeranaias/heavon/internal/ui/styles"
)

// ErrNoTerminal is returned when the TUI is started without a terminal.
var ErrNoTerminal = errors.New("the TUI needs a terminal; use 'heavon chat' for piped input")

// defaultTUILog is used when the config logs to stderr, which the TUI
// would draw over.
const defaultTUILog = "heavon.log"

func runTUI(ctx context.Context, opts *rootOptions) error {
	if !IsTTY() || !IsStdoutTTY() {
		return ErrNoTerminal
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if path, _ := cfg.LogPath(); path == "" {
		cfg.Log.File = defaultTUILog
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	m := chat.New(ctx, chat.Deps{
		Engine:         a.engine,
		Conversations:  a.conversations,
		Settings:       a.settings,
		Theme:          styles.NewTheme(cfg.UI.Theme),
		ShowTimestamps: cfg.UI.ShowTimestamps,
		Logger:         &a.logger,
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
