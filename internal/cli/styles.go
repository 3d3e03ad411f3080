// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/heavon/internal/ui/styles"
)

// Shared styles for command output. The color profile is applied when the
// root command runs, so piped output stays plain.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Cyan)

	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	PromptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)
)

// RenderSeparator renders a horizontal rule of the given width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 70
	}
	return DimStyle.Render(strings.Repeat("-", width))
}
