// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds every style the TUI renders with.
type Theme struct {
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout
	App     lipgloss.Style
	Header  lipgloss.Style
	Sidebar lipgloss.Style
	Main    lipgloss.Style

	// Header
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	// Chat list
	ChatItem         lipgloss.Style
	ChatItemSelected lipgloss.Style
	ChatItemActive   lipgloss.Style
	ChatPreview      lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	MessageBody    lipgloss.Style
	Timestamp      lipgloss.Style
	Thinking       lipgloss.Style
	Empty          lipgloss.Style

	// Input
	InputBox        lipgloss.Style
	InputBoxFocused lipgloss.Style

	// Overlays: settings form and model picker
	Overlay      lipgloss.Style
	OverlayTitle lipgloss.Style
	FieldLabel   lipgloss.Style
	ListItem     lipgloss.Style
	ListSelected lipgloss.Style

	// Status bar
	StatusBar    lipgloss.Style
	StatusKey    lipgloss.Style
	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	Spinner      lipgloss.Style
}

// NewTheme creates a theme. name is "dark" or "light"; anything else keeps
// the background the terminal reports.
func NewTheme(name string) *Theme {
	colorProfile := termenv.ColorProfile()
	isDark := termenv.HasDarkBackground()
	switch name {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.App = lipgloss.NewStyle()

	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.HeaderModel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)
	t.Main = lipgloss.NewStyle().
		PaddingLeft(1)

	t.ChatItem = lipgloss.NewStyle().
		Foreground(TextPrimary)
	t.ChatItemSelected = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SelectionBg).
		Bold(true)
	t.ChatItemActive = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.ChatPreview = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.UserLabel = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)
	t.SystemLabel = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)
	t.MessageBody = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)
	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.Thinking = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true).
		PaddingLeft(2)
	t.Empty = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		Padding(1, 2)

	t.InputBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(OverlayDim)
	t.InputBoxFocused = t.InputBox.
		BorderForeground(Cyan)

	t.Overlay = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(1, 2)
	t.OverlayTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple).
		MarginBottom(1)
	t.FieldLabel = lipgloss.NewStyle().
		Foreground(TextSecondary)
	t.ListItem = lipgloss.NewStyle().
		Foreground(TextPrimary)
	t.ListSelected = lipgloss.NewStyle().
		Foreground(Cyan).
		Background(SelectionBg).
		Bold(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.StatusKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.SuccessStyle = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)
	t.ErrorStyle = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)
	t.WarningStyle = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)
	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)
}

// RoleLabel returns the style for a message author label.
func (t *Theme) RoleLabel(role string) lipgloss.Style {
	switch role {
	case "user":
		return t.UserLabel
	case "system":
		return t.SystemLabel
	default:
		return t.AssistantLabel
	}
}
