// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the heavon TUI.

All colors use Lip Gloss AdaptiveColor so the same palette works on light and
dark terminals. A Theme bundles the rendered styles the chat view uses:

	theme := styles.NewTheme("dark")
	title := theme.HeaderTitle.Render("heavon")

The accent colors carry meaning: Cyan marks the user, Purple the assistant,
Rose errors and Amber warnings such as a missing API key.
*/
package styles
