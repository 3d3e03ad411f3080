// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ConversationsChangedMsg signals a conversation store mutation.
type ConversationsChangedMsg struct{}

// EngineChangedMsg signals a change of loading state or model catalog.
type EngineChangedMsg struct{}

// SettingsChangedMsg signals that settings were saved or reloaded.
type SettingsChangedMsg struct{}

// ModelsLoadedMsg reports the catalog size after a model refresh.
type ModelsLoadedMsg struct {
	Count int
}

// SendDoneMsg reports that a send finished streaming.
type SendDoneMsg struct {
	ChatID string
	Err    error
}

// waitFor blocks on a change channel and turns its next signal into msg.
// A closed channel yields nil, which Bubble Tea ignores.
func waitFor(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return msg
	}
}
