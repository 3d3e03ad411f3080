// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/heavon/internal/engine"
)

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleResize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConversationsChangedMsg:
		m.syncActive()
		m.refreshTranscript()
		return m, waitFor(m.convs, ConversationsChangedMsg{})

	case EngineChangedMsg:
		m.refreshTranscript()
		spin := m.ensureSpinner()
		return m, tea.Batch(waitFor(m.eng, EngineChangedMsg{}), spin)

	case SettingsChangedMsg:
		return m, waitFor(m.sets, SettingsChangedMsg{})

	case ModelsLoadedMsg:
		m.setStatus(fmt.Sprintf("%d models available", msg.Count), false)
		return m, nil

	case SendDoneMsg:
		delete(m.streams, msg.ChatID)
		if msg.Err != nil {
			if errors.Is(msg.Err, engine.ErrChatBusy) {
				m.setStatus("Wait for the reply to finish", true)
			} else {
				m.setStatus(msg.Err.Error(), true)
			}
		}
		m.refreshTranscript()
		return m, nil

	case spinner.TickMsg:
		if !m.engine.Loading() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshTranscript()
		return m, cmd
	}

	// Cursor blink and other component messages.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	switch m.overlay {
	case overlaySettings:
		return m.updateSettings(msg)
	case overlayPicker:
		return m.updatePicker(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Settings):
		m.overlay = overlaySettings
		m.form = newSettingsForm(m.settings.Settings(), m.mainWidth()-8)
		return m, nil

	case key.Matches(msg, m.keys.Models):
		m.overlay = overlayPicker
		m.picker = newModelPicker(m.engine.Catalog(), m.currentModel)
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		m.conversations.CreateChat(m.currentModel)
		cmd := m.setFocus(focusInput)
		return m, cmd

	case key.Matches(msg, m.keys.FocusList):
		if m.focus == focusInput {
			cmd := m.setFocus(focusList)
			return m, cmd
		}
		cmd := m.setFocus(focusInput)
		return m, cmd

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusList {
		return m.handleListKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	chats := m.conversations.Chats()

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.listCursor > 0 {
			m.listCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.listCursor < len(chats)-1 {
			m.listCursor++
		}
	case key.Matches(msg, m.keys.Select):
		if m.listCursor < len(chats) {
			m.conversations.SetActiveChatID(chats[m.listCursor].ID)
			cmd := m.setFocus(focusInput)
			return m, cmd
		}
	case key.Matches(msg, m.keys.DeleteChat):
		if m.listCursor < len(chats) {
			id := chats[m.listCursor].ID
			m.cancelStream(id)
			m.conversations.DeleteChat(id)
			m.setStatus("Chat deleted", false)
		}
	case key.Matches(msg, m.keys.Cancel):
		cmd := m.setFocus(focusInput)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		if m.cancelStream(m.conversations.ActiveChatID()) {
			m.setStatus("Stopped", false)
		}
		return m, nil

	case key.Matches(msg, m.keys.Send):
		cmd := m.send()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var (
		result overlayResult
		cmd    tea.Cmd
	)
	m.form, result, cmd = m.form.Update(msg)
	switch result {
	case overlayCommit:
		m.settings.SaveSettings(m.form.Draft())
		m.overlay = overlayNone
		m.setStatus("Settings saved", false)
		m.logger.Debug().Msg("settings saved")
	case overlayDismiss:
		m.overlay = overlayNone
	}
	return m, cmd
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var (
		result overlayResult
		cmd    tea.Cmd
	)
	m.picker, result, cmd = m.picker.Update(msg)
	switch result {
	case overlayCommit:
		if selected, ok := m.picker.Selected(); ok {
			m.currentModel = selected.ID
			m.setStatus("Model: "+selected.DisplayName(), false)
		}
		m.overlay = overlayNone
	case overlayDismiss:
		m.overlay = overlayNone
	}
	return m, cmd
}
