// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/ui/styles"
)

// overlayResult tells the chat model what an overlay wants after a key.
type overlayResult int

const (
	overlayOpen overlayResult = iota
	overlayCommit
	overlayDismiss
)

const (
	fieldOpenRouterKey = iota
	fieldHuggingFaceKey
	fieldSystemPrompt
	fieldCount
)

var fieldLabels = [fieldCount]string{
	fieldOpenRouterKey:  "OpenRouter API key",
	fieldHuggingFaceKey: "Hugging Face API key",
	fieldSystemPrompt:   "System prompt",
}

// settingsForm edits a draft copy of the settings. Nothing reaches the
// settings store until the form is committed.
type settingsForm struct {
	inputs []textinput.Model
	focus  int
}

func newSettingsForm(s model.Settings, width int) settingsForm {
	values := [fieldCount]string{
		fieldOpenRouterKey:  s.OpenRouterKey,
		fieldHuggingFaceKey: s.HuggingFaceKey,
		fieldSystemPrompt:   s.SystemPrompt,
	}

	f := settingsForm{inputs: make([]textinput.Model, fieldCount)}
	for i := range f.inputs {
		in := textinput.New()
		in.Prompt = "> "
		in.CharLimit = 4000
		in.Width = max(width, 20)
		in.SetValue(values[i])
		if i != fieldSystemPrompt {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '*'
			in.Placeholder = "not set"
		}
		f.inputs[i] = in
	}
	f.inputs[0].Focus()
	return f
}

// Draft returns the settings as currently entered.
func (f settingsForm) Draft() model.Settings {
	return model.Settings{
		OpenRouterKey:  strings.TrimSpace(f.inputs[fieldOpenRouterKey].Value()),
		HuggingFaceKey: strings.TrimSpace(f.inputs[fieldHuggingFaceKey].Value()),
		SystemPrompt:   f.inputs[fieldSystemPrompt].Value(),
	}
}

func (f settingsForm) Update(msg tea.KeyMsg) (settingsForm, overlayResult, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return f, overlayDismiss, nil
	case "ctrl+s":
		return f, overlayCommit, nil
	case "enter":
		if f.focus == fieldCount-1 {
			return f, overlayCommit, nil
		}
		return f, overlayOpen, f.setFocus(f.focus + 1)
	case "tab", "down":
		return f, overlayOpen, f.setFocus((f.focus + 1) % fieldCount)
	case "shift+tab", "up":
		return f, overlayOpen, f.setFocus((f.focus + fieldCount - 1) % fieldCount)
	}

	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, overlayOpen, cmd
}

func (f *settingsForm) setFocus(i int) tea.Cmd {
	f.inputs[f.focus].Blur()
	f.focus = i
	return f.inputs[i].Focus()
}

func (f settingsForm) View(theme *styles.Theme) string {
	var b strings.Builder
	b.WriteString(theme.OverlayTitle.Render("Settings"))
	b.WriteString("\n")
	for i, in := range f.inputs {
		b.WriteString(theme.FieldLabel.Render(fieldLabels[i]))
		b.WriteString("\n")
		b.WriteString(in.View())
		b.WriteString("\n\n")
	}
	b.WriteString(theme.Timestamp.Render("Tab next field  Ctrl+S save  Esc discard"))
	return theme.Overlay.Render(b.String())
}
