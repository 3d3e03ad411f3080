// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/ui/styles"
	"github.com/jeranaias/heavon/internal/util"
)

// View renders the chat view.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var main string
	switch m.overlay {
	case overlaySettings:
		main = lipgloss.Place(m.mainWidth(), m.bodyHeight(), lipgloss.Center, lipgloss.Center,
			m.form.View(m.theme))
	case overlayPicker:
		main = lipgloss.Place(m.mainWidth(), m.bodyHeight(), lipgloss.Center, lipgloss.Center,
			m.picker.View(m.theme, m.mainWidth()-10, m.bodyHeight()-10))
	default:
		main = m.renderMain()
	}

	body := main
	if m.showSidebar() {
		sidebar := m.theme.Sidebar.
			Width(sidebarWidth).
			Height(m.bodyHeight()).
			Render(m.renderChatList())
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, m.theme.Main.Render(main))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderStatusBar(),
	)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("heavon")
	modelName := m.theme.HeaderModel.Render(m.engine.Catalog().Find(m.currentModel).DisplayName())
	if chat, ok := m.conversations.Chat(m.activeID); ok {
		title += "  " + util.TruncateWidth(chat.Title, max(m.width/2, 10))
	}
	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(modelName)-2, 1)
	return m.theme.Header.Width(m.width).Render(title + strings.Repeat(" ", gap) + modelName)
}

func (m Model) renderMain() string {
	inputStyle := m.theme.InputBox
	if m.focus == focusInput {
		inputStyle = m.theme.InputBoxFocused
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		inputStyle.Render(m.input.View()),
	)
}

func (m Model) renderChatList() string {
	chats := m.conversations.Chats()
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render(fmt.Sprintf("Chats (%d)", len(chats))))
	b.WriteString("\n\n")
	if len(chats) == 0 {
		b.WriteString(m.theme.ChatPreview.Render("Ctrl+N to start"))
		return b.String()
	}

	// Each chat takes two lines: title and preview.
	rows := max((m.bodyHeight()-2)/2, 1)
	start := 0
	if m.listCursor >= rows {
		start = m.listCursor - rows + 1
	}
	end := min(start+rows, len(chats))

	for i := start; i < end; i++ {
		b.WriteString(renderChatItem(m.theme, chats[i], chatItemState{
			active:    chats[i].ID == m.activeID,
			selected:  m.focus == focusList && i == m.listCursor,
			streaming: m.engine.LoadingChat(chats[i].ID),
		}, sidebarWidth))
		b.WriteString("\n")
	}
	return b.String()
}

type chatItemState struct {
	active    bool
	selected  bool
	streaming bool
}

func renderChatItem(theme *styles.Theme, chat model.Chat, state chatItemState, width int) string {
	marker := "  "
	if state.streaming {
		marker = "* "
	}
	title := util.PadWidth(util.TruncateWidth(marker+chat.Title, width), width)
	preview := util.PadWidth(util.TruncateWidth("  "+chat.Preview(width), width), width)

	titleStyle := theme.ChatItem
	switch {
	case state.selected:
		titleStyle = theme.ChatItemSelected
	case state.active:
		titleStyle = theme.ChatItemActive
	}
	return titleStyle.Render(title) + "\n" + theme.ChatPreview.Render(preview)
}

// renderTranscript renders a chat's messages. The message with id
// streamingID shows a thinking indicator until its first chunk arrives.
func renderTranscript(theme *styles.Theme, chat model.Chat, streamingID, spinnerFrame string, width int, timestamps bool) string {
	if len(chat.Messages) == 0 {
		return theme.Empty.Render("Start a conversation by typing a message below.")
	}

	bodyWidth := max(width-2, 10)
	parts := make([]string, 0, len(chat.Messages))
	for _, msg := range chat.Messages {
		label := theme.RoleLabel(msg.Role.String()).Render(msg.Role.DisplayName())
		if timestamps && !msg.CreatedAt.IsZero() {
			label += " " + theme.Timestamp.Render(msg.CreatedAt.Format("15:04"))
		}

		var body string
		if msg.ID == streamingID && msg.Content == "" {
			body = theme.Thinking.Render(spinnerFrame + " Thinking...")
		} else {
			body = theme.MessageBody.Width(bodyWidth).Render(msg.Content)
		}
		parts = append(parts, label+"\n"+body)
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.status != "" && m.statusErr:
		left = m.theme.ErrorStyle.Render(styles.StatusIndicators.Error + " " + m.status)
	case m.status != "":
		left = m.theme.SuccessStyle.Render(m.status)
	}

	provider := m.engine.Catalog().Find(m.currentModel).Provider
	if m.settings.Settings().KeyFor(provider) == "" {
		warn := m.theme.WarningStyle.Render(styles.StatusIndicators.Warning + " no API key, Ctrl+S")
		if left != "" {
			left += "  "
		}
		left += warn
	}

	var help []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		help = append(help, m.theme.StatusKey.Render(h.Key)+" "+h.Desc)
	}
	right := strings.Join(help, "  ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		right = ""
		gap = max(m.width-lipgloss.Width(left)-2, 0)
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
