// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/heavon/internal/engine"
	"github.com/jeranaias/heavon/internal/store"
	"github.com/jeranaias/heavon/internal/ui/styles"
)

// Layout constants.
const (
	sidebarWidth    = 28
	minSidebarTotal = 70 // below this terminal width the chat list is hidden
	inputHeight     = 3
	closeTimeout    = 2 * time.Second
)

type focusArea int

const (
	focusInput focusArea = iota
	focusList
)

type overlayKind int

const (
	overlayNone overlayKind = iota
	overlaySettings
	overlayPicker
)

// Deps are the collaborators the chat view renders and drives.
type Deps struct {
	Engine         *engine.Engine
	Conversations  *store.ConversationStore
	Settings       *store.SettingsStore
	Theme          *styles.Theme
	ShowTimestamps bool
	Logger         *zerolog.Logger
}

// lifecycle is shared by every copy of the Model so that Close sees the
// sends started from any of them.
type lifecycle struct {
	sends       sync.WaitGroup
	unsubscribe []func()
	closeOnce   sync.Once
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	engine        *engine.Engine
	conversations *store.ConversationStore
	settings      *store.SettingsStore
	theme         *styles.Theme
	logger        zerolog.Logger
	keys          KeyMap

	ctx   context.Context
	life  *lifecycle
	convs <-chan struct{}
	eng   <-chan struct{}
	sets  <-chan struct{}

	// Dimensions
	width  int
	height int
	ready  bool

	// UI components
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	spinning bool

	focus   focusArea
	overlay overlayKind
	form    settingsForm
	picker  modelPicker

	showTimestamps bool
	listCursor     int
	activeID       string
	currentModel   string

	// streams holds the cancel function of each send started here, by chat.
	streams map[string]context.CancelFunc

	status    string
	statusErr bool
}

// New creates the chat view. ctx bounds every send and model refresh.
func New(ctx context.Context, deps Deps) Model {
	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	theme := deps.Theme
	if theme == nil {
		theme = styles.NewTheme("")
	}

	keys := DefaultKeyMap()

	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.ShowLineNumbers = false
	input.Prompt = ""
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline = keys.Newline
	input.Focus()

	spin := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	m := Model{
		engine:         deps.Engine,
		conversations:  deps.Conversations,
		settings:       deps.Settings,
		theme:          theme,
		logger:         logger.With().Str("component", "tui").Logger(),
		keys:           keys,
		ctx:            ctx,
		life:           &lifecycle{},
		input:          input,
		viewport:       viewport.New(0, 0),
		spinner:        spin,
		showTimestamps: deps.ShowTimestamps,
		streams:        make(map[string]context.CancelFunc),
		currentModel:   deps.Engine.DefaultModel(),
	}

	var unsub func()
	m.convs, unsub = m.conversations.Subscribe()
	m.life.unsubscribe = append(m.life.unsubscribe, unsub)
	m.eng, unsub = m.engine.Subscribe()
	m.life.unsubscribe = append(m.life.unsubscribe, unsub)
	m.sets, unsub = m.settings.Subscribe()
	m.life.unsubscribe = append(m.life.unsubscribe, unsub)

	m.syncActive()
	return m
}

// Init starts listening for store changes and refreshes the model list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		waitFor(m.convs, ConversationsChangedMsg{}),
		waitFor(m.eng, EngineChangedMsg{}),
		waitFor(m.sets, SettingsChangedMsg{}),
		m.refreshModels(),
	)
}

// Close cancels running sends, waits briefly for them to record the
// cancellation, and drops the store subscriptions. It is safe to call more
// than once.
func (m Model) Close() {
	m.life.closeOnce.Do(func() {
		for _, cancel := range m.streams {
			cancel()
		}
		done := make(chan struct{})
		go func() {
			m.life.sends.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(closeTimeout):
			m.logger.Warn().Msg("sends still running at exit")
		}
		for _, unsub := range m.life.unsubscribe {
			unsub()
		}
	})
}

// CurrentModel returns the model id used for the next send.
func (m Model) CurrentModel() string {
	return m.currentModel
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m Model) refreshModels() tea.Cmd {
	eng, ctx := m.engine, m.ctx
	return func() tea.Msg {
		return ModelsLoadedMsg{Count: eng.RefreshModels(ctx)}
	}
}

// send starts streaming the input into the active chat, creating one when
// none is active.
func (m *Model) send() tea.Cmd {
	content := m.input.Value()
	if strings.TrimSpace(content) == "" {
		return nil
	}

	chatID := m.conversations.ActiveChatID()
	if _, ok := m.conversations.Chat(chatID); !ok {
		chatID = m.conversations.CreateChat(m.currentModel)
	}
	if _, running := m.streams[chatID]; running || m.engine.LoadingChat(chatID) {
		m.setStatus("Wait for the reply to finish", true)
		return nil
	}
	m.input.Reset()
	m.setStatus("", false)

	ctx, cancel := context.WithCancel(m.ctx)
	m.streams[chatID] = cancel
	m.life.sends.Add(1)

	eng, modelID, life := m.engine, m.currentModel, m.life
	return func() tea.Msg {
		defer life.sends.Done()
		defer cancel()
		err := eng.SendMessage(ctx, content, modelID, chatID)
		return SendDoneMsg{ChatID: chatID, Err: err}
	}
}

// cancelStream stops the send running in chatID, if any.
func (m *Model) cancelStream(chatID string) bool {
	cancel, ok := m.streams[chatID]
	if !ok {
		return false
	}
	cancel()
	return true
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

// =============================================================================
// STATE SYNC
// =============================================================================

// syncActive follows the store's active chat. When it changes, the current
// model switches to the chat's model and the list cursor jumps to it.
func (m *Model) syncActive() {
	chats := m.conversations.Chats()
	id := m.conversations.ActiveChatID()
	if id != m.activeID {
		m.activeID = id
		for i, c := range chats {
			if c.ID == id {
				m.listCursor = i
				if c.Model != "" {
					m.currentModel = c.Model
				}
				break
			}
		}
	}
	if m.listCursor >= len(chats) {
		m.listCursor = len(chats) - 1
	}
	if m.listCursor < 0 {
		m.listCursor = 0
	}
}

// refreshTranscript re-renders the active chat into the viewport, keeping
// the view pinned to the bottom when it already was there.
func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	pinned := m.viewport.AtBottom()
	chat, _ := m.conversations.Chat(m.activeID)
	target, _ := m.engine.StreamTarget(m.activeID)
	m.viewport.SetContent(renderTranscript(m.theme, chat, target, m.spinner.View(), m.viewport.Width, m.showTimestamps))
	if pinned || target != "" {
		m.viewport.GotoBottom()
	}
}

// ensureSpinner starts the spinner when a send is loading.
func (m *Model) ensureSpinner() tea.Cmd {
	if m.spinning || !m.engine.Loading() {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) showSidebar() bool {
	return m.width >= minSidebarTotal
}

func (m Model) mainWidth() int {
	w := m.width - 1
	if m.showSidebar() {
		w -= sidebarWidth + 2
	}
	return max(w, 10)
}

func (m Model) bodyHeight() int {
	// header and status bar take one line each
	return max(m.height-2, 3)
}

func (m *Model) handleResize(width, height int) {
	m.width = width
	m.height = height
	m.ready = true

	mw := m.mainWidth()
	m.input.SetWidth(mw - 2)
	m.viewport.Width = mw
	m.viewport.Height = max(m.bodyHeight()-inputHeight-2, 1)
	m.refreshTranscript()
}

func (m *Model) setFocus(f focusArea) tea.Cmd {
	m.focus = f
	if f == focusInput {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}
