// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"iter"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/heavon/internal/cloud"
	"github.com/jeranaias/heavon/internal/engine"
	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/storage"
	"github.com/jeranaias/heavon/internal/store"
	"github.com/jeranaias/heavon/internal/ui/styles"
)

// =============================================================================
// FIXTURES
// =============================================================================

// scriptedCompleter replays chunks. With block set it yields the first chunk
// and then waits for cancellation.
type scriptedCompleter struct {
	chunks []string
	block  bool
}

func (c *scriptedCompleter) StreamCompletion(ctx context.Context, req cloud.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, chunk := range c.chunks {
			if !yield(chunk, nil) {
				return
			}
			if c.block && i == 0 {
				<-ctx.Done()
				yield("", ctx.Err())
				return
			}
		}
	}
}

type fixture struct {
	engine        *engine.Engine
	conversations *store.ConversationStore
	settings      *store.SettingsStore
}

func newFixture(t *testing.T, completer engine.Completer) fixture {
	t.Helper()
	drv := storage.NewMemoryDriver()
	logger := zerolog.Nop()
	conv := store.NewConversationStore(drv.Backend(store.ChatsKey), logger)
	settings := store.NewSettingsStore(drv.Backend(store.SettingsKey), logger)
	eng := engine.New(engine.Options{
		Conversations: conv,
		Settings:      settings,
		Completers:    map[model.Provider]engine.Completer{model.ProviderOpenRouter: completer},
		Logger:        &logger,
	})
	return fixture{engine: eng, conversations: conv, settings: settings}
}

func (f fixture) newModel(t *testing.T) Model {
	t.Helper()
	logger := zerolog.Nop()
	m := New(context.Background(), Deps{
		Engine:        f.engine,
		Conversations: f.conversations,
		Settings:      f.settings,
		Theme:         styles.NewTheme("dark"),
		Logger:        &logger,
	})
	t.Cleanup(m.Close)
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func keyMsg(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runesMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// =============================================================================
// SENDING
// =============================================================================

func TestSend_CreatesChatAndStreamsReply(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{chunks: []string{"Hello", " there"}})
	m := f.newModel(t)

	m.input.SetValue("Hi")
	m, cmd := update(t, m, keyMsg(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.Empty(t, m.input.Value())

	done, ok := cmd().(SendDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.Err)

	chat, ok := f.conversations.ActiveChat()
	require.True(t, ok)
	assert.Equal(t, done.ChatID, chat.ID)
	assert.Equal(t, model.DefaultModelID, chat.Model)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "Hi", chat.Messages[0].Content)
	assert.Equal(t, "Hello there", chat.Messages[1].Content)

	m, _ = update(t, m, done)
	assert.Empty(t, m.streams)
}

func TestSend_BlankInputIsIgnored(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{})
	m := f.newModel(t)

	m.input.SetValue("   \n ")
	_, cmd := update(t, m, keyMsg(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.Empty(t, f.conversations.Chats())
}

func TestSend_UsesSelectedModel(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{chunks: []string{"ok"}})
	m := f.newModel(t)

	m, _ = update(t, m, keyMsg(tea.KeyCtrlO))
	require.Equal(t, overlayPicker, m.overlay)
	m, _ = update(t, m, runesMsg("gpt-4"))
	m, _ = update(t, m, keyMsg(tea.KeyEnter))
	require.Equal(t, overlayNone, m.overlay)
	assert.Equal(t, "openai/gpt-4-turbo", m.CurrentModel())

	m.input.SetValue("Hi")
	_, cmd := update(t, m, keyMsg(tea.KeyEnter))
	require.NotNil(t, cmd)
	cmd()

	chat, ok := f.conversations.ActiveChat()
	require.True(t, ok)
	assert.Equal(t, "openai/gpt-4-turbo", chat.Model)
}

func TestEsc_CancelsStream(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{chunks: []string{"Partial", "never"}, block: true})
	m := f.newModel(t)

	m.input.SetValue("Hi")
	m, cmd := update(t, m, keyMsg(tea.KeyEnter))
	require.NotNil(t, cmd)
	chatID := f.conversations.ActiveChatID()

	result := make(chan tea.Msg, 1)
	go func() { result <- cmd() }()

	require.Eventually(t, func() bool {
		chat, _ := f.conversations.Chat(chatID)
		last, ok := chat.LastMessage()
		return ok && last.Content == "Partial"
	}, 2*time.Second, 5*time.Millisecond)

	// A second send on the same chat is refused while streaming.
	m.input.SetValue("again")
	m, cmd = update(t, m, keyMsg(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.True(t, m.statusErr)

	m, _ = update(t, m, keyMsg(tea.KeyEsc))
	assert.Equal(t, "Stopped", m.status)

	select {
	case msg := <-result:
		done, ok := msg.(SendDoneMsg)
		require.True(t, ok)
		assert.NoError(t, done.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not finish after cancel")
	}

	chat, _ := f.conversations.Chat(chatID)
	last, _ := chat.LastMessage()
	assert.Equal(t, "Partial"+engine.CancelledMarker, last.Content)
}

// =============================================================================
// STORE SYNC
// =============================================================================

func TestCurrentModelFollowsActiveChat(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{})
	f.conversations.CreateChat("anthropic/claude-3-opus")
	m := f.newModel(t)
	assert.Equal(t, "anthropic/claude-3-opus", m.CurrentModel())

	f.conversations.CreateChat("mistralai/mistral-7b-instruct:free")
	m, cmd := update(t, m, ConversationsChangedMsg{})
	assert.NotNil(t, cmd)
	assert.Equal(t, "mistralai/mistral-7b-instruct:free", m.CurrentModel())
	assert.Equal(t, 0, m.listCursor)
}

func TestChatList_SelectAndDelete(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{})
	older := f.conversations.CreateChat("openai/gpt-3.5-turbo")
	newer := f.conversations.CreateChat("openai/gpt-4-turbo")
	m := f.newModel(t)
	require.Equal(t, newer, f.conversations.ActiveChatID())

	m, _ = update(t, m, keyMsg(tea.KeyTab))
	require.Equal(t, focusList, m.focus)

	m, _ = update(t, m, keyMsg(tea.KeyDown))
	m, _ = update(t, m, keyMsg(tea.KeyEnter))
	assert.Equal(t, older, f.conversations.ActiveChatID())
	assert.Equal(t, focusInput, m.focus)

	m, _ = update(t, m, ConversationsChangedMsg{})
	assert.Equal(t, "openai/gpt-3.5-turbo", m.CurrentModel())

	m, _ = update(t, m, keyMsg(tea.KeyTab))
	_, _ = update(t, m, keyMsg(tea.KeyCtrlX))
	_, ok := f.conversations.Chat(older)
	assert.False(t, ok)
	assert.Len(t, f.conversations.Chats(), 1)
}

func TestNewChatKey(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{})
	m := f.newModel(t)

	_, _ = update(t, m, keyMsg(tea.KeyCtrlN))
	chat, ok := f.conversations.ActiveChat()
	require.True(t, ok)
	assert.Equal(t, model.DefaultModelID, chat.Model)
	assert.Equal(t, model.DefaultChatTitle, chat.Title)
}

// =============================================================================
// SETTINGS FORM
// =============================================================================

func TestSettingsForm_DraftUntilCommit(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{})
	m := f.newModel(t)

	m, _ = update(t, m, keyMsg(tea.KeyCtrlS))
	require.Equal(t, overlaySettings, m.overlay)

	m, _ = update(t, m, runesMsg("sk-or-new"))
	assert.Empty(t, f.settings.Settings().OpenRouterKey, "draft must not be saved yet")

	m, _ = update(t, m, keyMsg(tea.KeyCtrlS))
	assert.Equal(t, overlayNone, m.overlay)
	assert.Equal(t, "sk-or-new", f.settings.Settings().OpenRouterKey)
	assert.Equal(t, model.DefaultSystemPrompt, f.settings.Settings().SystemPrompt)
}

func TestSettingsForm_EscDiscards(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{})
	m := f.newModel(t)

	m, _ = update(t, m, keyMsg(tea.KeyCtrlS))
	m, _ = update(t, m, runesMsg("discard-me"))
	m, _ = update(t, m, keyMsg(tea.KeyEsc))

	assert.Equal(t, overlayNone, m.overlay)
	assert.Empty(t, f.settings.Settings().OpenRouterKey)
}

func TestSettingsForm_FieldNavigation(t *testing.T) {
	form := newSettingsForm(model.Settings{
		OpenRouterKey:  "sk-or",
		HuggingFaceKey: "hf",
		SystemPrompt:   "Be brief.",
	}, 40)
	assert.Equal(t, model.Settings{OpenRouterKey: "sk-or", HuggingFaceKey: "hf", SystemPrompt: "Be brief."}, form.Draft())

	var result overlayResult
	form, result, _ = form.Update(keyMsg(tea.KeyTab))
	assert.Equal(t, overlayOpen, result)
	assert.Equal(t, fieldHuggingFaceKey, form.focus)

	form, _, _ = form.Update(keyMsg(tea.KeyShiftTab))
	form, _, _ = form.Update(keyMsg(tea.KeyShiftTab))
	assert.Equal(t, fieldSystemPrompt, form.focus)

	_, result, _ = form.Update(keyMsg(tea.KeyEnter))
	assert.Equal(t, overlayCommit, result)
}

// =============================================================================
// MODEL PICKER
// =============================================================================

func TestModelPicker(t *testing.T) {
	p := newModelPicker(model.DefaultCatalog(), "openai/gpt-4-turbo")
	selected, ok := p.Selected()
	require.True(t, ok)
	assert.Equal(t, "openai/gpt-4-turbo", selected.ID)

	p, _, _ = p.Update(runesMsg("claude"))
	require.Len(t, p.matches, 2)
	assert.Equal(t, 0, p.cursor)

	p, _, _ = p.Update(keyMsg(tea.KeyDown))
	p, _, _ = p.Update(keyMsg(tea.KeyDown))
	selected, _ = p.Selected()
	assert.Equal(t, "anthropic/claude-3-sonnet", selected.ID)

	_, result, _ := p.Update(keyMsg(tea.KeyEnter))
	assert.Equal(t, overlayCommit, result)
}

func TestModelPicker_NoMatches(t *testing.T) {
	p := newModelPicker(model.DefaultCatalog(), "")
	p, _, _ = p.Update(runesMsg("zzz-no-such-model"))

	_, ok := p.Selected()
	assert.False(t, ok)
	_, result, _ := p.Update(keyMsg(tea.KeyEnter))
	assert.Equal(t, overlayOpen, result)

	view := p.View(styles.NewTheme("dark"), 40, 10)
	assert.Contains(t, view, "No models match")
}

// =============================================================================
// RENDERING
// =============================================================================

func TestRenderTranscript(t *testing.T) {
	theme := styles.NewTheme("dark")

	empty := renderTranscript(theme, model.Chat{}, "", "", 60, false)
	assert.Contains(t, empty, "Start a conversation")

	user := model.NewUserMessage("What is Go?")
	placeholder := model.NewAssistantPlaceholder()
	chat := model.Chat{Messages: []model.Message{user, placeholder}}

	out := renderTranscript(theme, chat, placeholder.ID, "*", 60, false)
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "What is Go?")
	assert.Contains(t, out, "Thinking...")

	chat.Messages[1].Content = "A language."
	out = renderTranscript(theme, chat, placeholder.ID, "*", 60, true)
	assert.Contains(t, out, "A language.")
	assert.NotContains(t, out, "Thinking...")
	assert.Contains(t, out, user.CreatedAt.Format("15:04"))
}

func TestRenderChatItem(t *testing.T) {
	theme := styles.NewTheme("dark")
	chat := model.NewChat("m")
	chat.Title = "A very long chat title that will not fit"

	out := renderChatItem(theme, chat, chatItemState{streaming: true}, 20)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "* "))
	assert.Contains(t, lines[0], "...")
	assert.Contains(t, lines[1], "New conversation")
}

func TestView(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{})
	id := f.conversations.CreateChat("openai/gpt-4-turbo")
	f.conversations.AppendMessage(id, model.NewUserMessage("hello view"))
	m := f.newModel(t)

	assert.Equal(t, "Initializing...", m.View())

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()
	assert.Contains(t, view, "heavon")
	assert.Contains(t, view, "GPT-4 Turbo")
	assert.Contains(t, view, "Chats (1)")
	assert.Contains(t, view, "hello view")
	assert.Contains(t, view, "no API key")

	narrow, _ := update(t, m, tea.WindowSizeMsg{Width: 50, Height: 20})
	assert.NotContains(t, narrow.View(), "Chats (1)")
}

func TestModelsLoadedStatus(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{})
	m := f.newModel(t)

	m, _ = update(t, m, ModelsLoadedMsg{Count: 12})
	assert.Equal(t, "12 models available", m.status)
	assert.False(t, m.statusErr)
}

func TestWaitFor(t *testing.T) {
	assert.Nil(t, waitFor(nil, EngineChangedMsg{}))

	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	assert.Equal(t, EngineChangedMsg{}, waitFor(ch, EngineChangedMsg{})())

	close(ch)
	assert.Nil(t, waitFor(ch, EngineChangedMsg{})())
}

func TestClose_Idempotent(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{})
	m := f.newModel(t)
	m.Close()
	m.Close()
}
