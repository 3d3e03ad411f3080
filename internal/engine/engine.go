// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/heavon/internal/cloud"
	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/store"
	"github.com/jeranaias/heavon/internal/util"
)

// Transcript markers appended to an assistant message.
const (
	ErrorNoticePrefix = "\n\n**Error:** "
	CancelledMarker   = "\n\n*[cancelled]*"
)

// ErrChatBusy is returned when a send is already streaming into the chat.
var ErrChatBusy = errors.New("a response is already streaming in this chat")

// Completer streams one completion. Every provider client implements it.
type Completer interface {
	StreamCompletion(ctx context.Context, req cloud.CompletionRequest) iter.Seq2[string, error]
}

// ModelLister fetches the provider's model list, returning an empty slice
// on failure.
type ModelLister interface {
	ListModels(ctx context.Context, apiKey string) []model.Model
}

// Options configures an Engine.
type Options struct {
	Conversations *store.ConversationStore
	Settings      *store.SettingsStore

	// Completers maps each provider to its client. A model whose provider
	// has no completer gets an error notice instead of a reply.
	Completers map[model.Provider]Completer

	// Lister refreshes the model catalog; nil keeps the defaults.
	Lister ModelLister

	// DefaultModel is used for chats created by Submit without a model.
	DefaultModel string

	Logger *zerolog.Logger
}

// Engine orchestrates sends. It keeps no durable state of its own.
type Engine struct {
	conversations *store.ConversationStore
	settings      *store.SettingsStore
	completers    map[model.Provider]Completer
	lister        ModelLister
	defaultModel  string
	logger        zerolog.Logger

	mu      sync.Mutex
	busy    map[string]struct{}
	loading map[string]string // chat id -> placeholder message id
	catalog model.Catalog

	changes util.Broadcaster
}

// New creates an Engine.
func New(opts Options) *Engine {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	defaultModel := opts.DefaultModel
	if defaultModel == "" {
		defaultModel = model.DefaultModelID
	}
	completers := make(map[model.Provider]Completer, len(opts.Completers))
	for p, c := range opts.Completers {
		if c != nil {
			completers[p] = c
		}
	}
	return &Engine{
		conversations: opts.Conversations,
		settings:      opts.Settings,
		completers:    completers,
		lister:        opts.Lister,
		defaultModel:  defaultModel,
		logger:        logger.With().Str("component", "engine").Logger(),
		busy:          make(map[string]struct{}),
		loading:       make(map[string]string),
		catalog:       model.DefaultCatalog(),
	}
}

// =============================================================================
// STATE
// =============================================================================

// Loading reports whether any chat is streaming.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.loading) > 0
}

// LoadingChat reports whether chatID is streaming.
func (e *Engine) LoadingChat(chatID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.loading[chatID]
	return ok
}

// StreamTarget returns the id of the assistant message being filled in
// chatID, if any.
func (e *Engine) StreamTarget(chatID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.loading[chatID]
	return id, ok
}

// Subscribe returns a channel signalled whenever loading state or the
// catalog changes.
func (e *Engine) Subscribe() (<-chan struct{}, func()) {
	return e.changes.Subscribe()
}

// DefaultModel returns the model used for implicitly created chats.
func (e *Engine) DefaultModel() string {
	return e.defaultModel
}

// Catalog returns the current model catalog.
func (e *Engine) Catalog() model.Catalog {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog
}

// RefreshModels asks the lister for the provider's models and merges a
// non-empty result into the catalog. It reports how many models the
// catalog holds afterwards.
func (e *Engine) RefreshModels(ctx context.Context) int {
	if e.lister == nil {
		return e.Catalog().Len()
	}
	fetched := e.lister.ListModels(ctx, e.settings.Settings().OpenRouterKey)

	e.mu.Lock()
	e.catalog = e.catalog.WithFetched(fetched)
	n := e.catalog.Len()
	e.mu.Unlock()

	if len(fetched) > 0 {
		e.changes.Notify()
	}
	e.logger.Debug().Int("fetched", len(fetched)).Int("models", n).Msg("model catalog refreshed")
	return n
}

func (e *Engine) acquire(chatID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.busy[chatID]; ok {
		return false
	}
	e.busy[chatID] = struct{}{}
	return true
}

func (e *Engine) release(chatID string) {
	e.mu.Lock()
	delete(e.busy, chatID)
	_, wasLoading := e.loading[chatID]
	delete(e.loading, chatID)
	e.mu.Unlock()

	if wasLoading {
		e.changes.Notify()
	}
}

func (e *Engine) setLoading(chatID, messageID string) {
	e.mu.Lock()
	e.loading[chatID] = messageID
	e.mu.Unlock()
	e.changes.Notify()
}

// =============================================================================
// SENDING
// =============================================================================

// Submit sends content on the active chat, creating a chat first when none
// is active. An empty modelID creates the chat with the default model and
// sends with the chat's own model. It returns the chat the message went to,
// or "" when content is blank.
func (e *Engine) Submit(ctx context.Context, content, modelID string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}

	chatID := ""
	if chat, ok := e.conversations.ActiveChat(); ok {
		chatID = chat.ID
	} else {
		createModel := modelID
		if createModel == "" {
			createModel = e.defaultModel
		}
		chatID = e.conversations.CreateChat(createModel)
	}
	return chatID, e.SendMessage(ctx, content, modelID, chatID)
}

// SendMessage appends content as a user message to the chat and streams the
// assistant's reply into a new message, returning when the stream ends.
//
// An empty chatID selects the active chat. Blank content or an unresolvable
// chat make the call a no-op. An empty modelID uses the chat's model.
// Provider errors and cancellation of ctx are written into the reply; the
// only error returned is ErrChatBusy.
func (e *Engine) SendMessage(ctx context.Context, content, modelID, chatID string) error {
	if chatID == "" {
		chatID = e.conversations.ActiveChatID()
	}
	if chatID == "" || strings.TrimSpace(content) == "" {
		return nil
	}
	if _, ok := e.conversations.Chat(chatID); !ok {
		return nil
	}

	if !e.acquire(chatID) {
		return ErrChatBusy
	}
	defer e.release(chatID)

	// History is captured inside the same update that appends the user
	// message, so it is exactly the chat's prior state.
	userMsg := model.NewUserMessage(content)
	var history []model.Message
	chat, ok := e.conversations.UpdateChat(chatID, func(c model.Chat) model.Chat {
		history = c.Messages
		if len(c.Messages) == 0 {
			c.Title = model.TitleFrom(content)
		}
		c.Messages = store.WithMessage(c.Messages, userMsg)
		return c
	})
	if !ok {
		return nil
	}
	if modelID == "" {
		modelID = chat.Model
	}
	if modelID == "" {
		modelID = e.defaultModel
	}

	placeholder := model.NewAssistantPlaceholder()
	e.setLoading(chatID, placeholder.ID)
	if _, ok := e.conversations.AppendMessage(chatID, placeholder); !ok {
		return nil
	}

	settings := e.settings.Settings()
	provider := e.Catalog().Find(modelID).Provider
	req := cloud.CompletionRequest{
		Model:    modelID,
		Messages: BuildContext(settings.SystemPrompt, history, content),
		APIKey:   settings.KeyFor(provider),
	}

	logger := e.logger.With().Str("chat", chatID).Str("model", modelID).Str("provider", string(provider)).Logger()
	logger.Debug().Int("history", len(history)).Msg("sending message")

	completer, ok := e.completers[provider]
	if !ok {
		e.appendText(chatID, placeholder.ID, ErrorNoticePrefix+fmt.Sprintf("no client configured for provider %s", provider))
		return nil
	}

	e.stream(ctx, logger, completer, req, chatID, placeholder.ID)
	return nil
}

// stream applies every chunk to the placeholder and finishes it with an
// error notice or cancellation marker when the stream did not complete.
func (e *Engine) stream(ctx context.Context, logger zerolog.Logger, completer Completer, req cloud.CompletionRequest, chatID, messageID string) {
	chunks := 0
	for chunk, err := range completer.StreamCompletion(ctx, req) {
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Int("chunks", chunks).Msg("response cancelled")
				e.appendText(chatID, messageID, CancelledMarker)
				return
			}
			logger.Warn().Err(err).Int("chunks", chunks).Msg("response failed")
			e.appendText(chatID, messageID, ErrorNoticePrefix+cloud.ErrorMessage(err))
			return
		}
		chunks++
		e.appendText(chatID, messageID, chunk)
	}

	if ctx.Err() != nil {
		logger.Info().Int("chunks", chunks).Msg("response cancelled")
		e.appendText(chatID, messageID, CancelledMarker)
		return
	}
	logger.Debug().Int("chunks", chunks).Msg("response complete")
}

func (e *Engine) appendText(chatID, messageID, text string) {
	e.conversations.UpdateMessageContent(chatID, messageID, func(content string) string {
		return content + text
	})
}

// BuildContext returns the context window for a turn: the system prompt,
// the prior history as role and content, then the new user content.
func BuildContext(systemPrompt string, history []model.Message, content string) []cloud.ChatMessage {
	messages := make([]cloud.ChatMessage, 0, len(history)+2)
	messages = append(messages, cloud.NewSystemMessage(systemPrompt))
	for _, m := range history {
		messages = append(messages, cloud.FromMessage(m))
	}
	return append(messages, cloud.NewUserMessage(content))
}
