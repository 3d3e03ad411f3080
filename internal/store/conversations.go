// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/storage"
	"github.com/jeranaias/heavon/internal/util"
)

// ChatsKey is the storage key of the chat collection.
const ChatsKey = "heavon-chats"

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore owns the chat collection and the active-chat pointer.
//
// The slice returned by Chats and the chats returned by the lookup methods
// are snapshots: they are never modified afterwards and must not be modified
// by callers.
type ConversationStore struct {
	mu       sync.Mutex
	backend  storage.Backend
	logger   zerolog.Logger
	chats    []model.Chat
	activeID string

	changes util.Broadcaster
}

// NewConversationStore creates the store and hydrates it from backend.
// Missing data starts an empty collection; unreadable data is logged and
// also starts empty.
func NewConversationStore(backend storage.Backend, logger zerolog.Logger) *ConversationStore {
	s := &ConversationStore{
		backend: backend,
		logger:  logger.With().Str("component", "conversations").Logger(),
		chats:   []model.Chat{},
	}
	s.hydrate()
	return s
}

func (s *ConversationStore) hydrate() {
	data, err := s.backend.Load(context.Background())
	if err != nil {
		s.logger.Error().Err(err).Msg("loading chats failed, starting empty")
		return
	}
	if data == nil {
		return
	}
	chats, err := decodeChats(data)
	if err != nil {
		s.logger.Warn().Err(err).Msg("stored chats are unreadable, starting empty")
		return
	}
	if chats != nil {
		s.chats = chats
	}
}

// persistLocked writes the collection. Callers hold s.mu so writes reach the
// backend in mutation order.
func (s *ConversationStore) persistLocked() {
	data, err := encodeChats(s.chats)
	if err != nil {
		s.logger.Error().Err(err).Msg("encoding chats failed")
		return
	}
	if err := s.backend.Save(context.Background(), data); err != nil {
		s.logger.Error().Err(err).Msg("saving chats failed")
	}
}

func (s *ConversationStore) indexLocked(id string) int {
	for i := range s.chats {
		if s.chats[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// READS
// =============================================================================

// Chats returns the collection, newest first.
func (s *ConversationStore) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats
}

// Chat returns the chat with the given id.
func (s *ConversationStore) Chat(id string) (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.chats[i], true
	}
	return model.Chat{}, false
}

// ActiveChatID returns the active-chat pointer, or "" when none is set.
// The id is not guaranteed to name an existing chat; use ActiveChat for that.
func (s *ConversationStore) ActiveChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// ActiveChat returns the active chat if the pointer names an existing chat.
func (s *ConversationStore) ActiveChat() (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return model.Chat{}, false
	}
	if i := s.indexLocked(s.activeID); i >= 0 {
		return s.chats[i], true
	}
	return model.Chat{}, false
}

// Subscribe returns a channel that is signalled after every change.
func (s *ConversationStore) Subscribe() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}

// =============================================================================
// MUTATIONS
// =============================================================================

// CreateChat inserts a new empty chat at the front of the collection, makes
// it active and returns its id. An empty modelID selects model.DefaultModelID.
func (s *ConversationStore) CreateChat(modelID string) string {
	if modelID == "" {
		modelID = model.DefaultModelID
	}
	chat := model.NewChat(modelID)

	s.mu.Lock()
	chats := make([]model.Chat, 0, len(s.chats)+1)
	chats = append(chats, chat)
	chats = append(chats, s.chats...)
	s.chats = chats
	s.activeID = chat.ID
	s.persistLocked()
	s.mu.Unlock()

	s.changes.Notify()
	return chat.ID
}

// DeleteChat removes the chat if present and clears the active pointer when
// it named that chat.
func (s *ConversationStore) DeleteChat(id string) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.chats = slices.Delete(slices.Clone(s.chats), i, i+1)
	if s.activeID == id {
		s.activeID = ""
	}
	s.persistLocked()
	s.mu.Unlock()

	s.changes.Notify()
}

// SetActiveChatID changes the active chat. The id is not validated; "" clears
// the pointer.
func (s *ConversationStore) SetActiveChatID(id string) {
	s.mu.Lock()
	changed := s.activeID != id
	s.activeID = id
	s.mu.Unlock()

	if changed {
		s.changes.Notify()
	}
}

// UpdateChat replaces the chat with the given id by fn's result and persists
// the collection. fn must treat its argument as read-only and return a new
// value; the id is preserved regardless of what fn returns. It reports false
// and does nothing when no such chat exists.
func (s *ConversationStore) UpdateChat(id string, fn func(model.Chat) model.Chat) (model.Chat, bool) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return model.Chat{}, false
	}
	next := fn(s.chats[i])
	next.ID = id

	chats := slices.Clone(s.chats)
	chats[i] = next
	s.chats = chats
	s.persistLocked()
	s.mu.Unlock()

	s.changes.Notify()
	return next, true
}

// AppendMessage adds msg to the end of the chat's messages and returns the
// updated chat.
func (s *ConversationStore) AppendMessage(chatID string, msg model.Message) (model.Chat, bool) {
	return s.UpdateChat(chatID, func(c model.Chat) model.Chat {
		c.Messages = WithMessage(c.Messages, msg)
		return c
	})
}

// UpdateMessageContent replaces the content of one message by
// updater(current content). Other messages keep their identity. It reports
// false when the chat or the message does not exist.
func (s *ConversationStore) UpdateMessageContent(chatID, messageID string, updater func(string) string) bool {
	found := false
	_, ok := s.UpdateChat(chatID, func(c model.Chat) model.Chat {
		i := c.MessageIndex(messageID)
		if i < 0 {
			return c
		}
		found = true
		msgs := slices.Clone(c.Messages)
		msgs[i].Content = updater(msgs[i].Content)
		c.Messages = msgs
		return c
	})
	return ok && found
}

// WithMessage returns msgs with msg appended, without writing into any
// backing array another snapshot may share.
func WithMessage(msgs []model.Message, msg model.Message) []model.Message {
	return append(slices.Clip(msgs), msg)
}
