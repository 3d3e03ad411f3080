// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/jeranaias/heavon/internal/util"
)

const (
	// DefaultChatTitle is the title of a chat that has no messages yet.
	DefaultChatTitle = "New Chat"

	// TitleMaxRunes is how much of the first user message becomes the title.
	TitleMaxRunes = 30
)

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat is a single conversation thread.
//
// Messages are kept in append order. The title is taken from the first user
// message and never changes afterwards.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	Model     string    `json:"model"`
}

// NewChat creates an empty chat bound to the given model.
func NewChat(modelID string) Chat {
	return Chat{
		ID:        NewID(),
		Title:     DefaultChatTitle,
		Messages:  []Message{},
		CreatedAt: time.Now(),
		Model:     modelID,
	}
}

// TitleFrom derives a chat title from the first message of a chat.
func TitleFrom(content string) string {
	return util.TruncateRunesNoEllipsis(content, TitleMaxRunes)
}

// MessageIndex returns the position of the message with the given id, or -1.
func (c Chat) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Message returns the message with the given id.
func (c Chat) Message(id string) (Message, bool) {
	if i := c.MessageIndex(id); i >= 0 {
		return c.Messages[i], true
	}
	return Message{}, false
}

// LastMessage returns the newest message of the chat.
func (c Chat) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Preview returns a short single-line preview of the latest message.
func (c Chat) Preview(maxRunes int) string {
	last, ok := c.LastMessage()
	if !ok {
		return "New conversation"
	}
	return util.SingleLine(util.TruncateRunes(last.Content, maxRunes))
}
