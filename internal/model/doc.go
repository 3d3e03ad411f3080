// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats, messages and settings.
//
// Values in this package are plain data. Chat and Message are treated as
// immutable once handed out by the conversation store: every change produces
// a new value and leaves the previous one untouched.
//
// # Key Types
//
//   - Chat: a conversation thread with its ordered messages and model id
//   - Message: one turn with role, content and creation time
//   - Model: a selectable completion model and the provider that serves it
//   - Catalog: the list of models offered to the user
//   - Settings: API keys and the system prompt
//
// # Usage
//
//	chat := model.NewChat("openai/gpt-3.5-turbo")
//	msg := model.NewMessage(model.RoleUser, "Hello!")
//	cat := model.DefaultCatalog()
//	m := cat.Find(chat.Model)
package model
