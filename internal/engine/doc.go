// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine sends chat turns to a completion provider and writes the
// streamed reply into the conversation store.
//
// A send appends the user message, appends an empty assistant message, and
// then fills that message chunk by chunk. Provider failures and
// cancellation end up as text in the assistant message; they are never
// returned to the caller. At most one send runs per chat.
package engine
