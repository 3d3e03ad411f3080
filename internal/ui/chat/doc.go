// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea model of the heavon TUI.
//
// The model owns no conversation state. It renders whatever the stores and
// the engine expose, and it hands user actions back to them: sends go
// through the engine in a command with a cancellable context, chat list
// actions go to the conversation store, and the settings form commits a
// draft to the settings store. Change notifications from the stores arrive
// as tea messages and trigger a re-render.
package chat
