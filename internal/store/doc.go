// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store owns heavon's application state: the chat collection with its
// active-chat pointer, and the user settings.
//
// Both stores are constructed once at start-up with an injected
// storage.Backend. They hydrate from it, and every mutation is written back
// synchronously before the call returns. Mutations are serialized by a mutex
// and never modify a value that has been handed out: the changed chat and
// message are replaced by new values while every sibling is shared unchanged
// with the previous snapshot.
//
// Persisted blobs carry a schema version. Data written without one is read as
// version 0 and migrated; unreadable data is logged and replaced by the empty
// state instead of failing start-up.
package store
