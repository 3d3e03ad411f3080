// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable byte storage for heavon's local state.
//
// State is kept as independently keyed blobs. A Driver hands out one Backend
// per key; the stores above it only ever load or replace a whole blob.
//
// # Drivers
//
//   - memory: process-local map, used by tests and --ephemeral runs
//   - file: one JSON file per key under the data directory, written atomically
//   - sqlite: a key/value table in heavon.db (modernc.org/sqlite, no cgo)
//   - redis: one redis string per key, for sharing state between machines
//
// # Usage
//
//	drv, err := storage.Open(storage.Options{Driver: "file", Dir: dataDir})
//	b := drv.Backend("heavon-chats")
//	data, err := b.Load(ctx) // nil, nil when nothing was stored yet
//	err = b.Save(ctx, data)
package storage
