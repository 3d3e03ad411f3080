// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across heavon.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//   - TruncateRunes, TruncateRunesNoEllipsis: UTF-8 safe truncation
//   - TruncateWidth: display-width truncation for terminal columns
//   - Broadcaster: coalescing change notification for UI refreshes
package util
