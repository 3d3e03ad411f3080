// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chat transcripts to files.
//
// # Key Types
//
//   - Exporter: Main export interface
//   - Options: Export configuration options
//
// # Supported Formats
//
//   - JSON: The stored chat, field for field
//   - Markdown: Human-readable with YAML frontmatter
//   - YAML: Machine-readable with readable multi-line content
//
// # Usage
//
//	exporter, err := export.ForFormat("markdown", nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(chat, exporter, opts)
package export
