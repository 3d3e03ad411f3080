// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"

	"github.com/jeranaias/heavon/internal/model"
)

// JSONExporter exports chats in their stored JSON shape. Options do not
// filter it; the output can be read back as a model.Chat.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a chat to JSON.
func (e *JSONExporter) Export(chat model.Chat) ([]byte, error) {
	if err := validate(chat); err != nil {
		return nil, err
	}
	return json.MarshalIndent(chat, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
