// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/heavon/internal/model"
)

// yamlChat is the exported document.
type yamlChat struct {
	ID        string        `yaml:"id"`
	Title     string        `yaml:"title"`
	Model     string        `yaml:"model"`
	CreatedAt time.Time     `yaml:"created_at"`
	Messages  []yamlMessage `yaml:"messages"`
}

type yamlMessage struct {
	Role      string     `yaml:"role"`
	Content   string     `yaml:"content"`
	CreatedAt *time.Time `yaml:"created_at,omitempty"`
}

// YAMLExporter exports chats to YAML.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &YAMLExporter{options: opts}
}

// Export converts a chat to YAML. Per-message timestamps follow
// IncludeTimestamps.
func (e *YAMLExporter) Export(chat model.Chat) ([]byte, error) {
	if err := validate(chat); err != nil {
		return nil, err
	}

	doc := yamlChat{
		ID:        chat.ID,
		Title:     chat.Title,
		Model:     chat.Model,
		CreatedAt: chat.CreatedAt,
		Messages:  make([]yamlMessage, 0, len(chat.Messages)),
	}
	for _, m := range chat.Messages {
		msg := yamlMessage{Role: string(m.Role), Content: m.Content}
		if e.options.IncludeTimestamps {
			created := m.CreatedAt
			msg.CreatedAt = &created
		}
		doc.Messages = append(doc.Messages, msg)
	}
	return yaml.Marshal(doc)
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
