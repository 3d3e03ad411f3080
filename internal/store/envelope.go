// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/heavon/internal/model"
)

// SchemaVersion is the version written into every persisted blob.
const SchemaVersion = 1

// ErrUnsupportedVersion is returned for blobs written by a newer heavon.
var ErrUnsupportedVersion = errors.New("unsupported schema version")

type chatsEnvelope struct {
	Version int          `json:"version"`
	Chats   []model.Chat `json:"chats"`
}

type settingsEnvelope struct {
	Version  int            `json:"version"`
	Settings model.Settings `json:"settings"`
}

// encodeChats serializes the chat collection.
func encodeChats(chats []model.Chat) ([]byte, error) {
	if chats == nil {
		chats = []model.Chat{}
	}
	return json.Marshal(chatsEnvelope{Version: SchemaVersion, Chats: chats})
}

// decodeChats accepts the current envelope and the unversioned bare array.
func decodeChats(data []byte) ([]model.Chat, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	// Version 0: the collection was stored as a bare array.
	if trimmed[0] == '[' {
		var chats []model.Chat
		if err := json.Unmarshal(trimmed, &chats); err != nil {
			return nil, fmt.Errorf("decode chats: %w", err)
		}
		return migrateChats(chats), nil
	}

	var env chatsEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode chats: %w", err)
	}
	if env.Version > SchemaVersion {
		return nil, fmt.Errorf("%w: chats version %d", ErrUnsupportedVersion, env.Version)
	}
	return migrateChats(env.Chats), nil
}

// migrateChats normalizes fields older writers may have left empty.
func migrateChats(chats []model.Chat) []model.Chat {
	for i := range chats {
		if chats[i].Messages == nil {
			chats[i].Messages = []model.Message{}
		}
		if chats[i].Title == "" {
			chats[i].Title = model.DefaultChatTitle
		}
	}
	return chats
}

func encodeSettings(s model.Settings) ([]byte, error) {
	return json.Marshal(settingsEnvelope{Version: SchemaVersion, Settings: s})
}

// decodeSettings accepts the current envelope and the unversioned bare object.
func decodeSettings(data []byte) (model.Settings, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return model.DefaultSettings(), nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return model.Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	if _, versioned := probe["version"]; !versioned {
		// Version 0: the settings object itself.
		s := model.DefaultSettings()
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return model.Settings{}, fmt.Errorf("decode settings: %w", err)
		}
		return s, nil
	}

	env := settingsEnvelope{Settings: model.DefaultSettings()}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return model.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if env.Version > SchemaVersion {
		return model.Settings{}, fmt.Errorf("%w: settings version %d", ErrUnsupportedVersion, env.Version)
	}
	return env.Settings, nil
}
