// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/storage"
	"github.com/jeranaias/heavon/internal/util"
)

// SettingsKey is the storage key of the settings blob.
const SettingsKey = "heavon-settings"

// SettingsStore owns the process-wide settings value.
type SettingsStore struct {
	mu       sync.Mutex
	backend  storage.Backend
	logger   zerolog.Logger
	settings model.Settings

	changes util.Broadcaster
}

// NewSettingsStore creates the store and hydrates it from backend, falling
// back to model.DefaultSettings.
func NewSettingsStore(backend storage.Backend, logger zerolog.Logger) *SettingsStore {
	s := &SettingsStore{
		backend:  backend,
		logger:   logger.With().Str("component", "settings").Logger(),
		settings: model.DefaultSettings(),
	}
	if err := s.Reload(); err != nil {
		s.logger.Warn().Err(err).Msg("stored settings are unreadable, using defaults")
	}
	return s
}

// Settings returns the current settings.
func (s *SettingsStore) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SaveSettings replaces the whole settings value and persists it.
func (s *SettingsStore) SaveSettings(settings model.Settings) {
	data, err := encodeSettings(settings)

	s.mu.Lock()
	s.settings = settings
	if err != nil {
		s.logger.Error().Err(err).Msg("encoding settings failed")
	} else if err := s.backend.Save(context.Background(), data); err != nil {
		s.logger.Error().Err(err).Msg("saving settings failed")
	}
	s.mu.Unlock()

	s.changes.Notify()
}

// Reload re-reads the settings from the backend. Missing data leaves the
// current value; unreadable data leaves it too and is reported.
func (s *SettingsStore) Reload() error {
	data, err := s.backend.Load(context.Background())
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if data == nil {
		return nil
	}
	settings, err := decodeSettings(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := s.settings != settings
	s.settings = settings
	s.mu.Unlock()

	if changed {
		s.changes.Notify()
	}
	return nil
}

// Subscribe returns a channel that is signalled after every change.
func (s *SettingsStore) Subscribe() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}
