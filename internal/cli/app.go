// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/heavon/internal/cloud"
	"github.com/jeranaias/heavon/internal/config"
	"github.com/jeranaias/heavon/internal/engine"
	"github.com/jeranaias/heavon/internal/hf"
	"github.com/jeranaias/heavon/internal/logging"
	"github.com/jeranaias/heavon/internal/model"
	"github.com/jeranaias/heavon/internal/storage"
	"github.com/jeranaias/heavon/internal/store"
)

// app is the wired set of stores, clients and engine every command uses.
type app struct {
	cfg           *config.Config
	logger        zerolog.Logger
	driver        storage.Driver
	conversations *store.ConversationStore
	settings      *store.SettingsStore
	engine        *engine.Engine

	logCloser io.Closer
	stopWatch context.CancelFunc
}

// openApp initialises logging, opens storage and builds the engine.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logPath, err := cfg.LogPath()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	logCloser, err := logging.Init(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Path:   logPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	logger := log.Logger

	dataDir, err := cfg.DataDir()
	if err != nil {
		logCloser.Close()
		return nil, &ConfigError{Err: err}
	}
	driver, err := storage.Open(storage.Options{
		Driver:        cfg.Storage.Driver,
		Dir:           dataDir,
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisPassword: cfg.Storage.RedisPassword,
		RedisDB:       cfg.Storage.RedisDB,
		RedisPrefix:   cfg.Storage.RedisPrefix,
		Logger:        &logger,
	})
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	conversations := store.NewConversationStore(driver.Backend(store.ChatsKey), logger)
	settings := store.NewSettingsStore(driver.Backend(store.SettingsKey), logger)
	seedSettings(settings, cfg)

	openrouter := cloud.NewOpenRouterClient(cfg.Provider.BaseURL).
		WithTimeout(cfg.Provider.TimeoutDuration()).
		WithSiteURL(cfg.Provider.SiteURL).
		WithSiteName(cfg.Provider.SiteName).
		WithRateLimit(cfg.Provider.RequestsPerMinute).
		WithLogger(logger)
	huggingface := hf.NewClient(cfg.Provider.HFBaseURL).WithLogger(logger)

	eng := engine.New(engine.Options{
		Conversations: conversations,
		Settings:      settings,
		Completers: map[model.Provider]engine.Completer{
			model.ProviderOpenRouter:  openrouter,
			model.ProviderHuggingFace: huggingface,
		},
		Lister:       openrouter,
		DefaultModel: cfg.DefaultModel,
		Logger:       &logger,
	})

	a := &app{
		cfg:           cfg,
		logger:        logger,
		driver:        driver,
		conversations: conversations,
		settings:      settings,
		engine:        eng,
		logCloser:     logCloser,
		stopWatch:     func() {},
	}
	a.watchSettings(ctx)

	logger.Debug().
		Str("driver", cfg.Storage.Driver).
		Str("model", cfg.DefaultModel).
		Msg("heavon started")
	return a, nil
}

// seedSettings stores the configured OpenRouter key when the settings do
// not hold one yet.
func seedSettings(settings *store.SettingsStore, cfg *config.Config) {
	key := cfg.Provider.OpenRouterKey
	if key == "" {
		return
	}
	current := settings.Settings()
	if current.OpenRouterKey != "" {
		return
	}
	current.OpenRouterKey = key
	settings.SaveSettings(current)
}

// watchSettings reloads settings when the settings blob is rewritten by
// another heavon process. Only drivers that implement storage.Watcher
// support it.
func (a *app) watchSettings(ctx context.Context) {
	if !a.cfg.Storage.Watch {
		return
	}
	watcher, ok := a.driver.(storage.Watcher)
	if !ok {
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	err := watcher.Watch(watchCtx, store.SettingsKey, func() {
		if err := a.settings.Reload(); err != nil {
			a.logger.Warn().Err(err).Msg("settings reload failed")
		}
	})
	if err != nil {
		cancel()
		a.logger.Warn().Err(err).Msg("settings watch unavailable")
		return
	}
	a.stopWatch = cancel
}

// Close stops the watcher and releases storage and the log file.
func (a *app) Close() error {
	a.stopWatch()
	return errors.Join(a.driver.Close(), a.logCloser.Close())
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, opts *rootOptions, fn func(*app) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// findChat resolves a chat by full id or by a unique id prefix.
func (a *app) findChat(id string) (model.Chat, error) {
	if chat, ok := a.conversations.Chat(id); ok {
		return chat, nil
	}
	var found []model.Chat
	if id != "" {
		for _, c := range a.conversations.Chats() {
			if strings.HasPrefix(c.ID, id) {
				found = append(found, c)
			}
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return model.Chat{}, &NotFoundError{Resource: "chat", ID: id}
	default:
		return model.Chat{}, fmt.Errorf("chat id %q is ambiguous (%d matches)", id, len(found))
	}
}
