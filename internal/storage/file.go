// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jeranaias/heavon/internal/util"
)

// watchDebounce groups the burst of events an atomic rename produces.
const watchDebounce = 100 * time.Millisecond

// FileDriver stores each key as <dir>/<key>.json.
type FileDriver struct {
	dir    string
	logger zerolog.Logger
}

// NewFileDriver creates the data directory if needed.
func NewFileDriver(dir string, logger zerolog.Logger) (*FileDriver, error) {
	if dir == "" {
		return nil, errors.New("file storage requires a directory")
	}
	// Files hold API keys, keep the directory private.
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileDriver{dir: dir, logger: logger}, nil
}

// Path returns the file that backs key.
func (d *FileDriver) Path(key string) string {
	return filepath.Join(d.dir, key+".json")
}

// Backend returns the backend for key.
func (d *FileDriver) Backend(key string) Backend {
	return &fileBackend{path: d.Path(key)}
}

// Close is a no-op.
func (d *FileDriver) Close() error { return nil }

// Watch calls fn whenever the file behind key is written by anyone, this
// process included. It returns once the watch is established; watching stops
// when ctx is done.
func (d *FileDriver) Watch(ctx context.Context, key string, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: atomic writes replace the file, which would drop a
	// watch placed on the file itself.
	if err := w.Add(d.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", d.dir, err)
	}

	target := filepath.Base(d.Path(key))
	go d.watchLoop(ctx, w, target, fn)
	return nil
}

func (d *FileDriver) watchLoop(ctx context.Context, w *fsnotify.Watcher, target string, fn func()) {
	defer w.Close()

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				if ctx.Err() == nil {
					fn()
				}
			})
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			d.logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}

type fileBackend struct {
	path string
}

func (b *fileBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return data, nil
}

func (b *fileBackend) Save(ctx context.Context, data []byte) error {
	if err := util.AtomicWriteFile(b.path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", b.path, err)
	}
	return nil
}
