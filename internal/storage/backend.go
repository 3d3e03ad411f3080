// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Backend persists a single blob.
type Backend interface {
	// Load returns the stored bytes, or nil and no error when nothing has
	// been stored under this key yet.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored bytes.
	Save(ctx context.Context, data []byte) error
}

// Driver hands out backends by key.
type Driver interface {
	Backend(key string) Backend
	Close() error
}

// Watcher is implemented by drivers that can report changes made by other
// processes. fn is called after the blob under key was replaced externally.
type Watcher interface {
	Watch(ctx context.Context, key string, fn func()) error
}

// Options selects and configures a driver.
type Options struct {
	Driver string
	Dir    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	Logger *zerolog.Logger
}

// Open creates the driver named by opts.Driver.
func Open(opts Options) (Driver, error) {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "storage").Str("driver", opts.Driver).Logger()

	switch strings.ToLower(opts.Driver) {
	case DriverMemory:
		return NewMemoryDriver(), nil
	case DriverFile, "":
		return NewFileDriver(opts.Dir, logger)
	case DriverSQLite:
		return NewSQLiteDriver(opts.Dir)
	case DriverRedis:
		return NewRedisDriver(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

// =============================================================================
// MEMORY DRIVER
// =============================================================================

// MemoryDriver keeps blobs in process memory.
type MemoryDriver struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{blobs: make(map[string][]byte)}
}

// Backend returns the backend for key.
func (d *MemoryDriver) Backend(key string) Backend {
	return &memoryBackend{d: d, key: key}
}

// Put seeds a blob, bypassing any store. Used to stage fixtures.
func (d *MemoryDriver) Put(key string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blobs[key] = append([]byte(nil), data...)
}

// Get returns a copy of the blob under key.
func (d *MemoryDriver) Get(key string) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.blobs[key]; ok {
		return append([]byte(nil), b...)
	}
	return nil
}

// Close is a no-op.
func (d *MemoryDriver) Close() error { return nil }

type memoryBackend struct {
	d   *MemoryDriver
	key string
}

func (b *memoryBackend) Load(ctx context.Context) ([]byte, error) {
	return b.d.Get(b.key), nil
}

func (b *memoryBackend) Save(ctx context.Context, data []byte) error {
	b.d.Put(b.key, data)
	return nil
}
