// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces heavon keys in a shared redis.
const DefaultRedisPrefix = "heavon:"

// RedisDriver stores each blob as a redis string.
type RedisDriver struct {
	client *redis.Client
	prefix string
}

// NewRedisDriver connects to addr and verifies the connection.
func NewRedisDriver(addr, password string, db int, prefix string) (*RedisDriver, error) {
	if addr == "" {
		return nil, errors.New("redis storage requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedisDriverWithClient(client, prefix), nil
}

// NewRedisDriverWithClient wraps an existing client.
func NewRedisDriverWithClient(client *redis.Client, prefix string) *RedisDriver {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisDriver{client: client, prefix: prefix}
}

// Backend returns the backend for key.
func (d *RedisDriver) Backend(key string) Backend {
	return &redisBackend{client: d.client, key: d.prefix + key}
}

// Close closes the connection pool.
func (d *RedisDriver) Close() error {
	return d.client.Close()
}

type redisBackend struct {
	client *redis.Client
	key    string
}

func (b *redisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", b.key, err)
	}
	return data, nil
}

func (b *redisBackend) Save(ctx context.Context, data []byte) error {
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save %s: %w", b.key, err)
	}
	return nil
}
