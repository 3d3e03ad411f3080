// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteFile is the database file name inside the data directory.
const SQLiteFile = "heavon.db"

// SQLiteDriver stores blobs in a single key/value table.
type SQLiteDriver struct {
	db *sql.DB
}

// NewSQLiteDriver opens (and creates) <dir>/heavon.db.
func NewSQLiteDriver(dir string) (*SQLiteDriver, error) {
	if dir == "" {
		return nil, errors.New("sqlite storage requires a directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return OpenSQLite(filepath.Join(dir, SQLiteFile))
}

// OpenSQLite opens the database at dsn and makes sure the schema exists.
func OpenSQLite(dsn string) (*SQLiteDriver, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)

	d := &SQLiteDriver{db: db}
	if err := d.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *SQLiteDriver) createTables() error {
	kvTable := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	if _, err := d.db.Exec(kvTable); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

// Backend returns the backend for key.
func (d *SQLiteDriver) Backend(key string) Backend {
	return &sqliteBackend{db: d.db, key: key}
}

// Close closes the database connection.
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}

type sqliteBackend struct {
	db  *sql.DB
	key string
}

func (b *sqliteBackend) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, b.key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", b.key, err)
	}
	return data, nil
}

func (b *sqliteBackend) Save(ctx context.Context, data []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		b.key, data, time.Now())
	if err != nil {
		return fmt.Errorf("save %s: %w", b.key, err)
	}
	return nil
}
