// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects level, format and destination.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	// Path is the log file; empty means stderr.
	Path string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init installs the global logger and returns a closer for its output.
// An unknown level falls back to info.
func Init(opts Options) (io.Closer, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		output = file
		closer = file
	}

	log.Logger = New(output, opts.Format, opts.Path != "")
	return closer, nil
}

// New builds a logger writing to w. Console output is colored unless noColor.
func New(w io.Writer, format string, noColor bool) zerolog.Logger {
	if format == "console" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    noColor,
		}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}
