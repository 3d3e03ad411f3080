// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/heavon/internal/config"
	"github.com/jeranaias/heavon/internal/export"
	"github.com/jeranaias/heavon/internal/storage"
)

// Exit codes.
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNotFoundError = 7
)

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string // e.g. "chat"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConfigError wraps a failure to load or save the configuration.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var notFound *NotFoundError
	var cfgErr config.ValidateErrors
	var configErr *ConfigError
	switch {
	case errors.As(err, &notFound):
		return ExitNotFoundError
	case errors.As(err, &configErr), errors.As(err, &cfgErr), errors.Is(err, storage.ErrUnknownDriver):
		return ExitConfigError
	case errors.Is(err, export.ErrUnsupportedFormat):
		return ExitUsageError
	default:
		return ExitGeneralError
	}
}
