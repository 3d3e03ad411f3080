// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/heavon/internal/util"
)

// CurrentVersion is written into saved config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete heavon configuration.
type Config struct {
	Version      string `toml:"version" json:"version"`
	DefaultModel string `toml:"default_model" json:"default_model"`

	Provider ProviderConfig `toml:"provider" json:"provider"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Log      LogConfig      `toml:"log" json:"log"`
	UI       UIConfig       `toml:"ui" json:"ui"`
}

// ProviderConfig contains completion provider settings.
type ProviderConfig struct {
	BaseURL   string `toml:"base_url" json:"base_url"`
	HFBaseURL string `toml:"hf_base_url" json:"hf_base_url"`

	// SiteURL and SiteName are sent as HTTP-Referer and X-Title.
	SiteURL  string `toml:"site_url" json:"site_url"`
	SiteName string `toml:"site_name" json:"site_name"`

	// Timeout is a duration string; empty or "0" disables it.
	Timeout string `toml:"timeout" json:"timeout"`

	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`

	// OpenRouterKey seeds the stored settings when they hold no key.
	OpenRouterKey string `toml:"openrouter_key,omitempty" json:"openrouter_key,omitempty"`
}

// StorageConfig selects where chats and settings are persisted.
type StorageConfig struct {
	Driver string `toml:"driver" json:"driver"`
	Dir    string `toml:"dir" json:"dir"`

	RedisAddr     string `toml:"redis_addr" json:"redis_addr"`
	RedisPassword string `toml:"redis_password,omitempty" json:"redis_password,omitempty"`
	RedisDB       int    `toml:"redis_db" json:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix" json:"redis_prefix"`

	// Watch reloads settings when the settings file changes on disk.
	// Only the file driver supports it.
	Watch bool `toml:"watch" json:"watch"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	File   string `toml:"file" json:"file"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	Theme          string `toml:"theme" json:"theme"`
	ShowTimestamps bool   `toml:"show_timestamps" json:"show_timestamps"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:      CurrentVersion,
		DefaultModel: "openai/gpt-3.5-turbo",

		Provider: ProviderConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			HFBaseURL:         "https://router.huggingface.co/v1",
			SiteURL:           "https://heavon.local",
			SiteName:          "AIHeavon",
			Timeout:           "2m",
			RequestsPerMinute: 0, // unlimited
		},

		Storage: StorageConfig{
			Driver:      "file",
			Dir:         "~/.heavon",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "heavon:",
			Watch:       true,
		},

		Log: LogConfig{
			Level:  "info",
			Format: "console",
			File:   "heavon.log",
		},

		UI: UIConfig{
			Theme: "dark",
		},
	}
}

// TimeoutDuration parses Timeout. Invalid or empty values mean no timeout;
// Validate reports invalid ones.
func (p ProviderConfig) TimeoutDuration() time.Duration {
	if p.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// DataDir returns Storage.Dir with a leading ~ expanded.
func (c *Config) DataDir() (string, error) {
	return expandHome(c.Storage.Dir)
}

// LogPath returns where logs are written: "" for stderr, otherwise an
// absolute path. Relative Log.File values live in the data directory.
func (c *Config) LogPath() (string, error) {
	file := c.Log.File
	if file == "" || file == "-" || strings.EqualFold(file, "stderr") {
		return "", nil
	}
	file, err := expandHome(file)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(file) {
		return file, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, file), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the heavon configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".heavon"), nil
}

// ConfigPathTOML returns the path to the default TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when it does not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPathTOML()
	if err != nil {
		return finish(Default())
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file. A .json suffix
// selects JSON; anything else is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadFile decodes a config file over the defaults, without environment
// overrides or validation. It is what config edits start from, so values
// only present in the environment are not written back.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return cfg, nil
}

// finish applies environment overrides, migration and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Migrate(); err != nil {
		return nil, fmt.Errorf("config migration failed: %w", err)
	}
	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg. Missing keys take defaults.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadJSON decodes a JSON file into cfg. Missing keys take defaults.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return fillDefaults(cfg)
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaults.DefaultModel
	}

	// Provider
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = defaults.Provider.BaseURL
	}
	if cfg.Provider.HFBaseURL == "" {
		cfg.Provider.HFBaseURL = defaults.Provider.HFBaseURL
	}
	if cfg.Provider.SiteURL == "" {
		cfg.Provider.SiteURL = defaults.Provider.SiteURL
	}
	if cfg.Provider.SiteName == "" {
		cfg.Provider.SiteName = defaults.Provider.SiteName
	}

	// Storage
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = defaults.Storage.Dir
	}
	if cfg.Storage.RedisAddr == "" {
		cfg.Storage.RedisAddr = defaults.Storage.RedisAddr
	}
	if cfg.Storage.RedisPrefix == "" {
		cfg.Storage.RedisPrefix = defaults.Storage.RedisPrefix
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions, since
// the file may hold credentials.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# heavon configuration file")
	fmt.Fprintln(&buf, "# Generated by heavon - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Provider
	for field, raw := range map[string]string{
		"provider.base_url":    c.Provider.BaseURL,
		"provider.hf_base_url": c.Provider.HFBaseURL,
	} {
		if err := validateHTTPURL(raw); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
	}
	if c.Provider.Timeout != "" {
		if d, err := time.ParseDuration(c.Provider.Timeout); err != nil {
			errs = append(errs, ValidationError{
				Field:   "provider.timeout",
				Message: fmt.Sprintf("invalid duration '%s'", c.Provider.Timeout),
			})
		} else if d < 0 {
			errs = append(errs, ValidationError{Field: "provider.timeout", Message: "must not be negative"})
		}
	}
	if c.Provider.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{
			Field:   "provider.requests_per_minute",
			Message: "must be 0 (unlimited) or positive",
		})
	}

	// Storage
	validDrivers := map[string]bool{"file": true, "sqlite": true, "redis": true, "memory": true}
	if !validDrivers[c.Storage.Driver] {
		errs = append(errs, ValidationError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("invalid driver '%s', must be one of: file, sqlite, redis, memory", c.Storage.Driver),
		})
	}
	if c.Storage.Driver == "redis" && c.Storage.RedisAddr == "" {
		errs = append(errs, ValidationError{Field: "storage.redis_addr", Message: "required for the redis driver"})
	}
	if c.Storage.RedisDB < 0 || c.Storage.RedisDB > 15 {
		errs = append(errs, ValidationError{Field: "storage.redis_db", Message: "must be between 0 and 15"})
	}

	// Log
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: console, json", c.Log.Format),
		})
	}

	// UI
	if c.UI.Theme != "dark" && c.UI.Theme != "light" {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got '%s'", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: '%s'", raw)
	}
	return nil
}

// =============================================================================
// MIGRATION
// =============================================================================

// Migrate rewrites values written by older heavon versions.
func (c *Config) Migrate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "json", "local":
		c.Storage.Driver = "file"
	case "sqlite3":
		c.Storage.Driver = "sqlite"
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format == "text" || c.Log.Format == "pretty" {
		c.Log.Format = "console"
	}

	if c.Version == "" || c.Version == "0" {
		c.Version = CurrentVersion
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - HEAVON_MODEL: overrides default_model
//   - HEAVON_BASE_URL: overrides provider.base_url
//   - HEAVON_OPENROUTER_KEY: overrides provider.openrouter_key
//   - HEAVON_STORAGE_DRIVER: overrides storage.driver
//   - HEAVON_DATA_DIR: overrides storage.dir
//   - HEAVON_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("HEAVON_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if baseURL := os.Getenv("HEAVON_BASE_URL"); baseURL != "" {
		c.Provider.BaseURL = baseURL
	}
	if key := os.Getenv("HEAVON_OPENROUTER_KEY"); key != "" {
		c.Provider.OpenRouterKey = key
	}
	if driver := os.Getenv("HEAVON_STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if dir := os.Getenv("HEAVON_DATA_DIR"); dir != "" {
		c.Storage.Dir = dir
	}
	if level := os.Getenv("HEAVON_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "storage.driver").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "log.level").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup resolves a dotted key by matching each part against toml tags.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
			if tag == "" {
				continue
			}
			if t.Field(i).Type.Kind() == reflect.Struct {
				walk(t.Field(i).Type, prefix+tag+".")
				continue
			}
			keys = append(keys, prefix+tag)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a JSON representation with credentials redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Provider.OpenRouterKey != "" {
		safe.Provider.OpenRouterKey = "[REDACTED]"
	}
	if safe.Storage.RedisPassword != "" {
		safe.Storage.RedisPassword = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
