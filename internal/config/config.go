// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tsunamayo7/helix-ai-studio/internal/protocol"
	"github.com/tsunamayo7/helix-ai-studio/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete helix configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Server     ServerConfig     `toml:"server" json:"server"`
	Connection ConnectionConfig `toml:"connection" json:"connection"`
	Execute    ExecuteConfig    `toml:"execute" json:"execute"`
	Local      LocalConfig      `toml:"local" json:"local"`
	History    HistoryConfig    `toml:"history" json:"history"`
	Auth       AuthConfig       `toml:"auth" json:"auth"`
	Logging    LoggingConfig    `toml:"logging" json:"logging"`
}

// ServerConfig locates the Helix AI Studio service.
type ServerConfig struct {
	// BaseURL is the http(s) address of the service.
	BaseURL string `toml:"base_url" json:"base_url"`

	// DefaultEndpoint is used by chat when no mode is given: solo, mix or local.
	DefaultEndpoint string `toml:"default_endpoint" json:"default_endpoint"`

	// Endpoints are connected by commands that watch every mode.
	Endpoints []string `toml:"endpoints" json:"endpoints"`
}

// ConnectionConfig tunes the socket lifecycle.
type ConnectionConfig struct {
	ReconnectDelayMs int `toml:"reconnect_delay_ms" json:"reconnect_delay_ms"`
	KeepAliveSecs    int `toml:"keepalive_secs" json:"keepalive_secs"` // 0 disables pings
	DialTimeoutSecs  int `toml:"dial_timeout_secs" json:"dial_timeout_secs"`
}

// ExecuteConfig holds the defaults for execute and mix commands.
type ExecuteConfig struct {
	ModelID          string            `toml:"model_id" json:"model_id"`
	ProjectDir       string            `toml:"project_dir" json:"project_dir"`
	Timeout          int               `toml:"timeout" json:"timeout"` // seconds, 0 is the server default
	UseMCP           bool              `toml:"use_mcp" json:"use_mcp"`
	AutoApprove      bool              `toml:"auto_approve" json:"auto_approve"`
	EnableRAG        bool              `toml:"enable_rag" json:"enable_rag"`
	ModelAssignments map[string]string `toml:"model_assignments" json:"model_assignments"`
}

// LocalConfig holds the defaults for the local endpoint.
type LocalConfig struct {
	Model      string `toml:"model" json:"model"`
	ClientInfo string `toml:"client_info" json:"client_info"`
}

// HistoryConfig selects where chat history comes from.
type HistoryConfig struct {
	// Source is "remote" (the service) or "local" (the archive).
	Source string `toml:"source" json:"source"`

	// Record mirrors the active chat into the archive.
	Record      bool   `toml:"record" json:"record"`
	ArchivePath string `toml:"archive_path" json:"archive_path"`

	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	MaxMessages       int     `toml:"max_messages" json:"max_messages"`
}

// AuthConfig locates the stored credential.
type AuthConfig struct {
	TokenFile      string `toml:"token_file" json:"token_file"`
	WatchTokenFile bool   `toml:"watch_token_file" json:"watch_token_file"`
}

// LoggingConfig configures the diagnostic log.
type LoggingConfig struct {
	Level       string `toml:"level" json:"level"`
	Development bool   `toml:"development" json:"development"`
	File        string `toml:"file" json:"file"` // empty logs to stderr
}

// History sources.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with default values.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = ".helix"
	}

	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			BaseURL:         "http://localhost:8500",
			DefaultEndpoint: "solo",
			Endpoints:       []string{"solo", "mix", "local"},
		},

		Connection: ConnectionConfig{
			ReconnectDelayMs: 5000,
			KeepAliveSecs:    30,
			DialTimeoutSecs:  10,
		},

		Execute: ExecuteConfig{
			UseMCP:           true,
			AutoApprove:      true,
			EnableRAG:        true,
			ModelAssignments: map[string]string{},
		},

		Local: LocalConfig{
			ClientInfo: protocol.DefaultClientInfo,
		},

		History: HistoryConfig{
			Source:            SourceRemote,
			Record:            false,
			ArchivePath:       filepath.Join(dir, "archive.db"),
			RequestsPerSecond: 5,
			MaxMessages:       1000,
		},

		Auth: AuthConfig{
			TokenFile:      filepath.Join(dir, "token"),
			WatchTokenFile: true,
		},

		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// ReconnectDelay returns the pause before a reconnect attempt.
func (c ConnectionConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// KeepAlive returns the ping interval; zero disables pings.
func (c ConnectionConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSecs) * time.Second
}

// DialTimeout returns the handshake timeout.
func (c ConnectionConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSecs) * time.Second
}

// ProtocolDefaults returns the command encoder defaults.
func (c *Config) ProtocolDefaults() protocol.Defaults {
	return protocol.Defaults{
		ModelID:          c.Execute.ModelID,
		ProjectDir:       c.Execute.ProjectDir,
		Timeout:          c.Execute.Timeout,
		UseMCP:           protocol.Bool(c.Execute.UseMCP),
		AutoApprove:      protocol.Bool(c.Execute.AutoApprove),
		EnableRAG:        protocol.Bool(c.Execute.EnableRAG),
		ModelAssignments: maps.Clone(c.Execute.ModelAssignments),
		LocalModel:       c.Local.Model,
		ClientInfo:       c.Local.ClientInfo,
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the helix configuration directory, $HELIX_HOME or
// ~/.helix.
func ConfigDir() (string, error) {
	if dir := os.Getenv("HELIX_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".helix"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions narrows a config file to owner read/write.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
//
// If a file exists but cannot be decoded, the defaults are returned together
// with the decode error.
func Load() (*Config, error) {
	var loadErr error

	candidates := []func() (string, error){ConfigPathTOML, ConfigPathJSON}
	for _, candidate := range candidates {
		path, err := candidate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		if errors.As(err, new(ValidateErrors)) {
			return nil, err
		}
		loadErr = err
		break
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file. Keys missing from
// the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
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

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills empty values with defaults. Booleans are left alone;
// a file that sets one to false means false.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Server.BaseURL == "" {
		c.Server.BaseURL = defaults.Server.BaseURL
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Server.DefaultEndpoint == "" {
		c.Server.DefaultEndpoint = defaults.Server.DefaultEndpoint
	}
	if len(c.Server.Endpoints) == 0 {
		c.Server.Endpoints = defaults.Server.Endpoints
	}

	if c.Connection.ReconnectDelayMs == 0 {
		c.Connection.ReconnectDelayMs = defaults.Connection.ReconnectDelayMs
	}
	if c.Connection.DialTimeoutSecs == 0 {
		c.Connection.DialTimeoutSecs = defaults.Connection.DialTimeoutSecs
	}

	if c.Execute.ModelAssignments == nil {
		c.Execute.ModelAssignments = map[string]string{}
	}

	if c.Local.ClientInfo == "" {
		c.Local.ClientInfo = defaults.Local.ClientInfo
	}

	if c.History.Source == "" {
		c.History.Source = defaults.History.Source
	}
	if c.History.ArchivePath == "" {
		c.History.ArchivePath = defaults.History.ArchivePath
	}
	if c.History.RequestsPerSecond == 0 {
		c.History.RequestsPerSecond = defaults.History.RequestsPerSecond
	}
	if c.History.MaxMessages == 0 {
		c.History.MaxMessages = defaults.History.MaxMessages
	}

	if c.Auth.TokenFile == "" {
		c.Auth.TokenFile = defaults.Auth.TokenFile
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
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

// SaveTOML atomically writes the configuration as TOML with owner-only
// permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# helix configuration file\n")
	buf.WriteString("# Generated by helix - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON atomically writes the configuration as JSON with owner-only
// permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
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
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validEndpoints = map[string]bool{"solo": true, "cloud": true, "mix": true, "local": true}
	validSources   = map[string]bool{SourceRemote: true, SourceLocal: true}
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate validates the configuration and returns ValidateErrors listing
// every problem, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if u, err := url.Parse(c.Server.BaseURL); err != nil {
		add("server.base_url", "invalid URL: %v", err)
	} else {
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			add("server.base_url", "unsupported scheme '%s', must be http or https", u.Scheme)
		}
		if u.Host == "" {
			add("server.base_url", "missing host")
		}
	}
	if !validEndpoints[c.Server.DefaultEndpoint] {
		add("server.default_endpoint", "invalid endpoint '%s', must be one of: solo (alias cloud), mix, local", c.Server.DefaultEndpoint)
	}
	for i, e := range c.Server.Endpoints {
		if !validEndpoints[e] {
			add(fmt.Sprintf("server.endpoints[%d]", i), "invalid endpoint '%s', must be one of: solo (alias cloud), mix, local", e)
		}
	}

	// Connection
	if c.Connection.ReconnectDelayMs < 0 {
		add("connection.reconnect_delay_ms", "must not be negative")
	}
	if c.Connection.KeepAliveSecs < 0 {
		add("connection.keepalive_secs", "must not be negative")
	}
	if c.Connection.DialTimeoutSecs < 0 {
		add("connection.dial_timeout_secs", "must not be negative")
	}

	// Execute
	if c.Execute.Timeout < 0 {
		add("execute.timeout", "must not be negative")
	}
	for category := range c.Execute.ModelAssignments {
		if strings.TrimSpace(category) == "" {
			add("execute.model_assignments", "category names must not be empty")
			break
		}
	}

	// History
	if !validSources[c.History.Source] {
		add("history.source", "invalid source '%s', must be one of: remote, local", c.History.Source)
	}
	if c.History.RequestsPerSecond < 0 {
		add("history.requests_per_second", "must not be negative")
	}
	if c.History.MaxMessages < 0 {
		add("history.max_messages", "must not be negative")
	}

	// Logging
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - HELIX_URL: overrides server.base_url
//   - HELIX_ENDPOINT: overrides server.default_endpoint
//   - HELIX_MODEL: overrides execute.model_id
//   - HELIX_LOCAL_MODEL: overrides local.model
//   - HELIX_PROJECT_DIR: overrides execute.project_dir
//   - HELIX_TOKEN_FILE: overrides auth.token_file
//   - HELIX_HISTORY_SOURCE: overrides history.source
//   - HELIX_LOG_LEVEL: overrides logging.level
//   - HELIX_DEBUG: set to "1" or "true" for development logging at debug level
func (c *Config) ApplyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"HELIX_URL", &c.Server.BaseURL},
		{"HELIX_ENDPOINT", &c.Server.DefaultEndpoint},
		{"HELIX_MODEL", &c.Execute.ModelID},
		{"HELIX_LOCAL_MODEL", &c.Local.Model},
		{"HELIX_PROJECT_DIR", &c.Execute.ProjectDir},
		{"HELIX_TOKEN_FILE", &c.Auth.TokenFile},
		{"HELIX_HISTORY_SOURCE", &c.History.Source},
		{"HELIX_LOG_LEVEL", &c.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}

	if debug := os.Getenv("HELIX_DEBUG"); debug != "" {
		if parseBool(debug) {
			c.Logging.Development = true
			c.Logging.Level = "debug"
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "1" || s == "true" || s == "yes"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "server.base_url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field type.
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

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
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

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
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
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		case reflect.Map:
			// category=model pairs, comma separated.
			if field.Type() == reflect.TypeOf(map[string]string{}) {
				m := map[string]string{}
				for _, pair := range strings.Split(strVal, ",") {
					if pair = strings.TrimSpace(pair); pair == "" {
						continue
					}
					k, v, ok := strings.Cut(pair, "=")
					if !ok {
						return fmt.Errorf("invalid pair %q, want key=value", pair)
					}
					m[strings.TrimSpace(k)] = strings.TrimSpace(v)
				}
				field.Set(reflect.ValueOf(m))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && field.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation, sorted.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
			if name == "" || name == "-" {
				continue
			}
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, prefix+name+".")
				continue
			}
			keys = append(keys, prefix+name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	sort.Strings(keys)
	return keys
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.Endpoints = append([]string(nil), c.Server.Endpoints...)
	clone.Execute.ModelAssignments = maps.Clone(c.Execute.ModelAssignments)
	return &clone
}

// String returns the configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
