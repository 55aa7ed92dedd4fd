// Package config loads, persists and watches the afkmon configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all configurable afkmon settings.
type Config struct {
	// Enabled controls whether monitoring starts with the daemon.
	Enabled bool `json:"enabled"`
	// ServerURL is the collector origin sessions are submitted to.
	ServerURL string `json:"server_url"`
	// SyncInterval is declared for forward compatibility; sessions are
	// currently sent immediately on completion and nothing is scheduled
	// off this value.
	SyncInterval int `json:"sync_interval"`
	// ListenAddr is the loopback address the daemon's bridge and status
	// endpoints bind to.
	ListenAddr string `json:"listen_addr"`
}

// Defaults returns the default configuration values.
func Defaults() Config {
	return Config{
		Enabled:      true,
		ServerURL:    "http://localhost:8000",
		SyncInterval: 10,
		ListenAddr:   "127.0.0.1:8787",
	}
}

// GlobalPath returns the config file location:
// $XDG_CONFIG_HOME/afkmon/config.json or ~/.config/afkmon/config.json.
func GlobalPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "afkmon", "config.json"), nil
}

// Load reads the config file at path, filling unset keys with defaults.
// Returns defaults if the file is absent.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}

	// Parse through pointers so absent keys keep their defaults; a file
	// containing only {"server_url": ...} must not flip enabled to false.
	var raw struct {
		Enabled      *bool   `json:"enabled"`
		ServerURL    *string `json:"server_url"`
		SyncInterval *int    `json:"sync_interval"`
		ListenAddr   *string `json:"listen_addr"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, &ParseError{Path: path, Err: err}
	}

	if raw.Enabled != nil {
		cfg.Enabled = *raw.Enabled
	}
	if raw.ServerURL != nil && *raw.ServerURL != "" {
		cfg.ServerURL = *raw.ServerURL
	}
	if raw.SyncInterval != nil && *raw.SyncInterval > 0 {
		cfg.SyncInterval = *raw.SyncInterval
	}
	if raw.ListenAddr != nil && *raw.ListenAddr != "" {
		cfg.ListenAddr = *raw.ListenAddr
	}
	return cfg, nil
}

// Save marshals cfg to path atomically via a temp file + os.Rename, creating
// the parent directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to persist config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "config-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist config: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist config: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist config: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to persist config: %w", err)
	}
	return nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
