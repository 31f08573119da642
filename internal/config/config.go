// Package config provides configuration types and loading for convostore.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration struct.
type Config struct {
	Store  StoreConfig  `json:"store"`
	Ingest IngestConfig `json:"ingest"`
	Log    LogConfig    `json:"log"`
}

// ---------------------------------------------------------------------------
// Store – SQLite archive
// ---------------------------------------------------------------------------

// StoreConfig locates and tunes the archive database.
type StoreConfig struct {
	Path          string `json:"path"`
	BatchSize     int    `json:"batchSize" split_words:"true"`
	BusyTimeoutMs int    `json:"busyTimeoutMs" split_words:"true"`
}

// BusyTimeout returns the SQLite busy timeout as a duration.
func (c StoreConfig) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

// ---------------------------------------------------------------------------
// Ingest – defaults for ingest runs
// ---------------------------------------------------------------------------

// IngestConfig holds identity defaults applied when flags are not given.
type IngestConfig struct {
	Account  string `json:"account"`
	SourceID string `json:"sourceId" split_words:"true"`
	// Platform overrides the platform tag; empty means use the export format.
	Platform string `json:"platform"`
}

// ---------------------------------------------------------------------------
// Log
// ---------------------------------------------------------------------------

type LogConfig struct {
	Level string `json:"level"`
}

// SlogLevel parses Level. Accepted values are debug, info, warn and error.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	s := strings.TrimSpace(c.Level)
	if s == "" {
		return slog.LevelInfo, nil
	}
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "error":
	default:
		return lvl, fmt.Errorf("unknown log level %q", c.Level)
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, fmt.Errorf("unknown log level %q", c.Level)
	}
	return lvl, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if c.Store.BatchSize <= 0 {
		return fmt.Errorf("store batch size must be positive, got %d", c.Store.BatchSize)
	}
	if c.Store.BusyTimeoutMs < 0 {
		return fmt.Errorf("store busy timeout must not be negative, got %d", c.Store.BusyTimeoutMs)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			BatchSize:     2000,
			BusyTimeoutMs: 5000,
		},
		Ingest: IngestConfig{
			Account:  "main",
			SourceID: "src_0001",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
