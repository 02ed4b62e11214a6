package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Config holds all library configuration.
type Config struct {
	// Remote document store
	Remote RemoteConfig `json:"remote"`

	// Local storage paths
	Storage StorageConfig `json:"storage"`

	// Sync behavior
	Sync SyncConfig `json:"sync"`

	// Checkpoint persistence and lifecycle
	Checkpoint CheckpointConfig `json:"checkpoint"`

	// Logging
	Log LogConfig `json:"log"`
}

// RemoteConfig for the remote document store client.
type RemoteConfig struct {
	BaseURL   string        `json:"base_url"`
	Timeout   time.Duration `json:"timeout"` // Per-attempt timeout
	UserAgent string        `json:"user_agent"`
}

// StorageConfig for local durable storage.
type StorageConfig struct {
	DataDir string `json:"data_dir"` // Base directory for all data
	DBFile  string `json:"db_file"`  // SQLite database path
}

// SyncConfig for queue drain behavior.
type SyncConfig struct {
	MaxConcurrent int           `json:"max_concurrent"` // Concurrent document groups
	BatchSize     int           `json:"batch_size"`     // Records per bulk batch
	BackoffBase   time.Duration `json:"backoff_base"`   // Initial retry delay
	BackoffCap    time.Duration `json:"backoff_cap"`    // Max retry delay
	DrainInterval time.Duration `json:"drain_interval"` // Background drain period
}

// CheckpointConfig for bulk job tracking.
type CheckpointConfig struct {
	Backend   string        `json:"backend"`    // sqlite, dynamodb
	MaxAge    time.Duration `json:"max_age"`    // Staleness threshold
	Retention time.Duration `json:"retention"`  // Cleanup window
	TableName string        `json:"table_name"` // DynamoDB table (backend=dynamodb)
	Region    string        `json:"region"`     // AWS region (backend=dynamodb)
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
	File   string `json:"file"`   // Log file path (empty = stdout)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".fieldsync"

	return &Config{
		Remote: RemoteConfig{
			Timeout:   30 * time.Second,
			UserAgent: "fieldsync/1.0",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			DBFile:  filepath.Join(dataDir, "fieldsync.db"),
		},
		Sync: SyncConfig{
			MaxConcurrent: 4,
			BatchSize:     50,
			BackoffBase:   5 * time.Second,
			BackoffCap:    5 * time.Minute,
			DrainInterval: time.Minute,
		},
		Checkpoint: CheckpointConfig{
			Backend:   "sqlite",
			MaxAge:    2 * time.Hour,
			Retention: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Remote.Timeout <= 0 {
		return errors.New("remote.timeout must be positive")
	}

	if c.Storage.DBFile == "" {
		return errors.New("storage.db_file is required")
	}

	if c.Sync.MaxConcurrent <= 0 {
		return errors.New("sync.max_concurrent must be positive")
	}

	if c.Sync.BatchSize <= 0 {
		return errors.New("sync.batch_size must be positive")
	}

	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffCap < c.Sync.BackoffBase {
		return errors.New("sync backoff window is invalid")
	}

	switch c.Checkpoint.Backend {
	case "sqlite":
	case "dynamodb":
		if c.Checkpoint.TableName == "" {
			return errors.New("checkpoint.table_name is required for dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint backend: %s", c.Checkpoint.Backend)
	}

	if c.Checkpoint.MaxAge <= 0 {
		return errors.New("checkpoint.max_age must be positive")
	}

	if c.Checkpoint.Retention < c.Checkpoint.MaxAge {
		return errors.New("checkpoint.retention must cover checkpoint.max_age")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}
