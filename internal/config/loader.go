package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  "FIELDSYNC_",
	}
}

// Load reads configuration from file and environment. Precedence is
// defaults < file < environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		for _, path := range l.defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				l.configPath = path
				if err := l.loadFile(cfg); err != nil {
					return nil, fmt.Errorf("load config file %s: %w", path, err)
				}
				break
			}
		}
	}

	l.loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{
		"fieldsync.json",
		".fieldsync.json",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "fieldsync", "config.json"),
			filepath.Join(homeDir, ".fieldsync", "config.json"),
		)
	}

	return paths
}

// loadFile reads config from a JSON file. Durations may be given either as
// nanosecond integers or as strings like "30s".
func (l *Loader) loadFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var raw struct {
		Remote struct {
			BaseURL   string `json:"base_url"`
			Timeout   string `json:"timeout"`
			UserAgent string `json:"user_agent"`
		} `json:"remote"`
		Storage struct {
			DataDir string `json:"data_dir"`
			DBFile  string `json:"db_file"`
		} `json:"storage"`
		Sync struct {
			MaxConcurrent int    `json:"max_concurrent"`
			BatchSize     int    `json:"batch_size"`
			BackoffBase   string `json:"backoff_base"`
			BackoffCap    string `json:"backoff_cap"`
			DrainInterval string `json:"drain_interval"`
		} `json:"sync"`
		Checkpoint struct {
			Backend   string `json:"backend"`
			MaxAge    string `json:"max_age"`
			Retention string `json:"retention"`
			TableName string `json:"table_name"`
			Region    string `json:"region"`
		} `json:"checkpoint"`
		Log struct {
			Level  string `json:"level"`
			Format string `json:"format"`
			File   string `json:"file"`
		} `json:"log"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}

	setString(&cfg.Remote.BaseURL, raw.Remote.BaseURL)
	setString(&cfg.Remote.UserAgent, raw.Remote.UserAgent)
	setDuration(&cfg.Remote.Timeout, raw.Remote.Timeout)

	setString(&cfg.Storage.DataDir, raw.Storage.DataDir)
	setString(&cfg.Storage.DBFile, raw.Storage.DBFile)

	if raw.Sync.MaxConcurrent > 0 {
		cfg.Sync.MaxConcurrent = raw.Sync.MaxConcurrent
	}
	if raw.Sync.BatchSize > 0 {
		cfg.Sync.BatchSize = raw.Sync.BatchSize
	}
	setDuration(&cfg.Sync.BackoffBase, raw.Sync.BackoffBase)
	setDuration(&cfg.Sync.BackoffCap, raw.Sync.BackoffCap)
	setDuration(&cfg.Sync.DrainInterval, raw.Sync.DrainInterval)

	setString(&cfg.Checkpoint.Backend, raw.Checkpoint.Backend)
	setString(&cfg.Checkpoint.TableName, raw.Checkpoint.TableName)
	setString(&cfg.Checkpoint.Region, raw.Checkpoint.Region)
	setDuration(&cfg.Checkpoint.MaxAge, raw.Checkpoint.MaxAge)
	setDuration(&cfg.Checkpoint.Retention, raw.Checkpoint.Retention)

	setString(&cfg.Log.Level, raw.Log.Level)
	setString(&cfg.Log.Format, raw.Log.Format)
	setString(&cfg.Log.File, raw.Log.File)

	return nil
}

// loadEnv applies environment variable overrides.
func (l *Loader) loadEnv(cfg *Config) {
	if v := l.env("REMOTE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := l.env("REMOTE_TIMEOUT"); v != "" {
		setDuration(&cfg.Remote.Timeout, v)
	}
	if v := l.env("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := l.env("DB_FILE"); v != "" {
		cfg.Storage.DBFile = v
	}
	if v := l.env("MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.MaxConcurrent = n
		}
	}
	if v := l.env("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.BatchSize = n
		}
	}
	if v := l.env("CHECKPOINT_BACKEND"); v != "" {
		cfg.Checkpoint.Backend = v
	}
	if v := l.env("CHECKPOINT_TABLE"); v != "" {
		cfg.Checkpoint.TableName = v
	}
	if v := l.env("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := l.env("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func (l *Loader) env(key string) string {
	return os.Getenv(l.envPrefix + key)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}
