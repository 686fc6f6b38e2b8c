package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Backend     BackendConfig     `yaml:"backend"`
	Sync        SyncConfig        `yaml:"sync"`
	Screenshots ScreenshotConfig  `yaml:"screenshots"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Auth        AuthConfig        `yaml:"auth"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	ReadTimeout Duration `yaml:"read_timeout"`
	// WriteTimeout of zero keeps long-lived responses (the syslog
	// stream) open indefinitely.
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BackendConfig identifies the remote system queued operations are
// delivered to. An empty URL leaves the agent in offline mode: records
// accumulate in the queue until a backend is configured.
type BackendConfig struct {
	URL     string `yaml:"url"`
	AgentID string `yaml:"agent_id"`
}

// SyncConfig contains outbox drain and retention settings.
type SyncConfig struct {
	Interval      Duration `yaml:"interval"`
	BatchSize     int      `yaml:"batch_size"`
	MaxAttempts   int      `yaml:"max_attempts"`
	RetentionDays int      `yaml:"retention_days"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// ScreenshotConfig contains screenshot capture settings.
type ScreenshotConfig struct {
	Dir string `yaml:"dir"`
}

// ArchiveConfig contains S3-compatible screenshot archive settings.
// An empty bucket disables uploads.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
	Region    string `yaml:"region"`
	UseSSL    *bool  `yaml:"use_ssl"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("PIBRIDGE_CONFIG_PATH", "config/pibridge.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    0,
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/pibridge.db",
		},
		Backend: BackendConfig{
			AgentID: "pi-default",
		},
		Sync: SyncConfig{
			Interval:      Duration(5 * time.Minute),
			BatchSize:     50,
			MaxAttempts:   4,
			RetentionDays: 7,
			SweepInterval: Duration(24 * time.Hour),
		},
		Screenshots: ScreenshotConfig{
			Dir: "data/screenshots",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("PIBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PIBRIDGE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("PIBRIDGE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("PIBRIDGE_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("PIBRIDGE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Backend (PI_ID matches the header name the backend keys on)
	if v := os.Getenv("PIBRIDGE_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("PI_ID"); v != "" {
		cfg.Backend.AgentID = v
	}

	// Sync
	if v := os.Getenv("PIBRIDGE_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Interval = Duration(d)
		}
	}
	if v := os.Getenv("PIBRIDGE_SYNC_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.BatchSize = n
		}
	}
	if v := os.Getenv("PIBRIDGE_SYNC_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.MaxAttempts = n
		}
	}
	if v := os.Getenv("PIBRIDGE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.RetentionDays = n
		}
	}
	if v := os.Getenv("PIBRIDGE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.SweepInterval = Duration(d)
		}
	}

	// Screenshots
	if v := os.Getenv("PIBRIDGE_SCREENSHOTS_DIR"); v != "" {
		cfg.Screenshots.Dir = v
	}

	// Archive
	if v := os.Getenv("PIBRIDGE_ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("PIBRIDGE_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("PIBRIDGE_ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("PIBRIDGE_ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("PIBRIDGE_ARCHIVE_REGION"); v != "" {
		cfg.Archive.Region = v
	}

	// Auth
	if v := os.Getenv("PIBRIDGE_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Log
	if v := os.Getenv("PIBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PIBRIDGE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks configuration values. The backend URL is deliberately
// not required: the agent must boot and record while offline.
func (c *Config) validate() error {
	if c.Sync.BatchSize < 1 {
		return errors.New("sync.batch_size must be >= 1")
	}
	if c.Sync.MaxAttempts < 0 {
		return errors.New("sync.max_attempts must be >= 0")
	}
	if c.Sync.RetentionDays < 1 {
		return errors.New("sync.retention_days must be >= 1")
	}
	if c.Archive.Bucket != "" && c.Archive.Endpoint == "" {
		return errors.New("archive.endpoint is required when archive.bucket is set")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
