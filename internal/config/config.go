package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Documents are opened relative to this directory.
	DocumentRoot string `yaml:"document_root"`

	// Sidecar store: "sqlite" or "pathstore"
	Store  string `yaml:"store"`
	DBPath string `yaml:"db_path"`

	// Pathstore connection
	PathstoreURL    string `yaml:"pathstore_url"`
	PathstoreAPIKey string `yaml:"pathstore_api_key"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`

	// Task state
	TaskTTL       time.Duration `yaml:"task_ttl"`
	CommitRetries int           `yaml:"commit_retries"`

	// Lazy acquisition
	AcquirePoll    time.Duration `yaml:"acquire_poll"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	// External editor command; falls back to $VISUAL and $EDITOR.
	Editor string `yaml:"editor"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Port:           "8090",
		DocumentRoot:   ".",
		Store:          "sqlite",
		DBPath:         "docmeta.db",
		PathstoreURL:   "http://localhost:8080",
		WorkerCount:    4,
		MaxQueueSize:   100,
		TaskTTL:        1 * time.Hour,
		CommitRetries:  3,
		AcquirePoll:    100 * time.Millisecond,
		AcquireTimeout: 30 * time.Second,
		MaxUploadBytes: 52428800, // 50MB
	}
}

// Load builds the configuration from defaults, the YAML file named by
// DOCMETA_CONFIG if set, and environment variables, later sources winning.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("DOCMETA_CONFIG"); path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("DOCMETA_API_KEY", cfg.APIKey)
	cfg.DocumentRoot = envOr("DOCMETA_DOCUMENT_ROOT", cfg.DocumentRoot)
	cfg.Store = envOr("DOCMETA_STORE", cfg.Store)
	cfg.DBPath = envOr("DOCMETA_DB_PATH", cfg.DBPath)
	cfg.PathstoreURL = envOr("PATHSTORE_URL", cfg.PathstoreURL)
	cfg.PathstoreAPIKey = envOr("PATHSTORE_API_KEY", cfg.PathstoreAPIKey)
	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.TaskTTL = envDuration("TASK_TTL", cfg.TaskTTL)
	cfg.CommitRetries = envInt("COMMIT_RETRIES", cfg.CommitRetries)
	cfg.AcquirePoll = envDuration("ACQUIRE_POLL", cfg.AcquirePoll)
	cfg.AcquireTimeout = envDuration("ACQUIRE_TIMEOUT", cfg.AcquireTimeout)
	cfg.Editor = envOr("DOCMETA_EDITOR", cfg.Editor)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.applyFloors()
	return cfg, nil
}

// LoadFile reads a YAML config file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyFloors()
	return cfg, nil
}

func (c *Config) applyFloors() {
	d := Default()
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.TaskTTL <= 0 {
		c.TaskTTL = d.TaskTTL
	}
	if c.CommitRetries < 0 {
		c.CommitRetries = 0
	}
	if c.AcquirePoll <= 0 {
		c.AcquirePoll = d.AcquirePoll
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
}

// Validate checks the settings the server cannot run without.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("DOCMETA_API_KEY is required")
	}
	return c.ValidateStore()
}

// ValidateStore checks the sidecar store settings. The CLI needs only these.
func (c Config) ValidateStore() error {
	switch c.Store {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DOCMETA_DB_PATH is required")
		}
	case "pathstore":
		if c.PathstoreURL == "" {
			return fmt.Errorf("PATHSTORE_URL is required")
		}
		if c.PathstoreAPIKey == "" {
			return fmt.Errorf("PATHSTORE_API_KEY is required")
		}
	default:
		return fmt.Errorf("unsupported store %q (use sqlite or pathstore)", c.Store)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
