// Package config provides configuration loading and structs for the kura server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Vision      VisionConfig      `yaml:"vision"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Search      SearchConfig      `yaml:"search"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StorageConfig selects and configures the catalog store.
type StorageConfig struct {
	Driver           string        `yaml:"driver"`
	DatabasePath     string        `yaml:"database_path"`
	DatabaseURL      string        `yaml:"database_url,omitempty"`
	DatabaseURLEnv   string        `yaml:"database_url_env"`
	TrigramIndexPath string        `yaml:"trigram_index_path"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
}

// URL returns the configured Postgres URL, preferring the environment.
func (s *StorageConfig) URL() string {
	if s.DatabaseURLEnv != "" {
		if v := os.Getenv(s.DatabaseURLEnv); v != "" {
			return v
		}
	}
	return s.DatabaseURL
}

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
	ProviderNone   = "none"
)

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
	BaseURL    string        `yaml:"base_url,omitempty"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	ModelPath  string        `yaml:"model_path,omitempty"`
	MaxTokens  int           `yaml:"max_tokens"`
}

// APIKey reads the provider key from the configured environment variable.
func (e *EmbeddingConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// VisionConfig configures the image analyzer. It shares the embedding
// provider's key and base URL.
type VisionConfig struct {
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Object store drivers.
const (
	ObjectStoreLocal = "local"
	ObjectStoreGCS   = "gcs"
)

// ObjectStoreConfig configures thumbnail storage.
type ObjectStoreConfig struct {
	Driver        string        `yaml:"driver"`
	Bucket        string        `yaml:"bucket,omitempty"`
	LocalDir      string        `yaml:"local_dir"`
	PublicBaseURL string        `yaml:"public_base_url"`
	URLTTL        time.Duration `yaml:"url_ttl"`
}

// SearchConfig holds ranking limits.
type SearchConfig struct {
	DefaultLimit         int     `yaml:"default_limit"`
	MaxLimit             int     `yaml:"max_limit"`
	CandidateCap         int     `yaml:"candidate_cap"`
	TrigramThreshold     float64 `yaml:"trigram_threshold"`
	TrigramPrefilterSize int     `yaml:"trigram_prefilter_size"`
}

// IngestConfig holds enrichment pipeline settings.
type IngestConfig struct {
	BatchSize             int `yaml:"batch_size"`
	MaxInputChars         int `yaml:"max_input_chars"`
	Workers               int `yaml:"workers"`
	ThumbnailMaxDimension int `yaml:"thumbnail_max_dimension"`
	ThumbnailQuality      int `yaml:"thumbnail_quality"`
}

// WatchConfig holds drop-folder watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.TrigramIndexPath = expandPath(cfg.Storage.TrigramIndexPath, configDir)
	cfg.ObjectStore.LocalDir = expandPath(cfg.ObjectStore.LocalDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate rejects unknown drivers and providers.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderONNX, ProviderMock, ProviderNone:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.ObjectStore.Driver {
	case ObjectStoreLocal:
	case ObjectStoreGCS:
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("object_store.bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("unknown object store driver %q", c.ObjectStore.Driver)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
