package config

import "time"

// DefaultImageExtensions are the drop-folder file types ingested by default.
var DefaultImageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".tiff", ".bmp",
	".mp4", ".mov", ".webm",
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kura/data/db/catalog.db"
	}
	if cfg.Storage.DatabaseURLEnv == "" {
		cfg.Storage.DatabaseURLEnv = "DATABASE_URL"
	}
	if cfg.Storage.TrigramIndexPath == "" {
		cfg.Storage.TrigramIndexPath = "/usr/local/var/kura/data/indices/trigram"
	}
	if cfg.Storage.MaxConns == 0 {
		cfg.Storage.MaxConns = 10
	}
	if cfg.Storage.MinConns == 0 {
		cfg.Storage.MinConns = 2
	}
	if cfg.Storage.QueryTimeout == 0 {
		cfg.Storage.QueryTimeout = 60 * time.Second
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderOpenAI
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 10 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}

	if cfg.Vision.Model == "" {
		cfg.Vision.Model = "gpt-4o"
	}
	if cfg.Vision.Timeout == 0 {
		cfg.Vision.Timeout = 120 * time.Second
	}

	if cfg.ObjectStore.Driver == "" {
		cfg.ObjectStore.Driver = ObjectStoreLocal
	}
	if cfg.ObjectStore.LocalDir == "" {
		cfg.ObjectStore.LocalDir = "/usr/local/var/kura/data/objects"
	}
	if cfg.ObjectStore.URLTTL == 0 {
		cfg.ObjectStore.URLTTL = time.Hour
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.CandidateCap == 0 {
		cfg.Search.CandidateCap = 100
	}
	if cfg.Search.TrigramThreshold == 0 {
		cfg.Search.TrigramThreshold = 0.3
	}
	if cfg.Search.TrigramPrefilterSize == 0 {
		cfg.Search.TrigramPrefilterSize = 10000
	}

	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 50
	}
	if cfg.Ingest.MaxInputChars == 0 {
		cfg.Ingest.MaxInputChars = 8000
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.ThumbnailMaxDimension == 0 {
		cfg.Ingest.ThumbnailMaxDimension = 800
	}
	if cfg.Ingest.ThumbnailQuality == 0 {
		cfg.Ingest.ThumbnailQuality = 85
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), DefaultImageExtensions...)
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
