package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/indexer"
	"github.com/hyperjump/kura/internal/objectstore"
	"github.com/hyperjump/kura/internal/search"
	"github.com/hyperjump/kura/internal/storage"
	"github.com/hyperjump/kura/internal/vision"
)

const defaultConfigPath = "/usr/local/etc/kura/config.yaml"

// loadConfig loads config from path. When path is the default, ./config.yaml
// wins if it exists so that running from a checkout uses the project config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Embedder embedding.Embedder
	Objects  objectstore.Store
	Local    *objectstore.LocalStore
	Engine   *search.Engine
	Indexer  *indexer.Indexer
}

// Close releases everything in reverse order of construction.
func (c *Components) Close() {
	if c.Indexer != nil {
		c.Indexer.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if closer, ok := c.Objects.(io.Closer); ok {
		_ = closer.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	c.Embedder = newEmbedder(cfg, logger)

	if err := c.openObjectStore(ctx, cfg); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	ttl := cfg.ObjectStore.URLTTL
	c.Engine = search.NewEngine(store, c.Embedder, &cfg.Search,
		search.WithLogger(logger),
		search.WithEmbedTimeout(cfg.Embedding.Timeout),
		search.WithAssembler(search.NewAssembler(c.Objects, ttl, logger)),
	)

	idxOpts := []indexer.IndexerOption{
		indexer.WithLogger(logger),
		indexer.WithObjectStore(c.Objects, ttl),
	}
	if analyzer := newAnalyzer(cfg, logger); analyzer != nil {
		idxOpts = append(idxOpts, indexer.WithAnalyzer(analyzer, cfg.Vision.Timeout))
	}
	c.Indexer, err = indexer.NewIndexer(store, c.Embedder, cfg.Ingest, idxOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("components initialized",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.Bool("semantic_available", c.Embedder.Available()),
		zap.Bool("vision_available", c.Indexer.HasAnalyzer()),
		zap.String("object_store", cfg.ObjectStore.Driver),
	)
	return c, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		return storage.NewPostgresStorage(ctx, storage.PostgresConfig{
			URL:          cfg.Storage.URL(),
			MaxConns:     cfg.Storage.MaxConns,
			MinConns:     cfg.Storage.MinConns,
			Dimensions:   cfg.Embedding.Dimensions,
			QueryTimeout: cfg.Storage.QueryTimeout,
		})
	default:
		return storage.NewSQLiteStorage(cfg.Storage.DatabasePath, cfg.Storage.TrigramIndexPath,
			storage.WithTrigramThreshold(cfg.Search.TrigramThreshold),
			storage.WithPrefilterSize(cfg.Search.TrigramPrefilterSize),
		)
	}
}

// newEmbedder builds the configured provider. A provider that cannot start
// degrades to the unavailable adapter so that lexical search keeps working.
func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	ec := cfg.Embedding
	var (
		e   embedding.Embedder
		err error
	)
	switch ec.Provider {
	case config.ProviderNone:
		return embedding.NewUnavailable(ec.Dimensions)
	case config.ProviderMock:
		e = embedding.NewMockEmbedder(ec.Dimensions)
	case config.ProviderONNX:
		var onnx *embedding.ONNXEmbedder
		onnx, err = embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:  ec.ModelPath,
			Dimensions: ec.Dimensions,
			MaxTokens:  ec.MaxTokens,
		})
		if err == nil {
			e = onnx
		}
	default:
		var oa *embedding.OpenAIEmbedder
		oa, err = embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:     ec.APIKey(),
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			BatchSize:  cfg.Ingest.BatchSize,
		}, logger)
		if err == nil {
			e = oa
		}
	}
	if err != nil {
		logger.Warn("embedding provider unavailable, semantic search disabled",
			zap.String("provider", ec.Provider), zap.Error(err))
		return embedding.NewUnavailable(ec.Dimensions)
	}
	return embedding.WithCache(e, ec.CacheSize)
}

func newAnalyzer(cfg *config.Config, logger *zap.Logger) vision.Analyzer {
	key := cfg.Embedding.APIKey()
	if key == "" {
		return nil
	}
	a, err := vision.NewOpenAIAnalyzer(vision.OpenAIConfig{
		APIKey:  key,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Vision.Model,
	}, logger)
	if err != nil {
		logger.Warn("vision analyzer unavailable", zap.Error(err))
		return nil
	}
	return a
}

func (c *Components) openObjectStore(ctx context.Context, cfg *config.Config) error {
	oc := cfg.ObjectStore
	if oc.Driver == config.ObjectStoreGCS {
		gcs, err := objectstore.NewGCSStore(ctx, oc.Bucket, objectstore.ClientOptionsFromEnv()...)
		if err != nil {
			return err
		}
		c.Objects = gcs
		return nil
	}
	base := oc.PublicBaseURL
	if base == "" {
		base = fmt.Sprintf("http://%s:%d/storage", cfg.Server.Host, cfg.Server.Port)
	}
	local, err := objectstore.NewLocalStore(oc.LocalDir, base)
	if err != nil {
		return err
	}
	c.Objects, c.Local = local, local
	return nil
}
