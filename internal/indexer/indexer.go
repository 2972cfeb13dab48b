// Package indexer registers assets, builds their search text and keeps
// their embeddings current.
package indexer

import (
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/objectstore"
	"github.com/hyperjump/kura/internal/storage"
	"github.com/hyperjump/kura/internal/vision"
)

// ErrNoImage is returned by Analyze when an asset has no image to look at.
var ErrNoImage = errors.New("asset has no thumbnail or preview image")

// Indexer runs the ingestion and enrichment pipeline against the catalog.
type Indexer struct {
	storage  storage.Storage
	embedder embedding.Embedder
	analyzer vision.Analyzer
	objects  objectstore.Store
	thumbs   *ThumbnailMaker
	config   config.IngestConfig
	pool     *ants.Pool
	urlTTL   time.Duration
	now      func() time.Time
	logger   *zap.Logger

	analyzeTimeout time.Duration
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the indexer logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithAnalyzer enables vision analysis. Each call is bounded by timeout
// when it is positive.
func WithAnalyzer(a vision.Analyzer, timeout time.Duration) IndexerOption {
	return func(idx *Indexer) {
		idx.analyzer = a
		idx.analyzeTimeout = timeout
	}
}

// WithObjectStore sets where thumbnails are written and how they are
// resolved for analysis.
func WithObjectStore(s objectstore.Store, urlTTL time.Duration) IndexerOption {
	return func(idx *Indexer) {
		idx.objects = s
		idx.urlTTL = urlTTL
	}
}

// NewIndexer creates an indexer. Call Close to release its worker pool.
func NewIndexer(store storage.Storage, embedder embedding.Embedder, cfg config.IngestConfig, opts ...IndexerOption) (*Indexer, error) {
	if embedder == nil {
		embedder = embedding.NewUnavailable(0)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	idx := &Indexer{
		storage:  store,
		embedder: embedder,
		thumbs:   NewThumbnailMaker(cfg.ThumbnailMaxDimension, cfg.ThumbnailQuality),
		config:   cfg,
		pool:     pool,
		urlTTL:   objectstore.DefaultURLTTL,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// HasAnalyzer reports whether Analyze can run.
func (idx *Indexer) HasAnalyzer() bool {
	return idx.analyzer != nil
}

// Close releases the worker pool.
func (idx *Indexer) Close() {
	idx.pool.Release()
}
