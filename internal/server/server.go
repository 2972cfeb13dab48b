// Package server provides the HTTP API for kura.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/indexer"
	"github.com/hyperjump/kura/internal/search"
	"github.com/hyperjump/kura/internal/storage"
)

const defaultRequestTimeout = 60 * time.Second

// WatchService manages drop-folder roots at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the kura API.
type Server struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	storage storage.Storage
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server

	objects http.Handler

	watch      WatchService
	configPath string
	appConfig  *config.Config
	configMu   sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithObjectHandler serves locally stored objects under /storage/.
func WithObjectHandler(h http.Handler) Option {
	return func(s *Server) { s.objects = h }
}

// WithWatch enables the drop-folder endpoints.
func WithWatch(w WatchService) Option {
	return func(s *Server) { s.watch = w }
}

// WithConfig gives the server the loaded configuration. Status reports
// disk usage from its paths, and when path is set watch directory changes
// are saved there.
func WithConfig(path string, cfg *config.Config) Option {
	return func(s *Server) {
		s.configPath = path
		s.appConfig = cfg
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	storage storage.Storage,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		indexer: idx,
		storage: storage,
		config:  cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/search/semantic", s.handleSemanticSearch)
		r.Post("/browse/search", s.handleSearch)

		r.Get("/assets", s.handleListAssets)
		r.Get("/assets/{id}", s.handleGetAsset)
		r.Post("/assets/{id}/analyze", s.handleAnalyzeAsset)

		r.Get("/albums", s.handleListAlbums)
		r.Get("/albums/{name}/assets", s.handleAlbumAssets)

		r.Get("/ingest/spec", s.handleIngestSpec)
		r.Post("/ingest/register", s.handleRegister)
		r.Post("/ingest/batch-register", s.handleBatchRegister)
		r.Put("/ingest/thumbnail/{id}", s.handleThumbnail)
		r.Post("/ingest/complete/{id}", s.handleComplete)

		r.Get("/sync/status", s.handleSyncStatus)
		r.Get("/sync/pending", s.handleSyncPending)
		r.Post("/sync/retry-failed", s.handleRetryFailed)
		r.Post("/sync/reindex-all", s.handleReindexAll)
		r.Post("/sync/embed", s.handleEmbed)
		r.Get("/sync/stats", s.handleSyncStats)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})

	if s.objects != nil {
		r.Handle("/storage/*", http.StripPrefix("/storage", s.objects))
	}
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
