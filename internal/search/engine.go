package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/filter"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/storage"
)

// ErrSearchFailed is returned for any storage failure during a search.
// No partial results accompany it.
var ErrSearchFailed = errors.New("search failed")

const (
	defaultCandidateCap = 100
	defaultEmbedTimeout = 10 * time.Second
)

// Engine ranks assets for a query. It holds no per-request state and is safe
// for concurrent use.
type Engine struct {
	store        storage.Candidates
	embedder     embedding.Embedder
	assembler    *Assembler
	config       *config.SearchConfig
	candidateCap int
	embedTimeout time.Duration
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithAssembler sets the result assembler used for URL resolution.
func WithAssembler(a *Assembler) Option {
	return func(e *Engine) { e.assembler = a }
}

// WithEmbedTimeout bounds the query embedding call. On expiry the request
// falls back to lexical-only scoring.
func WithEmbedTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.embedTimeout = d
		}
	}
}

// NewEngine creates a search engine. A nil embedder behaves as unavailable.
func NewEngine(store storage.Candidates, embedder embedding.Embedder, cfg *config.SearchConfig, opts ...Option) *Engine {
	if embedder == nil {
		embedder = embedding.NewUnavailable(0)
	}
	if cfg == nil {
		cfg = &config.SearchConfig{}
	}
	e := &Engine{
		store:        store,
		embedder:     embedder,
		config:       cfg,
		candidateCap: defaultCandidateCap,
		embedTimeout: defaultEmbedTimeout,
		logger:       zap.NewNop(),
	}
	if cfg.CandidateCap > 0 {
		e.candidateCap = cfg.CandidateCap
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.assembler == nil {
		e.assembler = NewAssembler(nil, 0, e.logger)
	}
	return e
}

// SemanticAvailable reports whether the semantic-only path can run.
func (e *Engine) SemanticAvailable() bool {
	return e.embedder.Available()
}

// Search ranks assets for req. Hybrid scoring is used whenever a query
// embedding is obtained; otherwise trigram scoring runs, followed by the
// substring fallback when it finds nothing.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessRequest(req, e.config); err != nil {
		return nil, err
	}
	pred := filter.Build(req.Filters)

	var (
		ranked []*FusedResult
		mode   models.SearchMode
		err    error
	)
	if vec := e.queryEmbedding(ctx, req.Query); vec != nil {
		mode = models.ModeHybrid
		ranked, err = e.hybrid(ctx, req.Query, vec, pred)
	} else {
		mode = models.ModeLexical
		ranked, err = e.lexical(ctx, req.Query, pred)
	}
	if err != nil {
		e.logger.Error("search failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	ranked = Top(ranked, req.Limit)

	results := e.assembler.Assemble(ctx, ranked, req.Query, req.IncludeReasoning)
	return &models.SearchResponse{
		Results:        results,
		Total:          len(results),
		Query:          req.Query,
		FiltersApplied: req.Filters.Applied(),
		Mode:           mode,
		QueryTime:      time.Since(startTime).Milliseconds(),
	}, nil
}

// SemanticSearch ranks purely by cosine similarity with no filters. It
// returns embedding.ErrUnavailable when no query embedding can be obtained.
func (e *Engine) SemanticSearch(ctx context.Context, query string, limit int) (*models.SearchResponse, error) {
	startTime := time.Now()
	req := &models.SearchRequest{Query: query, Limit: limit}
	if err := ProcessRequest(req, e.config); err != nil {
		return nil, err
	}
	if !e.embedder.Available() {
		return nil, embedding.ErrUnavailable
	}
	vec, err := e.embed(ctx, req.Query)
	if err != nil {
		if !errors.Is(err, embedding.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", embedding.ErrUnavailable, err)
		}
		return nil, err
	}
	rows, err := e.store.SemanticCandidates(ctx, vec, nil, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	ranked := FromScored(rows, true)
	Sort(ranked)
	results := e.assembler.Assemble(ctx, Top(ranked, req.Limit), req.Query, false)
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		Query:     req.Query,
		Mode:      models.ModeSemantic,
		QueryTime: time.Since(startTime).Milliseconds(),
	}, nil
}

// queryEmbedding returns nil when the provider is absent or fails.
func (e *Engine) queryEmbedding(ctx context.Context, query string) []float32 {
	if !e.embedder.Available() {
		return nil
	}
	vec, err := e.embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding unavailable, using lexical search", zap.Error(err))
		return nil
	}
	return vec
}

func (e *Engine) embed(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, embedding.ErrUnavailable
	}
	return vec, nil
}

func (e *Engine) hybrid(ctx context.Context, query string, vec []float32, pred *filter.Predicate) ([]*FusedResult, error) {
	var semantic, lexical []*models.ScoredAsset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.store.SemanticCandidates(gctx, vec, pred, e.candidateCap)
		if err != nil {
			return fmt.Errorf("semantic candidates: %w", err)
		}
		semantic = rows
		return nil
	})
	g.Go(func() error {
		rows, err := e.store.TrigramCandidates(gctx, query, pred, e.candidateCap)
		if err != nil {
			return fmt.Errorf("trigram candidates: %w", err)
		}
		lexical = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	e.logger.Debug("hybrid candidates",
		zap.Int("semantic", len(semantic)),
		zap.Int("lexical", len(lexical)))
	return Fuse(semantic, lexical), nil
}

func (e *Engine) lexical(ctx context.Context, query string, pred *filter.Predicate) ([]*FusedResult, error) {
	rows, err := e.store.TrigramCandidates(ctx, query, pred, e.candidateCap)
	if err != nil {
		return nil, fmt.Errorf("trigram candidates: %w", err)
	}
	if len(rows) > 0 {
		e.logger.Debug("lexical candidates", zap.Int("trigram", len(rows)))
		ranked := FromScored(rows, false)
		Sort(ranked)
		return ranked, nil
	}

	rows, err = e.store.SubstringCandidates(ctx, query, pred, e.candidateCap)
	if err != nil {
		return nil, fmt.Errorf("substring candidates: %w", err)
	}
	e.logger.Debug("substring fallback", zap.Int("matches", len(rows)))
	// Fallback rows share one score; the store's order is kept.
	return FromScored(rows, false), nil
}
