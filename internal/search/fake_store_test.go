package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kura/internal/filter"
	"github.com/hyperjump/kura/internal/lexical"
	"github.com/hyperjump/kura/internal/models"
)

// fakeStore answers candidate queries from fixed per-asset scores and
// applies predicates in memory.
type fakeStore struct {
	mu       sync.Mutex
	assets   []*models.Asset
	semantic map[string]float64
	trigram  map[string]float64
	err      error
	calls    map[string]int
	limits   map[string]int
}

func newFakeStore(assets ...*models.Asset) *fakeStore {
	return &fakeStore{
		assets:   assets,
		semantic: map[string]float64{},
		trigram:  map[string]float64{},
		calls:    map[string]int{},
		limits:   map[string]int{},
	}
}

func (f *fakeStore) record(name string, limit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	f.limits[name] = limit
}

func (f *fakeStore) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeStore) scored(scores map[string]float64, pred *filter.Predicate, limit int) []*models.ScoredAsset {
	var out []*models.ScoredAsset
	for _, a := range f.assets {
		s, ok := scores[a.ID]
		if !ok || !pred.Match(a) {
			continue
		}
		out = append(out, &models.ScoredAsset{Asset: a, Score: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Asset.ID < out[j].Asset.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeStore) SemanticCandidates(_ context.Context, _ []float32, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error) {
	f.record("semantic", limit)
	if f.err != nil {
		return nil, f.err
	}
	return f.scored(f.semantic, pred, limit), nil
}

func (f *fakeStore) TrigramCandidates(_ context.Context, _ string, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error) {
	f.record("trigram", limit)
	if f.err != nil {
		return nil, f.err
	}
	return f.scored(f.trigram, pred, limit), nil
}

func (f *fakeStore) SubstringCandidates(_ context.Context, query string, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error) {
	f.record("substring", limit)
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.ScoredAsset
	for _, a := range f.assets {
		if pred.Match(a) && substringMatch(a, query) {
			out = append(out, &models.ScoredAsset{Asset: a, Score: lexical.FallbackScore})
		}
	}
	sortFallback(out, query)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func asset(id, filename string, age time.Duration) *models.Asset {
	return &models.Asset{
		ID:               id,
		Filename:         filename,
		SearchText:       models.Ptr(filename),
		ProcessingStatus: models.StatusIndexed,
		CreatedAt:        baseTime.Add(-age),
	}
}

// stubEmbedder is an available embedder with a scripted outcome.
type stubEmbedder struct {
	err   error
	block bool
	mu    sync.Mutex
	calls int
}

func (s *stubEmbedder) Available() bool { return true }

func (s *stubEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }

func (s *stubEmbedder) Close() error { return nil }

// substringMatch mirrors the storage fallback WHERE clause: the asset needs
// search text, and the query must occur in it or in the filename.
func substringMatch(a *models.Asset, query string) bool {
	if a.SearchText == nil {
		return false
	}
	return containsFold(*a.SearchText, query) || containsFold(a.Filename, query)
}

// sortFallback mirrors the storage fallback ORDER BY: filename matches
// first, then newest first, then by ID.
func sortFallback(rows []*models.ScoredAsset, query string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Asset, rows[j].Asset
		fa, fb := containsFold(a.Filename, query), containsFold(b.Filename, query)
		if fa != fb {
			return fa
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
