package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/objectstore"
)

// Assembler maps ranked assets to the public result shape.
type Assembler struct {
	store  objectstore.Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewAssembler returns an assembler that resolves thumbnail keys through
// store. A nil store passes stored URLs through.
func NewAssembler(store objectstore.Store, ttl time.Duration, logger *zap.Logger) *Assembler {
	if ttl <= 0 {
		ttl = objectstore.DefaultURLTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{store: store, ttl: ttl, logger: logger}
}

// Assemble builds results in ranked order. Reasoning is attached when query
// is non-empty and reasoning is true.
func (a *Assembler) Assemble(ctx context.Context, ranked []*FusedResult, query string, reasoning bool) []*models.SearchResult {
	out := make([]*models.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		asset := r.Asset
		res := &models.SearchResult{
			ID:                  asset.ID,
			Filename:            asset.Filename,
			ThumbnailURL:        a.ResolveURL(ctx, asset.ThumbnailURL),
			FullURL:             asset.FullURL,
			AssetType:           asset.AssetType,
			AlbumName:           asset.AlbumName,
			MediaType:           asset.MediaType,
			ContentType:         asset.ContentType,
			Width:               asset.Width,
			Height:              asset.Height,
			Score:               r.Score,
			SemanticDescription: asset.SemanticDescription,
		}
		if reasoning {
			res.Reasoning = models.Ptr(Explain(query, asset))
		}
		out = append(out, res)
	}
	return out
}

// ResolveURL swaps a stored thumbnail URL for a time-limited one. On any
// failure the stored URL is returned unchanged.
func (a *Assembler) ResolveURL(ctx context.Context, stored *string) *string {
	if a == nil || a.store == nil || stored == nil || *stored == "" {
		return stored
	}
	key, ok := objectstore.KeyFromURL(*stored)
	if !ok {
		return stored
	}
	url, err := a.store.SignedURL(ctx, key, a.ttl)
	if err != nil {
		a.logger.Debug("thumbnail url resolution failed", zap.String("key", key), zap.Error(err))
		return stored
	}
	return &url
}
