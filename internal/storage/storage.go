// Package storage persists the asset catalog and answers the three candidate
// queries the search engine blends: semantic, trigram and substring.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/kura/internal/filter"
	"github.com/hyperjump/kura/internal/models"
)

// ErrNotFound is returned when an asset lookup matches no row.
var ErrNotFound = errors.New("not found")

// Candidates answers the scoring sub-queries. Every method applies pred,
// caps the result at limit and returns rows best first.
type Candidates interface {
	// SemanticCandidates scores assets with an embedding by cosine similarity to vec.
	SemanticCandidates(ctx context.Context, vec []float32, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error)
	// TrigramCandidates scores assets whose search text is trigram-similar to query.
	TrigramCandidates(ctx context.Context, query string, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error)
	// SubstringCandidates returns case-insensitive containment matches, filename
	// matches first, each scored lexical.FallbackScore.
	SubstringCandidates(ctx context.Context, query string, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error)
}

// AssetQuery narrows ListAssets. Empty fields do not restrict.
type AssetQuery struct {
	Album            string
	AssetType        string
	MediaType        string
	ProcessingStatus models.ProcessingStatus
	Limit            int
	Offset           int
}

// Storage is the full catalog store.
type Storage interface {
	Candidates

	// UpsertAsset inserts a by source_id or refreshes the registration fields of
	// the existing row. a.ID is set to the stored ID.
	UpsertAsset(ctx context.Context, a *models.Asset) error
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
	GetAssetBySourceID(ctx context.Context, sourceID string) (*models.Asset, error)
	// UpdateAsset writes every mutable column of a except the embedding.
	UpdateAsset(ctx context.Context, a *models.Asset) error
	DeleteAsset(ctx context.Context, id string) error
	ListAssets(ctx context.Context, q AssetQuery) ([]*models.Asset, error)
	ListAlbumAssets(ctx context.Context, album string, limit, offset int) ([]*models.Asset, error)
	ListAlbums(ctx context.Context) ([]*models.Album, error)

	// AssetsByStatus returns up to limit assets in any of statuses, oldest first.
	AssetsByStatus(ctx context.Context, statuses []models.ProcessingStatus, limit int) ([]*models.Asset, error)
	// SetEmbedding stores vec and version and marks the asset indexed.
	SetEmbedding(ctx context.Context, id string, vec []float32, version int, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	// RetryFailed moves failed assets back to pending and clears their errors.
	RetryFailed(ctx context.Context) (int64, error)
	// ResetIndexed moves indexed assets back to enriched.
	ResetIndexed(ctx context.Context) (int64, error)
	MaxEmbeddingVersion(ctx context.Context) (int, error)
	// TargetEmbeddingVersion is the version the next embedding pass writes.
	TargetEmbeddingVersion(ctx context.Context) (int, error)
	SetTargetEmbeddingVersion(ctx context.Context, version int) error

	PendingAssets(ctx context.Context, limit int) ([]*models.PendingAsset, error)
	SyncStatus(ctx context.Context) (*models.SyncStatus, error)
	LibraryStats(ctx context.Context) (*models.LibraryStats, error)

	Close() error
}
