package indexer

import (
	"context"

	"github.com/hyperjump/kura/internal/models"
)

const defaultPendingLimit = 50

// Status returns counts per lifecycle status and the current embedding version.
func (idx *Indexer) Status(ctx context.Context) (*models.SyncStatus, error) {
	return idx.storage.SyncStatus(ctx)
}

// Stats returns the catalog breakdown.
func (idx *Indexer) Stats(ctx context.Context) (*models.LibraryStats, error) {
	return idx.storage.LibraryStats(ctx)
}

// Pending lists assets waiting for work, pending first.
func (idx *Indexer) Pending(ctx context.Context, limit int) ([]*models.PendingAsset, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	return idx.storage.PendingAssets(ctx, limit)
}
