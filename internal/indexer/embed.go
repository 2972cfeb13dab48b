package indexer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/models"
)

// embeddable are the statuses EmbedPending picks up.
var embeddable = []models.ProcessingStatus{models.StatusClassified, models.StatusEnriched}

// EmbedReport summarizes an embedding pass.
type EmbedReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Batches   int `json:"batches"`
	Version   int `json:"embedding_version"`
}

// EmbedPending completes pending assets, then embeds every classified or
// enriched asset in batches on the worker pool. A failed batch marks its
// assets failed and the pass goes on.
func (idx *Indexer) EmbedPending(ctx context.Context) (*EmbedReport, error) {
	if !idx.embedder.Available() {
		return nil, embedding.ErrUnavailable
	}
	completed, err := idx.completePending(ctx)
	if err != nil {
		return nil, err
	}
	if completed > 0 {
		idx.logger.Debug("pending assets queued", zap.Int("count", completed))
	}
	version, err := idx.storage.TargetEmbeddingVersion(ctx)
	if err != nil {
		return nil, err
	}
	report := &EmbedReport{Version: version}
	round := idx.config.BatchSize * idx.config.Workers

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		assets, err := idx.storage.AssetsByStatus(ctx, embeddable, round)
		if err != nil {
			return report, err
		}
		if len(assets) == 0 {
			break
		}
		processed, failed, batches, err := idx.embedRound(ctx, assets, version)
		report.Processed += processed
		report.Failed += failed
		report.Batches += batches
		if err != nil {
			return report, err
		}
		if processed+failed == 0 {
			return report, fmt.Errorf("embedding pass made no progress")
		}
	}
	idx.logger.Info("embedding pass complete",
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Int("version", version))
	return report, nil
}

func (idx *Indexer) embedRound(ctx context.Context, assets []*models.Asset, version int) (processed, failed, batches int, err error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for start := 0; start < len(assets); start += idx.config.BatchSize {
		end := min(start+idx.config.BatchSize, len(assets))
		batch := assets[start:end]
		batches++
		wg.Add(1)
		submitErr := idx.pool.Submit(func() {
			defer wg.Done()
			ok, bad, err := idx.embedBatch(ctx, batch, version)
			mu.Lock()
			defer mu.Unlock()
			processed += ok
			failed += bad
			if err != nil && firstErr == nil {
				firstErr = err
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to submit batch: %w", submitErr)
			}
			mu.Unlock()
			break
		}
	}
	wg.Wait()
	return processed, failed, batches, firstErr
}

// embedBatch returns a non-nil error only for storage failures.
func (idx *Indexer) embedBatch(ctx context.Context, batch []*models.Asset, version int) (ok, bad int, err error) {
	texts := make([]string, len(batch))
	for i, a := range batch {
		text := BuildSearchText(a)
		if models.Deref(a.SearchText) != text {
			a.SearchText = models.Ptr(text)
			if err := idx.storage.UpdateAsset(ctx, a); err != nil {
				return 0, 0, err
			}
		}
		texts[i] = idx.embeddingInput(a)
	}

	vectors, embedErr := idx.embedder.EmbedBatch(ctx, texts)
	if embedErr == nil && len(vectors) != len(batch) {
		embedErr = fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(batch))
	}
	if embedErr != nil {
		idx.logger.Warn("embedding batch failed", zap.Int("size", len(batch)), zap.Error(embedErr))
		for _, a := range batch {
			if err := idx.storage.MarkFailed(ctx, a.ID, embedErr.Error()); err != nil {
				return 0, bad, err
			}
			bad++
		}
		return 0, bad, nil
	}

	at := idx.now()
	for i, a := range batch {
		if err := idx.storage.SetEmbedding(ctx, a.ID, vectors[i], version, at); err != nil {
			return ok, 0, err
		}
		ok++
	}
	return ok, 0, nil
}

// RetryFailed moves failed assets back to pending.
func (idx *Indexer) RetryFailed(ctx context.Context) (int64, error) {
	n, err := idx.storage.RetryFailed(ctx)
	if err != nil {
		return 0, err
	}
	idx.logger.Info("failed assets reset", zap.Int64("count", n))
	return n, nil
}

// ReindexAll marks every indexed asset for re-embedding under a new
// embedding version and returns the count and that version.
func (idx *Indexer) ReindexAll(ctx context.Context) (int64, int, error) {
	current, err := idx.storage.MaxEmbeddingVersion(ctx)
	if err != nil {
		return 0, 0, err
	}
	next := current + 1
	if err := idx.storage.SetTargetEmbeddingVersion(ctx, next); err != nil {
		return 0, 0, err
	}
	n, err := idx.storage.ResetIndexed(ctx)
	if err != nil {
		return 0, 0, err
	}
	idx.logger.Info("assets marked for reindex", zap.Int64("count", n), zap.Int("version", next))
	return n, next, nil
}
