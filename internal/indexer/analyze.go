package indexer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/classifier"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/objectstore"
	"github.com/hyperjump/kura/internal/vision"
)

const maxImageBytes = 20 << 20

// Analyze runs the vision analyzer on an asset's image, merges the result
// and marks the asset enriched. Analyzer failures mark the asset failed.
func (idx *Indexer) Analyze(ctx context.Context, id string) (*models.Asset, error) {
	if idx.analyzer == nil {
		return nil, vision.ErrUnavailable
	}
	a, err := idx.storage.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	img, err := idx.imageFor(ctx, a)
	if err != nil {
		return nil, err
	}

	actx := ctx
	if idx.analyzeTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, idx.analyzeTimeout)
		defer cancel()
	}
	an, err := idx.analyzer.Analyze(actx, img)
	if err != nil {
		idx.logger.Warn("vision analysis failed", zap.String("id", a.ID), zap.Error(err))
		if markErr := idx.storage.MarkFailed(ctx, a.ID, err.Error()); markErr != nil {
			return nil, markErr
		}
		return nil, fmt.Errorf("vision analysis failed: %w", err)
	}

	an.Apply(a, idx.now())
	a.SearchText = models.Ptr(BuildSearchText(a))
	if err := idx.storage.UpdateAsset(ctx, a); err != nil {
		return nil, err
	}
	idx.logger.Debug("asset analyzed", zap.String("id", a.ID), zap.Int("tags", len(a.AutoTags)))
	return a, nil
}

// imageFor prefers the stored thumbnail bytes, then a fetchable URL.
func (idx *Indexer) imageFor(ctx context.Context, a *models.Asset) (vision.Image, error) {
	img := vision.Image{IsVideo: models.Deref(a.MediaType) == classifier.MediaVideo}
	thumb := models.Deref(a.ThumbnailURL)

	if idx.objects != nil {
		if key, ok := objectstore.KeyFromURL(thumb); ok {
			data, err := idx.readObject(ctx, key)
			if err == nil {
				img.Data = data
				img.ContentType = objectstore.ContentTypeForKey(key)
				return img, nil
			}
			idx.logger.Debug("stored thumbnail unreadable", zap.String("key", key), zap.Error(err))
		}
	}

	for _, u := range []string{models.Deref(a.SourcePreviewURL), thumb} {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			img.URL = u
			return img, nil
		}
	}
	return img, ErrNoImage
}

func (idx *Indexer) readObject(ctx context.Context, key string) ([]byte, error) {
	rc, err := idx.objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxImageBytes))
}
