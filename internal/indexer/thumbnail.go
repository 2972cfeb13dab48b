package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/objectstore"
)

var (
	// ErrNoObjectStore is returned when a thumbnail arrives but nothing can store it.
	ErrNoObjectStore = errors.New("no object store configured")
	// ErrInvalidImage is returned when thumbnail input cannot be decoded.
	ErrInvalidImage = errors.New("invalid image")
)

// ThumbnailMaker scales images down to JPEG thumbnails.
type ThumbnailMaker struct {
	maxDimension int
	quality      int
}

// NewThumbnailMaker defaults to 800px and quality 85.
func NewThumbnailMaker(maxDimension, quality int) *ThumbnailMaker {
	if maxDimension <= 0 {
		maxDimension = 800
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &ThumbnailMaker{maxDimension: maxDimension, quality: quality}
}

// ThumbnailSettings reports the maximum dimension and JPEG quality used for
// thumbnails.
func (idx *Indexer) ThumbnailSettings() (maxDimension, quality int) {
	return idx.thumbs.maxDimension, idx.thumbs.quality
}

// Thumbnail is an encoded thumbnail and the size of its source image.
type Thumbnail struct {
	Data         []byte
	SourceWidth  int
	SourceHeight int
}

// Make decodes r, fits it within the maximum dimension and encodes a JPEG.
// Smaller images are not enlarged.
func (m *ThumbnailMaker) Make(r io.Reader) (*Thumbnail, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	bounds := src.Bounds()
	var img image.Image = src
	if bounds.Dx() > m.maxDimension || bounds.Dy() > m.maxDimension {
		img = imaging.Fit(src, m.maxDimension, m.maxDimension, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(m.quality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return &Thumbnail{Data: buf.Bytes(), SourceWidth: bounds.Dx(), SourceHeight: bounds.Dy()}, nil
}

// AttachThumbnail generates a thumbnail from r, uploads it under
// thumbnails/{id}.jpg and records its URL. Missing dimensions are filled
// from the decoded image.
func (idx *Indexer) AttachThumbnail(ctx context.Context, id string, r io.Reader) (string, error) {
	if idx.objects == nil {
		return "", ErrNoObjectStore
	}
	a, err := idx.storage.GetAsset(ctx, id)
	if err != nil {
		return "", err
	}
	thumb, err := idx.thumbs.Make(r)
	if err != nil {
		return "", err
	}
	return idx.storeThumbnail(ctx, a, thumb)
}

func (idx *Indexer) storeThumbnail(ctx context.Context, a *models.Asset, thumb *Thumbnail) (string, error) {
	key := objectstore.ThumbnailKey(a.ID)
	url, err := idx.objects.Put(ctx, key, bytes.NewReader(thumb.Data), "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("failed to upload thumbnail: %w", err)
	}
	a.ThumbnailURL = models.Ptr(url)
	if a.Width == nil || a.Height == nil {
		a.Width, a.Height = models.Ptr(thumb.SourceWidth), models.Ptr(thumb.SourceHeight)
	}
	if err := idx.storage.UpdateAsset(ctx, a); err != nil {
		return "", err
	}
	idx.logger.Debug("thumbnail stored", zap.String("id", a.ID), zap.String("key", key))
	return url, nil
}
