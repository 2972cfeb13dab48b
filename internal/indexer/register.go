package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/classifier"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/storage"
)

// RegisterRequest carries the upstream metadata for one asset.
type RegisterRequest struct {
	SourceID         string   `json:"source_id"`
	SourceType       string   `json:"source_type,omitempty"`
	Filename         string   `json:"filename"`
	ContentType      string   `json:"content_type,omitempty"`
	MediaType        string   `json:"media_type,omitempty"`
	FileSize         *int64   `json:"file_size,omitempty"`
	Width            *int     `json:"width,omitempty"`
	Height           *int     `json:"height,omitempty"`
	MD5Checksum      string   `json:"md5_checksum,omitempty"`
	AlbumPath        string   `json:"album_path,omitempty"`
	AlbumName        string   `json:"album_name,omitempty"`
	SourceTags       []string `json:"source_tags,omitempty"`
	SourceKeywords   []string `json:"source_keywords,omitempty"`
	ApprovalStatus   string   `json:"approval_status,omitempty"`
	OwnerName        string   `json:"owner_name,omitempty"`
	ThumbnailURL     string   `json:"thumbnail_url,omitempty"`
	FullURL          string   `json:"full_url,omitempty"`
	SourcePreviewURL string   `json:"source_url,omitempty"`
}

// Validate checks the required fields.
func (r *RegisterRequest) Validate() error {
	if r.SourceID == "" {
		return errors.New("source_id is required")
	}
	if r.Filename == "" {
		return errors.New("filename is required")
	}
	return nil
}

// RegisterResult reports the stored asset.
type RegisterResult struct {
	ID        string                  `json:"id"`
	Status    models.ProcessingStatus `json:"status"`
	AssetType string                  `json:"asset_type"`
	MediaType string                  `json:"media_type"`
	Created   bool                    `json:"created"`
	Message   string                  `json:"message"`
}

const defaultSourceType = "upload"

// Register classifies an asset and upserts it by source ID. A re-registered
// asset keeps its enrichment, its status and its embedding.
func (idx *Indexer) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = classifier.InferMediaType(req.ContentType, req.Filename)
	}
	albumName := models.NonEmpty(req.AlbumName)
	if albumName == nil {
		albumName = classifier.AlbumName(req.AlbumPath)
	}
	class := classifier.Classify(req.Filename, req.AlbumPath)
	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = defaultSourceType
	}

	a := &models.Asset{
		SourceID:         req.SourceID,
		SourceType:       models.Ptr(sourceType),
		Filename:         req.Filename,
		ContentType:      models.NonEmpty(req.ContentType),
		MediaType:        models.Ptr(mediaType),
		FileSize:         req.FileSize,
		Width:            req.Width,
		Height:           req.Height,
		MD5Checksum:      models.NonEmpty(req.MD5Checksum),
		AlbumPath:        models.NonEmpty(req.AlbumPath),
		AlbumName:        albumName,
		SourceTags:       req.SourceTags,
		SourceKeywords:   req.SourceKeywords,
		ApprovalStatus:   models.NonEmpty(req.ApprovalStatus),
		OwnerName:        models.NonEmpty(req.OwnerName),
		ThumbnailURL:     models.NonEmpty(req.ThumbnailURL),
		FullURL:          models.NonEmpty(req.FullURL),
		SourcePreviewURL: models.NonEmpty(req.SourcePreviewURL),
		AssetType:        models.Ptr(class.AssetType),
		ProcessingStatus: models.StatusClassified,
	}

	existing, err := idx.storage.GetAssetBySourceID(ctx, req.SourceID)
	created := errors.Is(err, storage.ErrNotFound)
	if err != nil && !created {
		return nil, fmt.Errorf("failed to look up %s: %w", req.SourceID, err)
	}
	if existing != nil {
		carryEnrichment(a, existing)
	}
	a.SearchText = models.Ptr(BuildSearchText(a))

	if err := idx.storage.UpsertAsset(ctx, a); err != nil {
		return nil, err
	}
	status := a.ProcessingStatus
	if existing != nil {
		status = existing.ProcessingStatus
	}
	idx.logger.Debug("asset registered",
		zap.String("id", a.ID),
		zap.String("source_id", a.SourceID),
		zap.String("asset_type", class.AssetType),
		zap.String("rule", string(class.Rule)),
		zap.Bool("created", created))

	return &RegisterResult{
		ID:        a.ID,
		Status:    status,
		AssetType: class.AssetType,
		MediaType: mediaType,
		Created:   created,
		Message:   fmt.Sprintf("Asset registered as %s", class.AssetType),
	}, nil
}

// carryEnrichment copies the analysis output of a stored asset onto a fresh
// registration so its search text stays complete.
func carryEnrichment(a, existing *models.Asset) {
	sections, old := a.Sections(), existing.Sections()
	for i := range sections {
		*sections[i] = *old[i]
	}
	a.AutoTags = existing.AutoTags
	a.SemanticDescription = existing.SemanticDescription
	a.SearchQueries = existing.SearchQueries
}

// Complete rebuilds an asset's search text from its current metadata and
// queues it for embedding.
func (idx *Indexer) Complete(ctx context.Context, id string) (*RegisterResult, error) {
	a, err := idx.storage.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := idx.complete(ctx, a); err != nil {
		return nil, err
	}
	return &RegisterResult{
		ID:        a.ID,
		Status:    a.ProcessingStatus,
		AssetType: models.Deref(a.AssetType),
		MediaType: models.Deref(a.MediaType),
		Message:   "Ingestion complete, asset queued for embedding",
	}, nil
}

func (idx *Indexer) complete(ctx context.Context, a *models.Asset) error {
	if a.AssetType == nil {
		a.AssetType = models.Ptr(classifier.Classify(a.Filename, models.Deref(a.AlbumPath)).AssetType)
	}
	a.SearchText = models.Ptr(BuildSearchText(a))
	if a.AnalyzedAt != nil {
		a.ProcessingStatus = models.StatusEnriched
	} else {
		a.ProcessingStatus = models.StatusClassified
	}
	a.ProcessingError = nil
	return idx.storage.UpdateAsset(ctx, a)
}

// completePending moves every pending asset into the embedding queue.
func (idx *Indexer) completePending(ctx context.Context) (int, error) {
	n := 0
	for {
		assets, err := idx.storage.AssetsByStatus(ctx, []models.ProcessingStatus{models.StatusPending}, idx.config.BatchSize)
		if err != nil {
			return n, err
		}
		if len(assets) == 0 {
			return n, nil
		}
		for _, a := range assets {
			if err := idx.complete(ctx, a); err != nil {
				return n, err
			}
			n++
		}
	}
}
