// Package models defines the asset record, search request/response shapes, and catalog statistics.
package models

import "time"

// ProcessingStatus is an asset's position in the ingestion lifecycle.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusClassified ProcessingStatus = "classified"
	StatusEnriched   ProcessingStatus = "enriched"
	StatusIndexed    ProcessingStatus = "indexed"
	StatusFailed     ProcessingStatus = "failed"
)

// ProcessingStatuses lists the lifecycle states in order, failed last.
var ProcessingStatuses = []ProcessingStatus{
	StatusPending, StatusClassified, StatusEnriched, StatusIndexed, StatusFailed,
}

// Valid reports whether s is a known status.
func (s ProcessingStatus) Valid() bool {
	for _, known := range ProcessingStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Asset types assigned by the classifier.
const (
	AssetTypeTemplate    = "template"
	AssetTypeInspiration = "inspiration"
)

// SectionColumns names the semi-structured metadata columns, in the order
// returned by Asset.Sections.
var SectionColumns = []string{
	"scene", "people", "objects", "text_content", "hardcoded_elements",
	"composition", "colors", "style", "quality", "brand", "mood",
	"editorial", "video_metadata",
}

// Asset is a catalog record. Nullable columns are pointers; nested metadata
// sections are Documents.
type Asset struct {
	ID               string   `json:"id"`
	SourceID         string   `json:"source_id"`
	SourceType       *string  `json:"source_type"`
	Filename         string   `json:"filename"`
	ContentType      *string  `json:"content_type"`
	MediaType        *string  `json:"media_type"`
	FileSize         *int64   `json:"file_size"`
	Width            *int     `json:"width"`
	Height           *int     `json:"height"`
	MD5Checksum      *string  `json:"md5_checksum"`
	AlbumPath        *string  `json:"album_path"`
	AlbumName        *string  `json:"album_name"`
	SourceTags       []string `json:"source_tags"`
	SourceKeywords   []string `json:"source_keywords"`
	ApprovalStatus   *string  `json:"approval_status"`
	OwnerName        *string  `json:"owner_name"`
	ThumbnailURL     *string  `json:"thumbnail_url"`
	FullURL          *string  `json:"full_url"`
	SourcePreviewURL *string  `json:"source_preview_url"`

	AssetType        *string `json:"asset_type"`
	ReusabilityScore *int    `json:"reusability_score"`

	Scene             Document `json:"scene"`
	People            Document `json:"people"`
	Objects           Document `json:"objects"`
	TextContent       Document `json:"text_content"`
	HardcodedElements Document `json:"hardcoded_elements"`
	Composition       Document `json:"composition"`
	Colors            Document `json:"colors"`
	Style             Document `json:"style"`
	Quality           Document `json:"quality"`
	Brand             Document `json:"brand"`
	Mood              Document `json:"mood"`
	Editorial         Document `json:"editorial"`
	VideoMetadata     Document `json:"video_metadata"`

	AutoTags            []string `json:"auto_tags"`
	SemanticDescription *string  `json:"semantic_description"`
	SearchQueries       []string `json:"search_queries"`
	SearchText          *string  `json:"-"`

	Embedding        []float32 `json:"-"`
	EmbeddingVersion *int      `json:"embedding_version"`

	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ProcessingError  *string          `json:"processing_error,omitempty"`
	AnalyzedAt       *time.Time       `json:"analyzed_at"`
	IndexedAt        *time.Time       `json:"indexed_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Sections returns pointers to the metadata sections in SectionColumns order.
func (a *Asset) Sections() []*Document {
	return []*Document{
		&a.Scene, &a.People, &a.Objects, &a.TextContent, &a.HardcodedElements,
		&a.Composition, &a.Colors, &a.Style, &a.Quality, &a.Brand, &a.Mood,
		&a.Editorial, &a.VideoMetadata,
	}
}

// Section returns the metadata section stored under column, or nil.
func (a *Asset) Section(column string) Document {
	for i, name := range SectionColumns {
		if name == column {
			return *a.Sections()[i]
		}
	}
	return nil
}

// ScoredAsset is a candidate row returned by a scoring query.
type ScoredAsset struct {
	Asset *Asset
	Score float64
}

// AssetSummary is the list-view projection of an asset.
type AssetSummary struct {
	ID               string           `json:"id"`
	Filename         string           `json:"filename"`
	ThumbnailURL     *string          `json:"thumbnail_url"`
	AssetType        *string          `json:"asset_type"`
	AlbumName        *string          `json:"album_name"`
	MediaType        *string          `json:"media_type"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
}

// Summary projects a onto AssetSummary.
func (a *Asset) Summary() *AssetSummary {
	return &AssetSummary{
		ID:               a.ID,
		Filename:         a.Filename,
		ThumbnailURL:     a.ThumbnailURL,
		AssetType:        a.AssetType,
		AlbumName:        a.AlbumName,
		MediaType:        a.MediaType,
		ProcessingStatus: a.ProcessingStatus,
	}
}

// PendingAsset is a row of the pending-work queue.
type PendingAsset struct {
	ID               string           `json:"id"`
	Filename         string           `json:"filename"`
	MediaType        *string          `json:"media_type"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Album groups assets sharing an album name and path.
type Album struct {
	Name         string  `json:"name"`
	Path         *string `json:"path"`
	AssetCount   int64   `json:"asset_count"`
	HasTemplates bool    `json:"has_templates"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p, or the zero value when p is nil.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// NonEmpty returns nil for "" and a pointer to s otherwise.
func NonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
