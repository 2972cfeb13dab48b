package models

import "time"

// SearchMode names the scoring path a request took.
type SearchMode string

const (
	ModeHybrid   SearchMode = "hybrid"
	ModeSemantic SearchMode = "semantic"
	ModeLexical  SearchMode = "lexical"
)

// SearchResult is a single ranked asset.
type SearchResult struct {
	ID                  string  `json:"id"`
	Filename            string  `json:"filename"`
	ThumbnailURL        *string `json:"thumbnail_url"`
	FullURL             *string `json:"full_url"`
	AssetType           *string `json:"asset_type"`
	AlbumName           *string `json:"album_name"`
	MediaType           *string `json:"media_type"`
	ContentType         *string `json:"content_type"`
	Width               *int    `json:"width"`
	Height              *int    `json:"height"`
	Score               float64 `json:"score"`
	Reasoning           *string `json:"reasoning,omitempty"`
	SemanticDescription *string `json:"semantic_description"`
}

// SearchResponse is the response for a search request.
// Total is the number of results returned, not a corpus-wide match count.
type SearchResponse struct {
	Results        []*SearchResult `json:"results"`
	Total          int             `json:"total"`
	Query          string          `json:"query"`
	FiltersApplied map[string]any  `json:"filters_applied,omitempty"`
	Mode           SearchMode      `json:"mode,omitempty"`
	QueryTime      int64           `json:"query_time_ms"`
}

// ProcessingStats counts assets per lifecycle status.
type ProcessingStats struct {
	Pending    int64 `json:"pending"`
	Classified int64 `json:"classified"`
	Enriched   int64 `json:"enriched"`
	Indexed    int64 `json:"indexed"`
	Failed     int64 `json:"failed"`
}

// Set stores count under status; unknown statuses are ignored.
func (p *ProcessingStats) Set(status ProcessingStatus, count int64) {
	switch status {
	case StatusPending:
		p.Pending = count
	case StatusClassified:
		p.Classified = count
	case StatusEnriched:
		p.Enriched = count
	case StatusIndexed:
		p.Indexed = count
	case StatusFailed:
		p.Failed = count
	}
}

// SyncStatus is the overall pipeline status.
type SyncStatus struct {
	TotalAssets      int64           `json:"total_assets"`
	ByStatus         ProcessingStats `json:"by_status"`
	LastProcessed    *time.Time      `json:"last_processed"`
	EmbeddingVersion int             `json:"embedding_version"`
}

// NamedCount is one row of a distribution.
type NamedCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// EmbeddingCoverage reports how many assets carry an embedding.
type EmbeddingCoverage struct {
	WithEmbedding int64   `json:"with_embedding"`
	Total         int64   `json:"total"`
	Percentage    float64 `json:"percentage"`
}

// LibraryStats is the detailed catalog breakdown.
type LibraryStats struct {
	TotalAssets       int64             `json:"total_assets"`
	ProcessingStatus  map[string]int64  `json:"processing_status"`
	ByAssetType       map[string]int64  `json:"by_asset_type"`
	ByMediaType       map[string]int64  `json:"by_media_type"`
	TopAlbums         []NamedCount      `json:"top_albums"`
	EmbeddingCoverage EmbeddingCoverage `json:"embedding_coverage"`
}
