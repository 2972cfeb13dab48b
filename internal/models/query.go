package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyQuery is returned when a search request has no query text.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrInvalidFilter is returned when a filter value is out of range.
	ErrInvalidFilter = errors.New("invalid filter")
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// SearchFilters is an optional conjunction of structured predicates.
// A nil field never restricts results.
type SearchFilters struct {
	AssetType           *string `json:"asset_type,omitempty"`
	Album               *string `json:"album,omitempty"`
	MediaType           *string `json:"media_type,omitempty"`
	ContentType         *string `json:"content_type,omitempty"`
	MinReusability      *int    `json:"min_reusability,omitempty"`
	HasTextOverlaySpace *bool   `json:"has_text_overlay_space,omitempty"`
	MinEnergy           *int    `json:"min_energy,omitempty"`
	NoHardcodedDate     *bool   `json:"no_hardcoded_date,omitempty"`
	NoHardcodedLocation *bool   `json:"no_hardcoded_location,omitempty"`
}

// Validate checks the numeric ranges (reusability 1..5, energy 1..10).
func (f *SearchFilters) Validate() error {
	if f == nil {
		return nil
	}
	if f.MinReusability != nil && (*f.MinReusability < 1 || *f.MinReusability > 5) {
		return fmt.Errorf("%w: min_reusability must be between 1 and 5", ErrInvalidFilter)
	}
	if f.MinEnergy != nil && (*f.MinEnergy < 1 || *f.MinEnergy > 10) {
		return fmt.Errorf("%w: min_energy must be between 1 and 10", ErrInvalidFilter)
	}
	return nil
}

// Active reports whether at least one field would restrict results.
// Empty strings, zero thresholds and false flags are treated as unset.
func (f *SearchFilters) Active() bool {
	if f == nil {
		return false
	}
	return setString(f.AssetType) || setString(f.Album) || setString(f.MediaType) ||
		setString(f.ContentType) || setInt(f.MinReusability) || setBool(f.HasTextOverlaySpace) ||
		setInt(f.MinEnergy) || setBool(f.NoHardcodedDate) || setBool(f.NoHardcodedLocation)
}

// Applied returns the non-nil fields keyed by their JSON names, or nil when
// no field is set.
func (f *SearchFilters) Applied() map[string]any {
	if f == nil {
		return nil
	}
	out := make(map[string]any)
	if f.AssetType != nil {
		out["asset_type"] = *f.AssetType
	}
	if f.Album != nil {
		out["album"] = *f.Album
	}
	if f.MediaType != nil {
		out["media_type"] = *f.MediaType
	}
	if f.ContentType != nil {
		out["content_type"] = *f.ContentType
	}
	if f.MinReusability != nil {
		out["min_reusability"] = *f.MinReusability
	}
	if f.HasTextOverlaySpace != nil {
		out["has_text_overlay_space"] = *f.HasTextOverlaySpace
	}
	if f.MinEnergy != nil {
		out["min_energy"] = *f.MinEnergy
	}
	if f.NoHardcodedDate != nil {
		out["no_hardcoded_date"] = *f.NoHardcodedDate
	}
	if f.NoHardcodedLocation != nil {
		out["no_hardcoded_location"] = *f.NoHardcodedLocation
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func setString(p *string) bool { return p != nil && *p != "" }
func setInt(p *int) bool       { return p != nil && *p != 0 }
func setBool(p *bool) bool     { return p != nil && *p }

// SearchRequest is the public search request.
type SearchRequest struct {
	Query            string         `json:"query"`
	Filters          *SearchFilters `json:"filters,omitempty"`
	Limit            int            `json:"limit,omitempty"`
	IncludeReasoning bool           `json:"include_reasoning,omitempty"`
}

// Validate rejects empty queries, limits outside 1..100 and bad filters. A
// zero limit defaults to 20.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return ErrEmptyQuery
	}
	if r.Limit < 0 || r.Limit > MaxSearchLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxSearchLimit)
	}
	if r.Limit == 0 {
		r.Limit = DefaultSearchLimit
	}
	return r.Filters.Validate()
}
