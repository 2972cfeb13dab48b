// Package filter turns a search filter set into a conjunction of typed
// predicate clauses that can be rendered for either storage dialect or
// evaluated in memory.
package filter

import "github.com/hyperjump/kura/internal/models"

// Kind is the comparison a Clause performs.
type Kind int

const (
	// Equal compares a scalar column with a value.
	Equal Kind = iota
	// AtLeast requires a scalar column to be >= value.
	AtLeast
	// NestedTrue requires a nested JSON field to be boolean true.
	NestedTrue
	// NestedNotTrue requires a nested JSON field to be false, missing, or null.
	NestedNotTrue
	// NestedAtLeast requires a nested JSON field, read as an integer, to be >= value.
	NestedAtLeast
)

// Columns that clauses may reference. Values never reach SQL text; only
// these identifiers do.
const (
	ColumnAssetType         = "asset_type"
	ColumnAlbumName         = "album_name"
	ColumnMediaType         = "media_type"
	ColumnContentType       = "content_type"
	ColumnReusabilityScore  = "reusability_score"
	ColumnComposition       = "composition"
	ColumnMood              = "mood"
	ColumnHardcodedElements = "hardcoded_elements"
)

// Clause is one conjunct.
type Clause struct {
	Kind   Kind
	Column string
	Path   []string
	Value  any
}

// Predicate is a conjunction of clauses. The zero value matches everything.
type Predicate struct {
	Clauses []Clause
}

// Empty reports whether the predicate has no clauses.
func (p *Predicate) Empty() bool {
	return p == nil || len(p.Clauses) == 0
}

// Build returns the predicate for f. Unset fields, empty strings, zero
// thresholds and false flags contribute no clause.
func Build(f *models.SearchFilters) *Predicate {
	p := &Predicate{}
	if f == nil {
		return p
	}
	p.equal(ColumnAssetType, f.AssetType)
	p.equal(ColumnAlbumName, f.Album)
	p.equal(ColumnMediaType, f.MediaType)
	p.equal(ColumnContentType, f.ContentType)
	if f.MinReusability != nil && *f.MinReusability != 0 {
		p.add(Clause{Kind: AtLeast, Column: ColumnReusabilityScore, Value: *f.MinReusability})
	}
	if f.HasTextOverlaySpace != nil && *f.HasTextOverlaySpace {
		p.add(Clause{Kind: NestedTrue, Column: ColumnComposition, Path: []string{"negative_space", "suitable_for_text_overlay"}})
	}
	if f.MinEnergy != nil && *f.MinEnergy != 0 {
		p.add(Clause{Kind: NestedAtLeast, Column: ColumnMood, Path: []string{"energy_level"}, Value: *f.MinEnergy})
	}
	if f.NoHardcodedDate != nil && *f.NoHardcodedDate {
		p.add(Clause{Kind: NestedNotTrue, Column: ColumnHardcodedElements, Path: []string{"has_date"}})
	}
	if f.NoHardcodedLocation != nil && *f.NoHardcodedLocation {
		p.add(Clause{Kind: NestedNotTrue, Column: ColumnHardcodedElements, Path: []string{"has_location"}})
	}
	return p
}

func (p *Predicate) equal(column string, v *string) {
	if v == nil || *v == "" {
		return
	}
	p.add(Clause{Kind: Equal, Column: column, Value: *v})
}

func (p *Predicate) add(c Clause) {
	p.Clauses = append(p.Clauses, c)
}
