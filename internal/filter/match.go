package filter

import "github.com/hyperjump/kura/internal/models"

// Match evaluates the predicate against an in-memory asset with the same
// semantics as the rendered SQL: NULL columns and missing nested structure
// never satisfy Equal, AtLeast, NestedTrue or NestedAtLeast.
func (p *Predicate) Match(a *models.Asset) bool {
	if p.Empty() {
		return true
	}
	for _, c := range p.Clauses {
		if !c.match(a) {
			return false
		}
	}
	return true
}

func (c Clause) match(a *models.Asset) bool {
	switch c.Kind {
	case Equal:
		v := scalarString(a, c.Column)
		want, _ := c.Value.(string)
		return v != nil && *v == want
	case AtLeast:
		want, _ := c.Value.(int)
		return a.ReusabilityScore != nil && c.Column == ColumnReusabilityScore && *a.ReusabilityScore >= want
	case NestedTrue:
		v, ok := a.Section(c.Column).Bool(c.Path...)
		return ok && v
	case NestedNotTrue:
		v, ok := a.Section(c.Column).Bool(c.Path...)
		return !ok || !v
	case NestedAtLeast:
		want, _ := c.Value.(int)
		n, ok := a.Section(c.Column).Int(c.Path...)
		return ok && n >= want
	}
	return false
}

func scalarString(a *models.Asset, column string) *string {
	switch column {
	case ColumnAssetType:
		return a.AssetType
	case ColumnAlbumName:
		return a.AlbumName
	case ColumnMediaType:
		return a.MediaType
	case ColumnContentType:
		return a.ContentType
	}
	return nil
}
