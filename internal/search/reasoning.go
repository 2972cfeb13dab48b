package search

import (
	"strings"

	"github.com/hyperjump/kura/internal/models"
)

const semanticReason = "Matched via semantic similarity"

// Explain returns a short heuristic note on why a matched query. Query
// tokens are matched by case-insensitive substring containment.
func Explain(query string, a *models.Asset) string {
	terms := strings.Fields(strings.ToLower(query))
	var parts []string

	if found := containedTerms(terms, a.Filename); len(found) > 0 {
		parts = append(parts, "Filename contains: "+strings.Join(found, ", "))
	}
	if models.Deref(a.AssetType) == models.AssetTypeTemplate {
		parts = append(parts, "Classified as reusable template")
	}
	if album := models.Deref(a.AlbumName); album != "" && len(containedTerms(terms, album)) > 0 {
		parts = append(parts, "In album: "+album)
	}
	if found := containedTerms(terms, models.Deref(a.SemanticDescription)); len(found) > 0 {
		parts = append(parts, "Description matches: "+strings.Join(found, ", "))
	}

	if len(parts) == 0 {
		return semanticReason
	}
	return strings.Join(parts, "; ")
}

func containedTerms(terms []string, text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var found []string
	for _, t := range terms {
		if strings.Contains(lower, t) {
			found = append(found, t)
		}
	}
	return found
}
