package indexer

import (
	"strings"

	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/pkg/utils"
)

var filenameSeparators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

// BuildSearchText concatenates an asset's searchable fields, space-joined
// with empty fields omitted, in this order: filename, album name, album
// path, description, scene, people, objects, mood, editorial use, auto
// tags, search queries, source tags, source keywords.
func BuildSearchText(a *models.Asset) string {
	parts := []string{
		filenameSeparators.Replace(a.Filename),
		models.Deref(a.AlbumName),
		models.Deref(a.AlbumPath),
		models.Deref(a.SemanticDescription),
		a.Scene.String("setting_details"),
		a.Scene.String("setting"),
	}
	parts = append(parts, a.People.Strings("activities")...)
	parts = append(parts, a.People.Strings("emotions")...)
	parts = append(parts, a.People.Strings("age_groups")...)
	parts = append(parts, a.Objects.Strings("equipment")...)
	parts = append(parts, a.Objects.Strings("props")...)
	parts = append(parts, a.Objects.Strings("food_drink")...)
	parts = append(parts, a.Objects.Strings("brand_items")...)
	parts = append(parts, a.Mood.String("primary"))
	parts = append(parts, a.Mood.Strings("suitable_for")...)
	parts = append(parts, a.Mood.Strings("emotions_evoked")...)
	parts = append(parts, a.Editorial.Strings("suggested_use")...)
	parts = append(parts, a.AutoTags...)
	parts = append(parts, a.SearchQueries...)
	parts = append(parts, a.SourceTags...)
	parts = append(parts, a.SourceKeywords...)
	return utils.JoinNonEmpty(parts, " ")
}

// embeddingInput is the text sent to the provider for a.
func (idx *Indexer) embeddingInput(a *models.Asset) string {
	text := models.Deref(a.SearchText)
	if text == "" {
		text = BuildSearchText(a)
	}
	if idx.config.MaxInputChars > 0 {
		text = utils.TruncateRunes(text, idx.config.MaxInputChars)
	}
	return text
}
