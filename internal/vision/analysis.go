// Package vision extracts structured metadata from asset images with a
// multimodal chat model.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kura/internal/models"
)

// ErrUnavailable is returned when no analyzer is configured.
var ErrUnavailable = errors.New("vision analyzer unavailable")

// Image is the input to an analysis: inline bytes, or a URL the provider
// fetches itself.
type Image struct {
	URL         string
	Data        []byte
	ContentType string
	IsVideo     bool
}

// Analyzer produces structured metadata for an image.
type Analyzer interface {
	Analyze(ctx context.Context, img Image) (*Analysis, error)
}

// Analysis is the decoded model output.
type Analysis struct {
	Sections            map[string]models.Document
	AutoTags            []string
	SemanticDescription string
	SearchQueries       []string
}

// ParseAnalysis decodes a model response. Code fences around the JSON are
// tolerated.
func ParseAnalysis(raw string) (*Analysis, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	doc := models.Document(obj)

	an := &Analysis{
		Sections:            make(map[string]models.Document),
		AutoTags:            doc.Strings("auto_tags"),
		SemanticDescription: doc.String("semantic_description"),
		SearchQueries:       doc.Strings("search_queries"),
	}
	for _, col := range models.SectionColumns {
		if sec := doc.Object(col); sec != nil {
			an.Sections[col] = sec
		}
	}
	return an, nil
}

// ReusabilityScore returns hardcoded_elements.reusability_score when it is
// an integer in 1..5.
func (an *Analysis) ReusabilityScore() *int {
	n, ok := an.Sections["hardcoded_elements"].Int("reusability_score")
	if !ok || n < 1 || n > 5 {
		return nil
	}
	return &n
}

// Apply merges the analysis into a. Sections the model omitted keep their
// stored values. The embedding is cleared so the next pass regenerates it.
func (an *Analysis) Apply(a *models.Asset, at time.Time) {
	sections := a.Sections()
	for i, col := range models.SectionColumns {
		if sec, ok := an.Sections[col]; ok {
			*sections[i] = sec
		}
	}
	if len(an.AutoTags) > 0 {
		a.AutoTags = an.AutoTags
	}
	if an.SemanticDescription != "" {
		a.SemanticDescription = models.Ptr(an.SemanticDescription)
	}
	if len(an.SearchQueries) > 0 {
		a.SearchQueries = an.SearchQueries
	}
	if score := an.ReusabilityScore(); score != nil {
		a.ReusabilityScore = score
	}
	a.Embedding = nil
	a.ProcessingStatus = models.StatusEnriched
	a.ProcessingError = nil
	a.AnalyzedAt = &at
}
