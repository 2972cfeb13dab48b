package lexical

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const trigramField = "trigrams"

type trigramDoc struct {
	Trigrams []string `json:"trigrams"`
}

// TrigramIndex maps each asset's search-text trigrams to its ID so that
// trigram candidates can be found without scanning every row. Scoring is
// left to Similarity; the index only answers "shares at least one trigram".
type TrigramIndex struct {
	index bleve.Index
}

// NewTrigramIndex creates or opens a bleve index at path. An empty path
// creates an in-memory index.
// Trigrams are stored verbatim (keyword analyzer) so that the padded
// pg_trgm forms such as "  a" survive indexing.
func NewTrigramIndex(path string) (*TrigramIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = keyword.Name
	fm.Store = false
	fm.IncludeTermVectors = false
	fm.IncludeInAll = false
	docMapping.AddFieldMappingsAt(trigramField, fm)
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create trigram index: %w", err)
		}
		return &TrigramIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open trigram index: %w", openErr)
		}
		return &TrigramIndex{index: index}, nil
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create trigram index: %w", err)
	}
	return &TrigramIndex{index: index}, nil
}

// Index stores the trigrams of text under id, replacing any previous entry.
// Empty text removes the entry.
func (t *TrigramIndex) Index(id, text string) error {
	grams := Trigrams(text)
	if len(grams) == 0 {
		return t.Delete(id)
	}
	return t.index.Index(id, trigramDoc{Trigrams: grams})
}

// IndexBatch indexes many documents in one batch.
func (t *TrigramIndex) IndexBatch(texts map[string]string) error {
	batch := t.index.NewBatch()
	for id, text := range texts {
		grams := Trigrams(text)
		if len(grams) == 0 {
			batch.Delete(id)
			continue
		}
		if err := batch.Index(id, trigramDoc{Trigrams: grams}); err != nil {
			return err
		}
	}
	return t.index.Batch(batch)
}

// Delete removes id from the index.
func (t *TrigramIndex) Delete(id string) error {
	return t.index.Delete(id)
}

// Candidates returns up to limit IDs sharing at least one trigram with query,
// best overlap first.
func (t *TrigramIndex) Candidates(ctx context.Context, query string, limit int) ([]string, error) {
	grams := Trigrams(query)
	if len(grams) == 0 || limit <= 0 {
		return nil, nil
	}
	clauses := make([]blevequery.Query, 0, len(grams))
	for _, g := range grams {
		tq := bleve.NewTermQuery(g)
		tq.SetField(trigramField)
		clauses = append(clauses, tq)
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(clauses...))
	req.Size = limit
	res, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("trigram index search failed: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Count returns the number of indexed documents.
func (t *TrigramIndex) Count() (uint64, error) {
	return t.index.DocCount()
}

// Close closes the index.
func (t *TrigramIndex) Close() error {
	return t.index.Close()
}
