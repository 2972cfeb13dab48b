// Package search ranks catalog assets by blending vector similarity with
// trigram similarity, falling back to lexical-only scoring when no query
// embedding can be obtained.
package search

import (
	"sort"

	"github.com/hyperjump/kura/internal/models"
)

// Blend weights. Changing them is a deployment decision.
const (
	SemanticWeight = 0.7
	LexicalWeight  = 0.3
)

// FusedResult holds an asset and its blended and per-source scores.
type FusedResult struct {
	Asset         *models.Asset
	Score         float64
	SemanticScore float64
	LexicalScore  float64
}

// Fuse outer-joins semantic and lexical candidates on asset ID. A source
// that did not return a row contributes 0, so a lexical-only row scores at
// most LexicalWeight. Results are sorted by Sort.
func Fuse(semantic, lexical []*models.ScoredAsset) []*FusedResult {
	byID := make(map[string]*FusedResult, len(semantic)+len(lexical))
	for _, s := range semantic {
		byID[s.Asset.ID] = &FusedResult{Asset: s.Asset, SemanticScore: s.Score}
	}
	for _, l := range lexical {
		if r, ok := byID[l.Asset.ID]; ok {
			r.LexicalScore = l.Score
			continue
		}
		byID[l.Asset.ID] = &FusedResult{Asset: l.Asset, LexicalScore: l.Score}
	}
	results := make([]*FusedResult, 0, len(byID))
	for _, r := range byID {
		r.Score = SemanticWeight*r.SemanticScore + LexicalWeight*r.LexicalScore
		results = append(results, r)
	}
	Sort(results)
	return results
}

// FromScored wraps single-source candidates without re-scoring, keeping
// their order.
func FromScored(rows []*models.ScoredAsset, semantic bool) []*FusedResult {
	results := make([]*FusedResult, 0, len(rows))
	for _, r := range rows {
		f := &FusedResult{Asset: r.Asset, Score: r.Score}
		if semantic {
			f.SemanticScore = r.Score
		} else {
			f.LexicalScore = r.Score
		}
		results = append(results, f)
	}
	return results
}

// Sort orders results by score descending, then asset ID ascending.
func Sort(results []*FusedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Asset.ID < results[j].Asset.ID
	})
}

// Top returns at most n results.
func Top(results []*FusedResult, n int) []*FusedResult {
	if n >= 0 && len(results) > n {
		return results[:n]
	}
	return results
}
