// Package e2e provides end-to-end tests with a generated catalog and multiple queries.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kura/internal/indexer"
)

// CatalogAsset is an asset entry in the E2E corpus. Subject is a phrase
// unique to the asset so queries can assert it ranks first.
type CatalogAsset struct {
	SourceID string
	Filename string
	Album    string
	Subject  string
	Tags     []string
}

// QueryTestCase defines a query and the source ID expected at the top of
// lexical results.
type QueryTestCase struct {
	Query            string
	ExpectedSourceID string
	Description      string
}

// Corpus holds assets and query test cases for E2E tests.
type Corpus struct {
	Assets       []CatalogAsset
	TestCases    []QueryTestCase
	TotalAssets  int
	TotalQueries int
}

// Albums are assigned round-robin.
var Albums = []string{"Coast", "Studio", "Outdoors", "City"}

var subjects = []string{
	"lighthouse dusk", "espresso crema", "surfer barrel", "vineyard harvest",
	"glacier hike", "bonfire marshmallow", "skyline rooftop", "ballet rehearsal",
	"pottery wheel", "desert caravan", "orchard blossom", "harbor sailboat",
	"snowboard halfpipe", "library reading", "bakery sourdough", "festival lantern",
	"rainforest canopy", "greenhouse seedling", "violin concerto", "marathon finish",
	"tulip field", "campfire guitar", "aquarium jellyfish", "street mural",
	"wedding bouquet", "telescope nebula", "picnic blanket", "kayak rapids",
	"chess tournament", "farmers market",
}

// BuildCorpus returns one asset per subject and a query case for each.
func BuildCorpus() *Corpus {
	assets := buildAssets()
	cases := buildQueryTestCases(assets)
	return &Corpus{
		Assets:       assets,
		TestCases:    cases,
		TotalAssets:  len(assets),
		TotalQueries: len(cases),
	}
}

func buildAssets() []CatalogAsset {
	out := make([]CatalogAsset, len(subjects))
	for i, s := range subjects {
		ext := ".jpg"
		if i%5 == 4 {
			ext = ".png"
		}
		out[i] = CatalogAsset{
			SourceID: fmt.Sprintf("e2e-%03d", i),
			Filename: Slug(s) + ext,
			Album:    Albums[i%len(Albums)],
			Subject:  s,
			Tags:     strings.Fields(s),
		}
	}
	return out
}

func buildQueryTestCases(assets []CatalogAsset) []QueryTestCase {
	cases := make([]QueryTestCase, 0, len(assets))
	for _, a := range assets {
		cases = append(cases, QueryTestCase{
			Query:            a.Subject,
			ExpectedSourceID: a.SourceID,
			Description:      fmt.Sprintf("query %q should rank %s first", a.Subject, a.SourceID),
		})
	}
	return cases
}

// Slug turns a subject into a filename stem.
func Slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

func containsSubject(a CatalogAsset, phrase string) bool {
	return strings.Contains(strings.ReplaceAll(a.Filename, "-", " "), phrase)
}

// ToRegisterRequests converts the corpus to ingest requests.
func (c *Corpus) ToRegisterRequests() []*indexer.RegisterRequest {
	out := make([]*indexer.RegisterRequest, len(c.Assets))
	for i := range c.Assets {
		a := &c.Assets[i]
		out[i] = &indexer.RegisterRequest{
			SourceID:       a.SourceID,
			SourceType:     "e2e",
			Filename:       a.Filename,
			AlbumName:      a.Album,
			SourceKeywords: append([]string(nil), a.Tags...),
		}
	}
	return out
}
