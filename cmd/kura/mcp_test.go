package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hyperjump/kura/internal/models"
)

type fakeCatalogAPI struct {
	search  models.SearchRequest
	apiKeys []string
	paths   []string
}

func (f *fakeCatalogAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.search)
		_ = json.NewEncoder(w).Encode(models.SearchResponse{
			Query: f.search.Query,
			Total: 1,
			Results: []*models.SearchResult{{
				ID:                  "a-1",
				Filename:            "lighthouse_dusk.jpg",
				AssetType:           models.Ptr("inspiration"),
				AlbumName:           models.Ptr("Coast"),
				Width:               models.Ptr(1200),
				Height:              models.Ptr(800),
				Score:               0.8123,
				Reasoning:           models.Ptr("Matches on: lighthouse, dusk"),
				SemanticDescription: models.Ptr(strings.Repeat("calm ", 60)),
			}},
		})
	})
	mux.HandleFunc("GET /api/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "a-1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"asset not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"a-1","filename":"lighthouse_dusk.jpg","asset_type":"template",
			"media_type":"image","width":1200,"height":800,"album_name":"Coast",
			"mood":{"primary":"calm","energy_level":3},"auto_tags":["coast","dusk"]}`))
	})
	mux.HandleFunc("GET /api/albums", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"Brand Kit","asset_count":12,"has_templates":true},{"name":"Coast","asset_count":3}]`))
	})
	mux.HandleFunc("GET /api/albums/{name}/assets", func(w http.ResponseWriter, r *http.Request) {
		f.paths = append(f.paths, r.PathValue("name")+"?"+r.URL.RawQuery)
		_, _ = w.Write([]byte(`[{"id":"b-1","filename":"logo.png","asset_type":"template","media_type":"image"}]`))
	})
	mux.HandleFunc("GET /api/sync/stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_assets":4,"processing_status":{"indexed":3,"failed":1},
			"by_asset_type":{"template":1,"inspiration":3},"by_media_type":{"image":4},
			"embedding_coverage":{"with_embedding":3,"total":4,"percentage":75}}`))
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.apiKeys = append(f.apiKeys, r.Header.Get("X-API-Key"))
		mux.ServeHTTP(w, r)
	})
}

func connectMCP(t *testing.T, c *apiClient) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := newMCPServer(c).Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })
	cs, err := mcp.NewClient(&mcp.Implementation{Name: "kura-test", Version: "v0"}, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("call %s: empty content", name)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("call %s: content is %T", name, res.Content[0])
	}
	return text.Text, res.IsError
}

func newFakeClient(t *testing.T) (*fakeCatalogAPI, *apiClient) {
	t.Helper()
	api := &fakeCatalogAPI{}
	ts := httptest.NewServer(api.handler())
	t.Cleanup(ts.Close)
	c := newAPIClient(ts.URL)
	c.apiKey = "secret"
	return api, c
}

func TestMCP_ListTools(t *testing.T) {
	_, c := newFakeClient(t)
	cs := connectMCP(t, c)
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	want := []string{"browse_album", "get_asset_details", "get_stats", "list_albums", "search_assets"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestMCP_SearchAssets(t *testing.T) {
	api, c := newFakeClient(t)
	cs := connectMCP(t, c)

	text, isErr := callTool(t, cs, "search_assets", map[string]any{
		"query":      "lighthouse dusk",
		"asset_type": "all",
		"album":      "Coast",
		"limit":      500,
	})
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	if api.search.Limit != mcpSearchMaxLimit || !api.search.IncludeReasoning {
		t.Errorf("request = %+v", api.search)
	}
	if api.search.Filters == nil || models.Deref(api.search.Filters.Album) != "Coast" || api.search.Filters.AssetType != nil {
		t.Errorf("filters = %+v", api.search.Filters)
	}
	for _, sub := range []string{
		"Found 1 assets matching 'lighthouse dusk'",
		"1. **lighthouse_dusk.jpg**",
		"ID: `a-1`",
		"Dimensions: 1200x800",
		"Score: 0.81",
		"Match: Matches on: lighthouse, dusk",
		"...",
	} {
		if !strings.Contains(text, sub) {
			t.Errorf("output missing %q:\n%s", sub, text)
		}
	}
	for _, k := range api.apiKeys {
		if k != "secret" {
			t.Errorf("X-API-Key = %q", k)
		}
	}
}

func TestMCP_AssetDetails(t *testing.T) {
	_, c := newFakeClient(t)
	cs := connectMCP(t, c)

	text, isErr := callTool(t, cs, "get_asset_details", map[string]any{"asset_id": "a-1"})
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	for _, sub := range []string{"# Asset: lighthouse_dusk.jpg", "**Type**: template", "**Energy Level**: 3/10", "coast, dusk"} {
		if !strings.Contains(text, sub) {
			t.Errorf("output missing %q:\n%s", sub, text)
		}
	}

	text, isErr = callTool(t, cs, "get_asset_details", map[string]any{"asset_id": "missing"})
	if !isErr || !strings.Contains(text, "asset not found") {
		t.Errorf("want tool error for a missing asset, got %v %q", isErr, text)
	}
}

func TestMCP_AlbumsStatsAndBrowse(t *testing.T) {
	api, c := newFakeClient(t)
	cs := connectMCP(t, c)

	text, _ := callTool(t, cs, "list_albums", map[string]any{})
	if !strings.Contains(text, "**Brand Kit**: 12 assets (templates)") || !strings.Contains(text, "**Coast**: 3 assets\n") {
		t.Errorf("albums:\n%s", text)
	}

	text, _ = callTool(t, cs, "get_stats", map[string]any{})
	for _, sub := range []string{"**Total Assets**: 4", "- indexed: 3", "- failed: 1", "Coverage: 75.0%"} {
		if !strings.Contains(text, sub) {
			t.Errorf("stats missing %q:\n%s", sub, text)
		}
	}

	text, _ = callTool(t, cs, "browse_album", map[string]any{"album_name": "Brand Kit", "offset": 5})
	if !strings.Contains(text, "6. **logo.png**") {
		t.Errorf("browse:\n%s", text)
	}
	if len(api.paths) != 1 || api.paths[0] != "Brand Kit?limit=20&offset=5" {
		t.Errorf("album requests = %v", api.paths)
	}

	text, isErr := callTool(t, cs, "browse_album", map[string]any{"album_name": " "})
	if !isErr || !strings.Contains(text, "album_name is required") {
		t.Errorf("want tool error for a blank album, got %q", text)
	}
}

func TestMCPSearchRequest(t *testing.T) {
	req := mcpSearchRequest(searchAssetsInput{Query: "party"})
	if req.Limit != mcpSearchDefaultLimit || req.Filters != nil {
		t.Errorf("defaults = %+v", req)
	}
	req = mcpSearchRequest(searchAssetsInput{Query: "party", AssetType: "template", MediaType: "video", Limit: 7})
	if req.Limit != 7 || models.Deref(req.Filters.AssetType) != "template" || models.Deref(req.Filters.MediaType) != "video" {
		t.Errorf("filters = %+v", req.Filters)
	}
}

func TestFormatAlbumPage_MoreAvailable(t *testing.T) {
	assets := []*models.AssetSummary{{ID: "1", Filename: "a.jpg"}, {ID: "2", Filename: "b.jpg"}}
	out := formatAlbumPage("Coast", assets, 2, 0)
	if !strings.Contains(out, "Use offset=2") {
		t.Errorf("missing pagination hint:\n%s", out)
	}
	if got := formatAlbumPage("Coast", nil, 2, 0); got != "No assets found in album: Coast" {
		t.Errorf("empty page = %q", got)
	}
}
