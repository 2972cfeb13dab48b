package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/pkg/utils"
)

// Environment read by `kura mcp`. The flag wins over KURA_API_URL.
const (
	envAPIURL = "KURA_API_URL"
	envAPIKey = "KURA_API_KEY"
)

const (
	mcpSearchDefaultLimit = 10
	mcpSearchMaxLimit     = 50
	mcpBrowseDefaultLimit = 20
	mcpBrowseMaxLimit     = 100
	mcpDescriptionChars   = 200
)

type searchAssetsInput struct {
	Query     string `json:"query" jsonschema:"natural language description of the assets to find"`
	AssetType string `json:"asset_type,omitempty" jsonschema:"template, inspiration or all (default all)"`
	Album     string `json:"album,omitempty" jsonschema:"exact album name"`
	MediaType string `json:"media_type,omitempty" jsonschema:"image, video or document"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, 1 to 50 (default 10)"`
}

type assetDetailsInput struct {
	AssetID string `json:"asset_id" jsonschema:"the asset UUID"`
}

type browseAlbumInput struct {
	AlbumName string `json:"album_name" jsonschema:"exact album name, see list_albums"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of assets, 1 to 100 (default 20)"`
	Offset    int    `json:"offset,omitempty" jsonschema:"number of assets to skip"`
}

type noInput struct{}

// newMCPServer exposes the catalog API as MCP tools. Every tool answers
// with markdown text; API failures come back as tool errors.
func newMCPServer(c *apiClient) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: "kura", Version: version}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name: "search_assets",
		Description: "Search the asset catalog with a natural language query, for example " +
			"\"birthday party promo images\" or \"social media templates without dates\". " +
			"Optionally filter by asset type, album or media type.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in searchAssetsInput) (*mcp.CallToolResult, any, error) {
		resp, err := c.searchContext(ctx, mcpSearchRequest(in))
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(formatSearchResults(in.Query, resp)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_asset_details",
		Description: "Get the full metadata of one asset: file information, album, visual analysis, mood, brand compliance, editorial notes and URLs.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in assetDetailsInput) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(in.AssetID) == "" {
			return toolError(errors.New("asset_id is required")), nil, nil
		}
		a, err := c.asset(ctx, in.AssetID)
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(formatAssetDetails(a)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_albums",
		Description: "List every album with its asset count and whether it holds reusable templates.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, any, error) {
		albums, err := c.albums(ctx)
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(formatAlbums(albums)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_stats",
		Description: "Catalog statistics: counts by processing status, asset type and media type, top albums and embedding coverage.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, any, error) {
		st, err := c.stats(ctx)
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(formatStats(st)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "browse_album",
		Description: "Page through the assets of one album in filename order. Use list_albums first to find album names.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in browseAlbumInput) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(in.AlbumName) == "" {
			return toolError(errors.New("album_name is required")), nil, nil
		}
		limit := clampToolLimit(in.Limit, mcpBrowseDefaultLimit, mcpBrowseMaxLimit)
		offset := max(in.Offset, 0)
		assets, err := c.albumAssets(ctx, in.AlbumName, limit, offset)
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(formatAlbumPage(in.AlbumName, assets, limit, offset)), nil, nil
	})

	return s
}

func runMCP() {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	serverURL := fs.String("server", "", "server URL (default: $KURA_API_URL or http://localhost:8080)")
	_ = fs.Parse(os.Args[2:])

	base := *serverURL
	if base == "" {
		base = os.Getenv(envAPIURL)
	}
	if base == "" {
		base = defaultServerURL
	}
	c := newAPIClient(base)
	c.apiKey = os.Getenv(envAPIKey)

	// stdout carries the protocol, so diagnostics go to stderr only.
	logger, err := utils.NewCommandLogger(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newMCPServer(c).Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("mcp server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func mcpSearchRequest(in searchAssetsInput) *models.SearchRequest {
	var f models.SearchFilters
	if t := strings.TrimSpace(in.AssetType); t != "" && t != "all" {
		f.AssetType = &t
	}
	f.Album = models.NonEmpty(strings.TrimSpace(in.Album))
	f.MediaType = models.NonEmpty(strings.TrimSpace(in.MediaType))

	req := &models.SearchRequest{
		Query:            in.Query,
		Limit:            clampToolLimit(in.Limit, mcpSearchDefaultLimit, mcpSearchMaxLimit),
		IncludeReasoning: true,
	}
	if f.Active() {
		req.Filters = &f
	}
	return req
}

func clampToolLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, max)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func toolError(err error) *mcp.CallToolResult {
	res := textResult("Error: " + err.Error())
	res.IsError = true
	return res
}

func formatSearchResults(query string, resp *models.SearchResponse) string {
	if len(resp.Results) == 0 {
		return fmt.Sprintf("No assets found matching: %s", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d assets matching '%s':\n\n", len(resp.Results), query)
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, r.Filename)
		fmt.Fprintf(&b, "   - ID: `%s`\n", r.ID)
		fmt.Fprintf(&b, "   - Type: %s\n", orUnknown(r.AssetType))
		if v := models.Deref(r.AlbumName); v != "" {
			fmt.Fprintf(&b, "   - Album: %s\n", v)
		}
		if v := models.Deref(r.MediaType); v != "" {
			fmt.Fprintf(&b, "   - Media: %s\n", v)
		}
		if r.Width != nil && r.Height != nil {
			fmt.Fprintf(&b, "   - Dimensions: %dx%d\n", *r.Width, *r.Height)
		}
		fmt.Fprintf(&b, "   - Score: %.2f\n", r.Score)
		if v := models.Deref(r.Reasoning); v != "" {
			fmt.Fprintf(&b, "   - Match: %s\n", v)
		}
		if v := models.Deref(r.SemanticDescription); v != "" {
			fmt.Fprintf(&b, "   - Description: %s\n", utils.Truncate(v, mcpDescriptionChars))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatAssetDetails(a *models.Asset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Asset: %s\n\n", a.Filename)

	b.WriteString("## File Information\n")
	fmt.Fprintf(&b, "- **ID**: `%s`\n", a.ID)
	fmt.Fprintf(&b, "- **Type**: %s\n", orUnknown(a.AssetType))
	fmt.Fprintf(&b, "- **Media Type**: %s\n", orUnknown(a.MediaType))
	fmt.Fprintf(&b, "- **Content Type**: %s\n", orUnknown(a.ContentType))
	if a.Width != nil && a.Height != nil {
		fmt.Fprintf(&b, "- **Dimensions**: %dx%d\n", *a.Width, *a.Height)
	}
	if a.FileSize != nil && *a.FileSize > 0 {
		fmt.Fprintf(&b, "- **File Size**: %.2f MB\n", float64(*a.FileSize)/(1024*1024))
	}

	b.WriteString("\n## Organization\n")
	if v := models.Deref(a.AlbumName); v != "" {
		fmt.Fprintf(&b, "- **Album**: %s\n", v)
	}
	if v := models.Deref(a.AlbumPath); v != "" {
		fmt.Fprintf(&b, "- **Path**: %s\n", v)
	}
	if v := models.Deref(a.ApprovalStatus); v != "" {
		fmt.Fprintf(&b, "- **Approval**: %s\n", v)
	}

	if v := models.Deref(a.SemanticDescription); v != "" {
		fmt.Fprintf(&b, "\n## Description\n%s\n", v)
	}
	if len(a.AutoTags) > 0 {
		fmt.Fprintf(&b, "\n## Tags\n%s\n", strings.Join(a.AutoTags, ", "))
	}
	if len(a.Mood) > 0 {
		b.WriteString("\n## Mood & Tone\n")
		if v := a.Mood.String("primary"); v != "" {
			fmt.Fprintf(&b, "- **Primary Mood**: %s\n", v)
		}
		if n, ok := a.Mood.Int("energy_level"); ok && n > 0 {
			fmt.Fprintf(&b, "- **Energy Level**: %d/10\n", n)
		}
		if v := a.Mood.Strings("suitable_for"); len(v) > 0 {
			fmt.Fprintf(&b, "- **Suitable For**: %s\n", strings.Join(v, ", "))
		}
	}
	if len(a.Brand) > 0 {
		b.WriteString("\n## Brand Compliance\n")
		if n, ok := a.Brand.Int("brand_compliance_score"); ok && n > 0 {
			fmt.Fprintf(&b, "- **Score**: %d/5\n", n)
		}
		if present, ok := a.Brand.Bool("logo_present"); ok && present {
			logo := a.Brand.String("logo_version")
			if logo == "" {
				logo = "unknown"
			}
			fmt.Fprintf(&b, "- **Logo Present**: Yes (%s)\n", logo)
		}
		if v := a.Brand.String("compliance_notes"); v != "" {
			fmt.Fprintf(&b, "- **Notes**: %s\n", v)
		}
	}
	if len(a.Editorial) > 0 {
		b.WriteString("\n## Editorial Suggestions\n")
		if v := a.Editorial.Strings("suggested_use"); len(v) > 0 {
			fmt.Fprintf(&b, "- **Suggested Use**: %s\n", strings.Join(v, ", "))
		}
		if v := a.Editorial.String("story_position"); v != "" {
			fmt.Fprintf(&b, "- **Story Position**: %s\n", v)
		}
	}

	b.WriteString("\n## URLs\n")
	if v := models.Deref(a.ThumbnailURL); v != "" {
		fmt.Fprintf(&b, "- **Thumbnail**: %s\n", v)
	}
	if v := models.Deref(a.SourcePreviewURL); v != "" {
		fmt.Fprintf(&b, "- **Preview**: %s\n", v)
	}
	return b.String()
}

func formatAlbums(albums []*models.Album) string {
	if len(albums) == 0 {
		return "No albums found"
	}
	var b strings.Builder
	b.WriteString("# Albums\n\n")
	for _, a := range albums {
		marker := ""
		if a.HasTemplates {
			marker = " (templates)"
		}
		fmt.Fprintf(&b, "- **%s**: %d assets%s\n", a.Name, a.AssetCount, marker)
	}
	return b.String()
}

func formatStats(st *models.LibraryStats) string {
	var b strings.Builder
	b.WriteString("# Catalog Statistics\n\n")
	fmt.Fprintf(&b, "**Total Assets**: %d\n", st.TotalAssets)

	writeCounts := func(title string, m map[string]int64, order []string) {
		if len(m) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n", title)
		for _, k := range order {
			if n, ok := m[k]; ok {
				fmt.Fprintf(&b, "- %s: %d\n", k, n)
			}
		}
	}
	statuses := make([]string, len(models.ProcessingStatuses))
	for i, s := range models.ProcessingStatuses {
		statuses[i] = string(s)
	}
	writeCounts("Processing Status", st.ProcessingStatus, statuses)
	writeCounts("By Asset Type", st.ByAssetType, sortedKeys(st.ByAssetType))
	writeCounts("By Media Type", st.ByMediaType, sortedKeys(st.ByMediaType))

	if len(st.TopAlbums) > 0 {
		b.WriteString("\n## Top Albums\n")
		for _, a := range st.TopAlbums {
			fmt.Fprintf(&b, "- %s: %d\n", a.Name, a.Count)
		}
	}

	cov := st.EmbeddingCoverage
	b.WriteString("\n## Semantic Search Coverage\n")
	fmt.Fprintf(&b, "- With embeddings: %d\n", cov.WithEmbedding)
	fmt.Fprintf(&b, "- Total: %d\n", cov.Total)
	fmt.Fprintf(&b, "- Coverage: %.1f%%\n", cov.Percentage)
	return b.String()
}

func formatAlbumPage(name string, assets []*models.AssetSummary, limit, offset int) string {
	if len(assets) == 0 {
		return fmt.Sprintf("No assets found in album: %s", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Album: %s\n\nShowing %d assets (offset: %d)\n\n", name, len(assets), offset)
	for i, a := range assets {
		fmt.Fprintf(&b, "%d. **%s**\n", offset+i+1, a.Filename)
		fmt.Fprintf(&b, "   - ID: `%s`\n", a.ID)
		fmt.Fprintf(&b, "   - Type: %s\n", orUnknown(a.AssetType))
		fmt.Fprintf(&b, "   - Media: %s\n", orUnknown(a.MediaType))
		if v := models.Deref(a.ThumbnailURL); v != "" {
			fmt.Fprintf(&b, "   - Thumbnail: %s\n", v)
		}
		b.WriteString("\n")
	}
	if len(assets) == limit {
		fmt.Fprintf(&b, "More assets available. Use offset=%d to see the next page.\n", offset+limit)
	}
	return b.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "unknown"
	}
	return *s
}
