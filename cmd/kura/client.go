package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/kura/internal/indexer"
	"github.com/hyperjump/kura/internal/models"
)

// apiClient talks to a running kura server. Commands use it by default so
// they do not contend with the server for the SQLite and bleve locks.
type apiClient struct {
	base   string
	apiKey string
	http   *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimSuffix(base, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// do sends body as JSON and decodes a response with status want into out.
func (c *apiClient) do(method, path string, body, out any, want int) error {
	return c.doContext(context.Background(), method, path, body, out, want)
}

func (c *apiClient) doContext(ctx context.Context, method, path string, body, out any, want int) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(b))
}

func (c *apiClient) search(req *models.SearchRequest) (*models.SearchResponse, error) {
	return c.searchContext(context.Background(), req)
}

func (c *apiClient) searchContext(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	var out models.SearchResponse
	if err := c.doContext(ctx, http.MethodPost, "/api/search", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) semanticSearch(query string, limit int) (*models.SearchResponse, error) {
	q := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	var out models.SearchResponse
	if err := c.do(http.MethodGet, "/api/search/semantic?"+q.Encode(), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

type statusResponse struct {
	models.SyncStatus
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}

func (c *apiClient) status() (*statusResponse, error) {
	var out statusResponse
	if err := c.do(http.MethodGet, "/api/sync/status", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) embed() (*indexer.EmbedReport, error) {
	var out indexer.EmbedReport
	if err := c.do(http.MethodPost, "/api/sync/embed", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

type resetResponse struct {
	ResetCount       int64 `json:"reset_count"`
	EmbeddingVersion int   `json:"embedding_version,omitempty"`
}

func (c *apiClient) reindexAll() (*resetResponse, error) {
	var out resetResponse
	if err := c.do(http.MethodPost, "/api/sync/reindex-all", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) retryFailed() (*resetResponse, error) {
	var out resetResponse
	if err := c.do(http.MethodPost, "/api/sync/retry-failed", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) watchDirectories() ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.do(http.MethodGet, "/api/watch/directories", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

func (c *apiClient) addWatchDirectory(path string, sync bool) error {
	body := map[string]any{"path": path, "sync": sync}
	return c.do(http.MethodPost, "/api/watch/directories", body, nil, http.StatusCreated)
}

func (c *apiClient) removeWatchDirectory(path string) error {
	return c.do(http.MethodDelete, "/api/watch/directories?path="+url.QueryEscape(path), nil, nil, http.StatusOK)
}

func (c *apiClient) asset(ctx context.Context, id string) (*models.Asset, error) {
	var out models.Asset
	if err := c.doContext(ctx, http.MethodGet, "/api/assets/"+url.PathEscape(id), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) albums(ctx context.Context) ([]*models.Album, error) {
	var out []*models.Album
	if err := c.doContext(ctx, http.MethodGet, "/api/albums", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) albumAssets(ctx context.Context, name string, limit, offset int) ([]*models.AssetSummary, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
	path := "/api/albums/" + url.PathEscape(name) + "/assets?" + q.Encode()
	var out []*models.AssetSummary
	if err := c.doContext(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) stats(ctx context.Context) (*models.LibraryStats, error) {
	var out models.LibraryStats
	if err := c.doContext(ctx, http.MethodGet, "/api/sync/stats", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
