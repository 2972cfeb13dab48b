package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/indexer"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/objectstore"
	"github.com/hyperjump/kura/internal/search"
	"github.com/hyperjump/kura/internal/storage"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type harness struct {
	t       *testing.T
	dir     string
	store   *storage.SQLiteStorage
	idx     *indexer.Indexer
	handler http.Handler
}

func newHarness(t *testing.T, emb embedding.Embedder, opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "catalog.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	objects, err := objectstore.NewLocalStore(filepath.Join(dir, "objects"), "http://kura.test/storage")
	if err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()
	idx, err := indexer.NewIndexer(store, emb, config.IngestConfig{BatchSize: 10, Workers: 1},
		indexer.WithLogger(logger), indexer.WithObjectStore(objects, 0))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(idx.Close)

	engine := search.NewEngine(store, emb, &config.SearchConfig{CandidateCap: 100},
		search.WithLogger(logger),
		search.WithAssembler(search.NewAssembler(objects, 0, logger)))

	opts = append([]Option{WithObjectHandler(objects.Handler())}, opts...)
	srv := NewServer(engine, idx, store, &config.ServerConfig{Port: 8080}, logger, opts...)
	return &harness{t: t, dir: dir, store: store, idx: idx, handler: srv.Routes()}
}

// do sends body as JSON unless it is already a []byte.
func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			h.t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *harness) register(sourceID, filename, album string) string {
	h.t.Helper()
	res, err := h.idx.Register(context.Background(), &indexer.RegisterRequest{
		SourceID: sourceID, Filename: filename, AlbumPath: album,
	})
	if err != nil {
		h.t.Fatal(err)
	}
	return res.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status: got %d, want %d, body: %s", w.Code, want, w.Body.String())
	}
}

func pngBody(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	h := newHarness(t, embedding.NewMockEmbedder(8))
	w := h.do(http.MethodGet, "/health", nil)
	expectStatus(t, w, http.StatusOK)
	out := decode[map[string]any](t, w)
	if out["status"] != "healthy" || out["embeddings"] != true || out["vision"] != false {
		t.Errorf("health = %v", out)
	}
}

func TestCORS(t *testing.T) {
	h := newHarness(t, embedding.NewMockEmbedder(8))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://app.test")
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("missing Access-Control-Allow-Origin for an allowed origin")
	}

	preflight := func(handler http.Handler, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-API-Key")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}
	w = preflight(h.handler, "http://app.test")
	if w.Code >= 300 {
		t.Errorf("preflight status = %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost) {
		t.Errorf("allow methods = %q", w.Header().Get("Access-Control-Allow-Methods"))
	}

	restricted := NewServer(nil, nil, nil, &config.ServerConfig{CORSOrigins: []string{"http://ok.test"}}, nil).Routes()
	if got := preflight(restricted, "http://evil.test").Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Access-Control-Allow-Origin %q", got)
	}
	if got := preflight(restricted, "http://ok.test").Header().Get("Access-Control-Allow-Origin"); got != "http://ok.test" {
		t.Errorf("allowed origin got %q", got)
	}
}

func TestHandleSearch_Hybrid(t *testing.T) {
	h := newHarness(t, embedding.NewMockEmbedder(8))
	h.register("s1", "birthday_party.jpg", "Events")
	h.register("s2", "arcade_floor.jpg", "Venues")
	if _, err := h.idx.EmbedPending(context.Background()); err != nil {
		t.Fatal(err)
	}

	w := h.do(http.MethodPost, "/api/search", map[string]any{
		"query": "birthday", "include_reasoning": true,
	})
	expectStatus(t, w, http.StatusOK)
	out := decode[models.SearchResponse](t, w)
	if out.Mode != models.ModeHybrid {
		t.Errorf("mode = %q", out.Mode)
	}
	if out.Total != 2 || len(out.Results) != 2 {
		t.Fatalf("total = %d, results = %d", out.Total, len(out.Results))
	}
	if out.Results[0].Reasoning == nil {
		t.Error("expected reasoning")
	}
}

func TestHandleSearch_LexicalWithFilters(t *testing.T) {
	h := newHarness(t, embedding.NewUnavailable(8))
	h.register("s1", "birthday_party.jpg", "Events")
	h.register("s2", "birthday_template.jpg", "Brand Kit")

	w := h.do(http.MethodPost, "/api/browse/search", map[string]any{
		"query":   "birthday",
		"filters": map[string]any{"asset_type": "template"},
	})
	expectStatus(t, w, http.StatusOK)
	out := decode[models.SearchResponse](t, w)
	if out.Mode != models.ModeLexical {
		t.Errorf("mode = %q", out.Mode)
	}
	if len(out.Results) != 1 || out.Results[0].Filename != "birthday_template.jpg" {
		t.Errorf("results = %+v", out.Results)
	}
	if out.FiltersApplied["asset_type"] != "template" {
		t.Errorf("filters_applied = %v", out.FiltersApplied)
	}
}

func TestHandleSearch_BadRequests(t *testing.T) {
	h := newHarness(t, embedding.NewMockEmbedder(8))
	tests := []struct {
		name string
		body any
	}{
		{"malformed", []byte("{")},
		{"empty query", map[string]any{"query": "   "}},
		{"reusability out of range", map[string]any{"query": "x", "filters": map[string]any{"min_reusability": 9}}},
		{"negative limit", map[string]any{"query": "x", "limit": -1}},
		{"limit above 100", map[string]any{"query": "x", "limit": 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, h.do(http.MethodPost, "/api/search", tt.body), http.StatusBadRequest)
		})
	}
}

func TestHandleSearch_StorageFailure(t *testing.T) {
	h := newHarness(t, embedding.NewUnavailable(8))
	h.register("s1", "birthday_party.jpg", "")
	_ = h.store.Close()

	w := h.do(http.MethodPost, "/api/search", map[string]any{"query": "birthday"})
	expectStatus(t, w, http.StatusInternalServerError)
	if out := decode[map[string]string](t, w); out["error"] != "search failed" {
		t.Errorf("error = %q", out["error"])
	}
}

func TestHandleSemanticSearch(t *testing.T) {
	h := newHarness(t, embedding.NewMockEmbedder(8))
	h.register("s1", "birthday_party.jpg", "")
	if _, err := h.idx.EmbedPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	w := h.do(http.MethodGet, "/api/search/semantic?q=party&limit=5", nil)
	expectStatus(t, w, http.StatusOK)
	if out := decode[models.SearchResponse](t, w); out.Mode != models.ModeSemantic || out.Total != 1 {
		t.Errorf("response = %+v", out)
	}

	unavailable := newHarness(t, embedding.NewUnavailable(8))
	expectStatus(t, unavailable.do(http.MethodGet, "/api/search/semantic?q=party", nil), http.StatusServiceUnavailable)
	expectStatus(t, h.do(http.MethodGet, "/api/search/semantic?q=party&limit=x", nil), http.StatusBadRequest)
}

func TestHandleAssets(t *testing.T) {
	h := newHarness(t, nil)
	id := h.register("s1", "logo.png", "Brand Kit")
	h.register("s2", "party.jpg", "Events")

	w := h.do(http.MethodGet, "/api/assets?asset_type=template", nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[[]models.AssetSummary](t, w)
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("list = %+v", list)
	}

	w = h.do(http.MethodGet, "/api/assets/"+id, nil)
	expectStatus(t, w, http.StatusOK)
	if a := decode[models.Asset](t, w); a.Filename != "logo.png" {
		t.Errorf("asset = %+v", a)
	}

	expectStatus(t, h.do(http.MethodGet, "/api/assets/missing", nil), http.StatusNotFound)
	expectStatus(t, h.do(http.MethodGet, "/api/assets?processing_status=bogus", nil), http.StatusBadRequest)
	expectStatus(t, h.do(http.MethodGet, "/api/assets?limit=-2", nil), http.StatusBadRequest)
	expectStatus(t, h.do(http.MethodPost, "/api/assets/"+id+"/analyze", nil), http.StatusServiceUnavailable)
}

func TestHandleAlbums(t *testing.T) {
	h := newHarness(t, nil)
	h.register("s1", "b.png", "Launch/Brand Kit")
	h.register("s2", "a.png", "Launch/Brand Kit")

	w := h.do(http.MethodGet, "/api/albums", nil)
	expectStatus(t, w, http.StatusOK)
	albums := decode[[]models.Album](t, w)
	if len(albums) != 1 || albums[0].Name != "Brand Kit" || albums[0].AssetCount != 2 || !albums[0].HasTemplates {
		t.Errorf("albums = %+v", albums)
	}

	w = h.do(http.MethodGet, "/api/albums/Brand%20Kit/assets", nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[[]models.AssetSummary](t, w)
	if len(list) != 2 || list[0].Filename != "a.png" {
		t.Errorf("album assets = %+v", list)
	}
}

func TestHandleRegister(t *testing.T) {
	h := newHarness(t, nil)
	req := map[string]any{"source_id": "canto-9", "filename": "summer_flyer.jpg", "album_path": "Marketing"}

	w := h.do(http.MethodPost, "/api/ingest/register", req)
	expectStatus(t, w, http.StatusCreated)
	res := decode[indexer.RegisterResult](t, w)
	if res.AssetType != models.AssetTypeTemplate || res.MediaType != "image" || !res.Created {
		t.Errorf("result = %+v", res)
	}

	w = h.do(http.MethodPost, "/api/ingest/register", req)
	expectStatus(t, w, http.StatusOK)
	if again := decode[indexer.RegisterResult](t, w); again.ID != res.ID {
		t.Errorf("re-register changed id: %s != %s", again.ID, res.ID)
	}

	expectStatus(t, h.do(http.MethodPost, "/api/ingest/register", map[string]any{"filename": "x.jpg"}), http.StatusBadRequest)
}

func TestHandleBatchRegister(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodPost, "/api/ingest/batch-register", []map[string]any{
		{"source_id": "a", "filename": "a.jpg"},
		{"source_id": "b"},
		{"source_id": "c", "filename": "c.mp4"},
	})
	expectStatus(t, w, http.StatusOK)
	out := decode[batchResponse](t, w)
	if out.Registered != 2 || out.Failed != 1 {
		t.Fatalf("batch = %+v", out)
	}
	if out.Errors[0].Index != 1 || out.Errors[0].SourceID != "b" {
		t.Errorf("errors = %+v", out.Errors)
	}
}

func TestHandleThumbnail(t *testing.T) {
	h := newHarness(t, nil)
	id := h.register("s1", "poster.png", "")

	w := h.do(http.MethodPut, "/api/ingest/thumbnail/"+id, pngBody(t, 1600, 900))
	expectStatus(t, w, http.StatusOK)
	out := decode[map[string]string](t, w)
	want := "http://kura.test/storage/thumbnails/" + id + ".jpg"
	if out["thumbnail_url"] != want {
		t.Errorf("thumbnail_url = %q, want %q", out["thumbnail_url"], want)
	}

	w = h.do(http.MethodGet, "/storage/thumbnails/"+id+".jpg", nil)
	expectStatus(t, w, http.StatusOK)
	if img, _, err := image.Decode(w.Body); err != nil || img.Bounds().Dx() != 800 {
		t.Errorf("served thumbnail: err=%v", err)
	}

	expectStatus(t, h.do(http.MethodPut, "/api/ingest/thumbnail/"+id, []byte("nope")), http.StatusBadRequest)
	expectStatus(t, h.do(http.MethodPut, "/api/ingest/thumbnail/missing", pngBody(t, 4, 4)), http.StatusNotFound)
}

func TestHandleThumbnail_Multipart(t *testing.T) {
	h := newHarness(t, nil)
	id := h.register("s1", "poster.png", "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "poster.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(pngBody(t, 20, 10))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/api/ingest/thumbnail/"+id, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)

	a, err := h.store.GetAsset(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if models.Deref(a.Width) != 20 || a.ThumbnailURL == nil {
		t.Errorf("asset = %+v", a)
	}
}

func TestHandleComplete(t *testing.T) {
	h := newHarness(t, nil)
	id := h.register("s1", "poster.png", "")

	w := h.do(http.MethodPost, "/api/ingest/complete/"+id, nil)
	expectStatus(t, w, http.StatusOK)
	if res := decode[indexer.RegisterResult](t, w); res.Status != models.StatusClassified {
		t.Errorf("status = %q", res.Status)
	}
	expectStatus(t, h.do(http.MethodPost, "/api/ingest/complete/missing", nil), http.StatusNotFound)
}

func TestHandleIngestSpec(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodGet, "/api/ingest/spec", nil)
	expectStatus(t, w, http.StatusOK)
	out := decode[map[string]any](t, w)
	thumbs := out["storage"].(map[string]any)["thumbnails"].(map[string]any)
	if thumbs["max_dimension"] != float64(800) || thumbs["quality"] != float64(85) {
		t.Errorf("thumbnails = %v", thumbs)
	}
	if _, ok := out["classification"].(map[string]any)["reusable_albums"]; !ok {
		t.Errorf("classification = %v", out["classification"])
	}
}

func TestSyncEndpoints(t *testing.T) {
	h := newHarness(t, embedding.NewMockEmbedder(8))
	h.register("s1", "a.jpg", "")
	h.register("s2", "b.jpg", "")

	w := h.do(http.MethodGet, "/api/sync/pending", nil)
	expectStatus(t, w, http.StatusOK)
	if out := decode[map[string]any](t, w); out["count"] != float64(2) {
		t.Errorf("pending = %v", out)
	}

	w = h.do(http.MethodPost, "/api/sync/embed", nil)
	expectStatus(t, w, http.StatusOK)
	if report := decode[indexer.EmbedReport](t, w); report.Processed != 2 {
		t.Errorf("report = %+v", report)
	}

	w = h.do(http.MethodGet, "/api/sync/status", nil)
	expectStatus(t, w, http.StatusOK)
	status := decode[models.SyncStatus](t, w)
	if status.ByStatus.Indexed != 2 || status.EmbeddingVersion != 1 {
		t.Errorf("status = %+v", status)
	}

	w = h.do(http.MethodPost, "/api/sync/reindex-all", nil)
	expectStatus(t, w, http.StatusOK)
	if out := decode[map[string]any](t, w); out["reset_count"] != float64(2) || out["embedding_version"] != float64(2) {
		t.Errorf("reindex = %v", out)
	}

	w = h.do(http.MethodPost, "/api/sync/retry-failed", nil)
	expectStatus(t, w, http.StatusOK)
	if out := decode[map[string]any](t, w); out["reset_count"] != float64(0) {
		t.Errorf("retry = %v", out)
	}

	w = h.do(http.MethodGet, "/api/sync/stats", nil)
	expectStatus(t, w, http.StatusOK)
	if stats := decode[models.LibraryStats](t, w); stats.TotalAssets != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandleEmbed_Unavailable(t *testing.T) {
	h := newHarness(t, nil)
	expectStatus(t, h.do(http.MethodPost, "/api/sync/embed", nil), http.StatusServiceUnavailable)
}

func TestHandleSyncStatus_WithDiskUsage(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "usage.db")
	if err := os.WriteFile(dbPath, []byte("0123456789"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Storage: config.StorageConfig{DatabasePath: dbPath}}
	h := newHarness(t, nil, WithConfig("", cfg))

	w := h.do(http.MethodGet, "/api/sync/status", nil)
	expectStatus(t, w, http.StatusOK)
	out := decode[struct {
		TotalAssets    int64  `json:"total_assets"`
		DiskUsageBytes *int64 `json:"disk_usage_bytes"`
	}](t, w)
	if out.DiskUsageBytes == nil || *out.DiskUsageBytes != 10 {
		t.Errorf("disk_usage_bytes = %v", out.DiskUsageBytes)
	}
}

func TestWatchDirectories(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &config.Config{}
	mock := &mockWatchService{}
	h := newHarness(t, nil, WithWatch(mock), WithConfig(configPath, cfg))

	w := h.do(http.MethodPost, "/api/watch/directories", map[string]any{"path": dir, "sync": false})
	expectStatus(t, w, http.StatusCreated)
	if len(mock.Directories()) != 1 {
		t.Errorf("expected 1 directory, got %v", mock.Directories())
	}
	saved, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	if !bytes.Contains(saved, []byte(dir)) {
		t.Errorf("saved config missing %s:\n%s", dir, saved)
	}

	w = h.do(http.MethodGet, "/api/watch/directories", nil)
	expectStatus(t, w, http.StatusOK)
	if out := decode[map[string][]string](t, w); len(out["directories"]) != 1 {
		t.Errorf("directories = %v", out)
	}

	expectStatus(t, h.do(http.MethodPost, "/api/watch/directories", map[string]any{"path": dir + "/nonexistent"}), http.StatusNotFound)
	expectStatus(t, h.do(http.MethodPost, "/api/watch/directories", map[string]any{}), http.StatusBadRequest)

	expectStatus(t, h.do(http.MethodDelete, "/api/watch/directories?path="+dir, nil), http.StatusOK)
	if len(mock.Directories()) != 0 {
		t.Errorf("expected 0 directories, got %v", mock.Directories())
	}
}

func TestWatchDirectories_NotEnabled(t *testing.T) {
	h := newHarness(t, nil)
	expectStatus(t, h.do(http.MethodGet, "/api/watch/directories", nil), http.StatusNotImplemented)
}
