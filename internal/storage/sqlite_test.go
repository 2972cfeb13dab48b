package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kura/internal/filter"
	"github.com/hyperjump/kura/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "catalog.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func putAsset(t *testing.T, store *SQLiteStorage, a *models.Asset) *models.Asset {
	t.Helper()
	if err := store.UpsertAsset(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	// created_at ordering needs distinct timestamps
	time.Sleep(2 * time.Millisecond)
	return a
}

func TestSQLiteStorage_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := putAsset(t, store, &models.Asset{
		SourceID:   "canto-1",
		Filename:   "brooklyn_grand_opening.jpg",
		AlbumName:  models.Ptr("Events"),
		AssetType:  models.Ptr(models.AssetTypeInspiration),
		SourceTags: []string{"opening", "brooklyn"},
		SearchText: models.Ptr("brooklyn grand opening jpg Events"),
	})
	if a.ID == "" {
		t.Fatal("ID should be assigned")
	}

	got, err := store.GetAsset(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != a.Filename || got.SourceID != "canto-1" {
		t.Errorf("got %+v", got)
	}
	if got.ProcessingStatus != models.StatusPending {
		t.Errorf("status = %s, want pending", got.ProcessingStatus)
	}
	if len(got.SourceTags) != 2 || got.SourceTags[1] != "brooklyn" {
		t.Errorf("source_tags = %v", got.SourceTags)
	}
	if got.SourceKeywords != nil {
		t.Errorf("source_keywords should be nil, got %v", got.SourceKeywords)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should be set")
	}

	again := &models.Asset{SourceID: "canto-1", Filename: "renamed.jpg"}
	if err := store.UpsertAsset(ctx, again); err != nil {
		t.Fatal(err)
	}
	if again.ID != a.ID {
		t.Errorf("upsert by source_id should keep ID %s, got %s", a.ID, again.ID)
	}
	bySource, err := store.GetAssetBySourceID(ctx, "canto-1")
	if err != nil {
		t.Fatal(err)
	}
	if bySource.Filename != "renamed.jpg" {
		t.Errorf("filename = %s, want renamed.jpg", bySource.Filename)
	}

	if _, err := store.GetAsset(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_UpdateRoundTripsSections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := putAsset(t, store, &models.Asset{SourceID: "s1", Filename: "a.jpg"})
	a.Mood = models.Document{"energy_level": 7.0, "primary": "upbeat"}
	a.Composition = models.Document{"negative_space": map[string]any{"suitable_for_text_overlay": true}}
	a.AutoTags = []string{"coffee", "latte"}
	a.ReusabilityScore = models.Ptr(4)
	a.ProcessingStatus = models.StatusEnriched
	now := time.Now().UTC()
	a.AnalyzedAt = &now
	if err := store.UpdateAsset(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetAsset(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := got.Mood.Int("energy_level"); !ok || n != 7 {
		t.Errorf("mood.energy_level = %v, %v", n, ok)
	}
	if b, ok := got.Composition.Bool("negative_space", "suitable_for_text_overlay"); !ok || !b {
		t.Error("composition overlay flag lost")
	}
	if got.Scene != nil {
		t.Errorf("scene should stay nil, got %v", got.Scene)
	}
	if len(got.AutoTags) != 2 || models.Deref(got.ReusabilityScore) != 4 {
		t.Errorf("got auto_tags=%v reusability=%v", got.AutoTags, got.ReusabilityScore)
	}
	if got.AnalyzedAt == nil || got.ProcessingStatus != models.StatusEnriched {
		t.Errorf("got analyzed_at=%v status=%s", got.AnalyzedAt, got.ProcessingStatus)
	}

	if err := store.UpdateAsset(ctx, &models.Asset{ID: "missing", Filename: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteAsset(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetAsset(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteStorage_SemanticCandidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	near := putAsset(t, store, &models.Asset{SourceID: "1", Filename: "near.jpg", AssetType: models.Ptr("template")})
	far := putAsset(t, store, &models.Asset{SourceID: "2", Filename: "far.jpg", AssetType: models.Ptr("inspiration")})
	putAsset(t, store, &models.Asset{SourceID: "3", Filename: "unembedded.jpg"})

	at := time.Now()
	if err := store.SetEmbedding(ctx, near.ID, []float32{1, 0, 0}, 1, at); err != nil {
		t.Fatal(err)
	}
	if err := store.SetEmbedding(ctx, far.ID, []float32{0, 1, 0}, 1, at); err != nil {
		t.Fatal(err)
	}

	got, err := store.SemanticCandidates(ctx, []float32{0.9, 0.1, 0}, &filter.Predicate{}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Asset.ID != near.ID || got[0].Score <= got[1].Score {
		t.Errorf("unexpected order: %s %.3f, %s %.3f", got[0].Asset.Filename, got[0].Score, got[1].Asset.Filename, got[1].Score)
	}

	pred := filter.Build(&models.SearchFilters{AssetType: models.Ptr("inspiration")})
	got, err = store.SemanticCandidates(ctx, []float32{0.9, 0.1, 0}, pred, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Asset.ID != far.ID {
		t.Errorf("filter should keep only far.jpg, got %d rows", len(got))
	}

	limited, err := store.SemanticCandidates(ctx, []float32{1, 0, 0}, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d rows", len(limited))
	}
}

func TestSQLiteStorage_TrigramCandidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	match := putAsset(t, store, &models.Asset{SourceID: "1", Filename: "a.jpg", SearchText: models.Ptr("coffee shop interior photo")})
	putAsset(t, store, &models.Asset{SourceID: "2", Filename: "b.jpg", SearchText: models.Ptr("beach sunset")})
	putAsset(t, store, &models.Asset{SourceID: "3", Filename: "coffee.jpg"})

	got, err := store.TrigramCandidates(ctx, "coffee shop", nil, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Asset.ID != match.ID {
		t.Fatalf("expected only the coffee shop asset, got %d rows", len(got))
	}
	if got[0].Score < 0.3 || got[0].Score > 1 {
		t.Errorf("score %.3f outside [0.3, 1]", got[0].Score)
	}

	none, err := store.TrigramCandidates(ctx, "!!!", nil, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("query without trigrams should match nothing, got %d", len(none))
	}
}

func TestSQLiteStorage_TrigramIndexRebuiltOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := NewSQLiteStorage(path, "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.UpsertAsset(ctx, &models.Asset{SourceID: "1", Filename: "a.jpg", SearchText: models.Ptr("coffee shop")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStorage(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.TrigramCandidates(ctx, "coffee shop", nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected in-memory index to be rebuilt, got %d rows", len(got))
	}
}

func TestSQLiteStorage_SubstringCandidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	textOnly := putAsset(t, store, &models.Asset{SourceID: "1", Filename: "x.jpg", SearchText: models.Ptr("a latte on a table")})
	byName := putAsset(t, store, &models.Asset{SourceID: "2", Filename: "LATTE_art.jpg", SearchText: models.Ptr("drink")})
	putAsset(t, store, &models.Asset{SourceID: "3", Filename: "latte_no_text.jpg"})
	newer := putAsset(t, store, &models.Asset{SourceID: "4", Filename: "y.jpg", SearchText: models.Ptr("iced latte")})

	got, err := store.SubstringCandidates(ctx, "Latte", nil, 100)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{byName.ID, newer.ID, textOnly.ID}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].Asset.ID != id {
			t.Errorf("row %d = %s, want %s", i, got[i].Asset.Filename, id)
		}
		if got[i].Score != 0.5 {
			t.Errorf("row %d score = %v, want 0.5", i, got[i].Score)
		}
	}

	wild, err := store.SubstringCandidates(ctx, "%", nil, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(wild) != 0 {
		t.Errorf("%% should be matched literally, got %d rows", len(wild))
	}
}

func TestSQLiteStorage_NestedFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	withDate := putAsset(t, store, &models.Asset{SourceID: "1", Filename: "a.jpg", SearchText: models.Ptr("sale")})
	withDate.HardcodedElements = models.Document{"has_date": true}
	withDate.Mood = models.Document{"energy_level": 9.0}
	noDate := putAsset(t, store, &models.Asset{SourceID: "2", Filename: "b.jpg", SearchText: models.Ptr("sale")})
	noDate.HardcodedElements = models.Document{"has_date": "false"}
	noDate.Mood = models.Document{"energy_level": 3.0}
	missing := putAsset(t, store, &models.Asset{SourceID: "3", Filename: "c.jpg", SearchText: models.Ptr("sale")})
	for _, a := range []*models.Asset{withDate, noDate} {
		if err := store.UpdateAsset(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	pred := filter.Build(&models.SearchFilters{NoHardcodedDate: models.Ptr(true)})
	got, err := store.SubstringCandidates(ctx, "sale", pred, 100)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, r := range got {
		ids[r.Asset.ID] = true
	}
	if len(got) != 2 || !ids[noDate.ID] || !ids[missing.ID] {
		t.Errorf("no_hardcoded_date should keep false and missing, got %v", ids)
	}

	pred = filter.Build(&models.SearchFilters{MinEnergy: models.Ptr(5)})
	got, err = store.SubstringCandidates(ctx, "sale", pred, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Asset.ID != withDate.ID {
		t.Errorf("min_energy 5 should keep only the energetic asset, got %d rows", len(got))
	}
}

func TestSQLiteStorage_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := putAsset(t, store, &models.Asset{SourceID: "1", Filename: "a.jpg", ProcessingStatus: models.StatusClassified})
	b := putAsset(t, store, &models.Asset{SourceID: "2", Filename: "b.jpg", ProcessingStatus: models.StatusEnriched})
	c := putAsset(t, store, &models.Asset{SourceID: "3", Filename: "c.jpg"})

	todo, err := store.AssetsByStatus(ctx, []models.ProcessingStatus{models.StatusClassified, models.StatusEnriched}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(todo) != 2 || todo[0].ID != a.ID || todo[1].ID != b.ID {
		t.Fatalf("AssetsByStatus returned %d rows", len(todo))
	}

	pending, err := store.PendingAssets(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 3 || pending[0].ID != c.ID || pending[1].ID != a.ID || pending[2].ID != b.ID {
		t.Errorf("pending order wrong: %+v", pending)
	}

	if err := store.SetEmbedding(ctx, a.ID, []float32{1, 2}, 1, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(ctx, b.ID, "provider timeout"); err != nil {
		t.Fatal(err)
	}
	failed, _ := store.GetAsset(ctx, b.ID)
	if failed.ProcessingStatus != models.StatusFailed || models.Deref(failed.ProcessingError) != "provider timeout" {
		t.Errorf("got status=%s error=%v", failed.ProcessingStatus, failed.ProcessingError)
	}

	st, err := store.SyncStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalAssets != 3 || st.ByStatus.Indexed != 1 || st.ByStatus.Failed != 1 || st.ByStatus.Pending != 1 {
		t.Errorf("unexpected sync status %+v", st)
	}
	if st.LastProcessed == nil || st.EmbeddingVersion != 1 {
		t.Errorf("last processed %v, version %d", st.LastProcessed, st.EmbeddingVersion)
	}

	n, err := store.RetryFailed(ctx)
	if err != nil || n != 1 {
		t.Errorf("RetryFailed = %d, %v", n, err)
	}
	retried, _ := store.GetAsset(ctx, b.ID)
	if retried.ProcessingStatus != models.StatusPending || retried.ProcessingError != nil {
		t.Errorf("retry should clear error, got %s %v", retried.ProcessingStatus, retried.ProcessingError)
	}

	n, err = store.ResetIndexed(ctx)
	if err != nil || n != 1 {
		t.Errorf("ResetIndexed = %d, %v", n, err)
	}
	reset, _ := store.GetAsset(ctx, a.ID)
	if reset.ProcessingStatus != models.StatusEnriched {
		t.Errorf("status = %s, want enriched", reset.ProcessingStatus)
	}
}

func TestSQLiteStorage_TargetEmbeddingVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.TargetEmbeddingVersion(ctx)
	if err != nil || v != 1 {
		t.Fatalf("default target = %d, %v", v, err)
	}
	if err := store.SetTargetEmbeddingVersion(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := store.SetTargetEmbeddingVersion(ctx, 4); err != nil {
		t.Fatal(err)
	}
	v, err = store.TargetEmbeddingVersion(ctx)
	if err != nil || v != 4 {
		t.Errorf("target = %d, %v; want 4", v, err)
	}
}

func TestSQLiteStorage_BrowseAndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	putAsset(t, store, &models.Asset{SourceID: "1", Filename: "b.jpg", AlbumName: models.Ptr("Brand Kit"),
		AlbumPath: models.Ptr("Marketing/Brand Kit"), AssetType: models.Ptr("template"), MediaType: models.Ptr("image")})
	putAsset(t, store, &models.Asset{SourceID: "2", Filename: "a.jpg", AlbumName: models.Ptr("Brand Kit"),
		AlbumPath: models.Ptr("Marketing/Brand Kit"), AssetType: models.Ptr("inspiration"), MediaType: models.Ptr("image")})
	putAsset(t, store, &models.Asset{SourceID: "3", Filename: "c.mp4", AlbumName: models.Ptr("Events"),
		MediaType: models.Ptr("video")})

	albums, err := store.ListAlbums(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(albums) != 2 || albums[0].Name != "Brand Kit" || albums[0].AssetCount != 2 || !albums[0].HasTemplates {
		t.Errorf("unexpected albums %+v", albums)
	}
	if albums[1].HasTemplates || albums[1].Path != nil {
		t.Errorf("Events album: %+v", albums[1])
	}

	inAlbum, err := store.ListAlbumAssets(ctx, "Brand Kit", 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(inAlbum) != 2 || inAlbum[0].Filename != "a.jpg" {
		t.Errorf("album assets should be ordered by filename")
	}

	listed, err := store.ListAssets(ctx, AssetQuery{MediaType: "image", Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 || listed[0].Filename != "a.jpg" {
		t.Errorf("ListAssets should return newest image first, got %d rows", len(listed))
	}
	paged, _ := store.ListAssets(ctx, AssetQuery{Limit: 1, Offset: 1})
	if len(paged) != 1 || paged[0].Filename != "a.jpg" {
		t.Errorf("offset paging broken")
	}

	stats, err := store.LibraryStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalAssets != 3 || stats.ByMediaType["image"] != 2 || stats.ByAssetType["unclassified"] != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(stats.TopAlbums) != 2 || stats.TopAlbums[0].Name != "Brand Kit" {
		t.Errorf("top albums %+v", stats.TopAlbums)
	}
	if stats.EmbeddingCoverage.Total != 3 || stats.EmbeddingCoverage.Percentage != 0 {
		t.Errorf("coverage %+v", stats.EmbeddingCoverage)
	}
}

func TestCoverage(t *testing.T) {
	if c := coverage(1, 3); c.Percentage != 33.33 {
		t.Errorf("percentage = %v, want 33.33", c.Percentage)
	}
	if c := coverage(0, 0); c.Percentage != 0 {
		t.Errorf("empty catalog percentage = %v", c.Percentage)
	}
}
