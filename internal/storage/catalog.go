package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hyperjump/kura/internal/filter"
	"github.com/hyperjump/kura/internal/models"
)

// assetColumns is every column except the embedding, in scanAsset order.
var assetColumns = strings.Join(append(append([]string{
	"id", "source_id", "source_type", "filename", "content_type", "media_type",
	"file_size", "width", "height", "md5_checksum", "album_path", "album_name",
	"source_tags", "source_keywords", "approval_status", "owner_name",
	"thumbnail_url", "full_url", "source_preview_url", "asset_type", "reusability_score",
}, models.SectionColumns...),
	"auto_tags", "semantic_description", "search_queries", "search_text", "embedding_version",
	"processing_status", "processing_error", "analyzed_at", "indexed_at", "created_at", "updated_at",
), ", ")

// unclassifiedKey labels assets without an asset type in distributions.
const unclassifiedKey = "unclassified"

type rowScanner interface {
	Scan(dest ...any) error
}

type rowIter interface {
	rowScanner
	Next() bool
	Err() error
	Close()
}

// conn is the small surface the catalog needs from database/sql or pgxpool.
type conn interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rowIter, error)
	queryRow(ctx context.Context, query string, args ...any) rowScanner
}

// codec holds the per-dialect encodings of arrays, documents and vectors.
type codec struct {
	dialect     filter.Dialect
	strings     func([]string) any
	stringsDest func(*[]string) any
	document    func(models.Document) (any, error)
	vector      func([]float32) any
}

// textIndex is kept in step with search_text when a backend needs a side index.
type textIndex interface {
	Index(id, text string) error
	Delete(id string) error
}

// catalog implements the dialect-neutral part of Storage. Queries are written
// with ? placeholders and rebound for Postgres.
type catalog struct {
	db    conn
	codec codec
	index textIndex
}

func (c *catalog) rebind(query string) string {
	if c.codec.dialect != filter.Postgres {
		return query
	}
	var b strings.Builder
	n := 1
	for _, r := range query {
		if r == '?' {
			b.WriteString("$" + strconv.Itoa(n))
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *catalog) exec(ctx context.Context, query string, args ...any) (int64, error) {
	return c.db.exec(ctx, c.rebind(query), args...)
}

func (c *catalog) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return c.db.queryRow(ctx, c.rebind(query), args...)
}

func (c *catalog) queryAssets(ctx context.Context, query string, args ...any) ([]*models.Asset, error) {
	rows, err := c.db.query(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Asset
	for rows.Next() {
		a, err := c.scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// scanAsset scans assetColumns followed by extra destinations.
func (c *catalog) scanAsset(row rowScanner, extra ...any) (*models.Asset, error) {
	a := &models.Asset{}
	var status string
	raw := make([][]byte, len(models.SectionColumns))

	dest := []any{
		&a.ID, &a.SourceID, &a.SourceType, &a.Filename, &a.ContentType, &a.MediaType,
		&a.FileSize, &a.Width, &a.Height, &a.MD5Checksum, &a.AlbumPath, &a.AlbumName,
		c.codec.stringsDest(&a.SourceTags), c.codec.stringsDest(&a.SourceKeywords),
		&a.ApprovalStatus, &a.OwnerName, &a.ThumbnailURL, &a.FullURL, &a.SourcePreviewURL,
		&a.AssetType, &a.ReusabilityScore,
	}
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	dest = append(dest,
		c.codec.stringsDest(&a.AutoTags), &a.SemanticDescription, c.codec.stringsDest(&a.SearchQueries),
		&a.SearchText, &a.EmbeddingVersion, &status, &a.ProcessingError,
		&a.AnalyzedAt, &a.IndexedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	a.ProcessingStatus = models.ProcessingStatus(status)
	sections := a.Sections()
	for i, b := range raw {
		doc, err := models.ParseDocument(b)
		if err != nil {
			return nil, fmt.Errorf("asset %s column %s: %w", a.ID, models.SectionColumns[i], err)
		}
		*sections[i] = doc
	}
	return a, nil
}

func (c *catalog) sectionArgs(a *models.Asset) ([]any, error) {
	args := make([]any, 0, len(models.SectionColumns))
	for i, s := range a.Sections() {
		v, err := c.codec.document(*s)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", models.SectionColumns[i], err)
		}
		args = append(args, v)
	}
	return args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// UpsertAsset inserts a new row or refreshes the registration fields of the row with
// the same source_id. Enrichment, status and embedding are left untouched on
// conflict.
func (c *catalog) UpsertAsset(ctx context.Context, a *models.Asset) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.ProcessingStatus == "" {
		a.ProcessingStatus = models.StatusPending
	}
	a.CreatedAt, a.UpdatedAt = now, now
	sections, err := c.sectionArgs(a)
	if err != nil {
		return err
	}
	cols := append(append([]string{
		"id", "source_id", "source_type", "filename", "content_type", "media_type",
		"file_size", "width", "height", "md5_checksum", "album_path", "album_name",
		"source_tags", "source_keywords", "approval_status", "owner_name",
		"thumbnail_url", "full_url", "source_preview_url", "asset_type", "reusability_score",
	}, models.SectionColumns...), "search_text", "processing_status", "created_at", "updated_at")
	args := []any{
		a.ID, a.SourceID, a.SourceType, a.Filename, a.ContentType, a.MediaType,
		a.FileSize, a.Width, a.Height, a.MD5Checksum, a.AlbumPath, a.AlbumName,
		c.codec.strings(a.SourceTags), c.codec.strings(a.SourceKeywords), a.ApprovalStatus, a.OwnerName,
		a.ThumbnailURL, a.FullURL, a.SourcePreviewURL, a.AssetType, a.ReusabilityScore,
	}
	args = append(args, sections...)
	args = append(args, a.SearchText, string(a.ProcessingStatus), now, now)

	refreshed := []string{
		"source_type", "filename", "content_type", "media_type", "file_size", "width", "height",
		"md5_checksum", "album_path", "album_name", "source_tags", "source_keywords",
		"approval_status", "owner_name", "asset_type", "search_text", "updated_at",
	}
	sets := make([]string, 0, len(refreshed)+3)
	for _, col := range refreshed {
		sets = append(sets, col+" = excluded."+col)
	}
	for _, col := range []string{"thumbnail_url", "full_url", "source_preview_url"} {
		sets = append(sets, fmt.Sprintf("%s = COALESCE(excluded.%s, assets.%s)", col, col, col))
	}

	query := fmt.Sprintf(
		`INSERT INTO assets (%s) VALUES (%s)
		 ON CONFLICT (source_id) DO UPDATE SET %s
		 RETURNING id`,
		strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(sets, ", "),
	)
	if err := c.queryRow(ctx, query, args...).Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to upsert asset %s: %w", a.SourceID, err)
	}
	return c.reindexText(a.ID, a.SearchText)
}

// GetAsset returns an asset by ID.
func (c *catalog) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	return c.getOne(ctx, "id", id)
}

// GetAssetBySourceID returns an asset by its upstream identifier.
func (c *catalog) GetAssetBySourceID(ctx context.Context, sourceID string) (*models.Asset, error) {
	return c.getOne(ctx, "source_id", sourceID)
}

func (c *catalog) getOne(ctx context.Context, column, value string) (*models.Asset, error) {
	a, err := c.scanAsset(c.queryRow(ctx, "SELECT "+assetColumns+" FROM assets WHERE "+column+" = ?", value))
	if isNoRows(err) {
		return nil, fmt.Errorf("asset %s: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateAsset writes every mutable column of a except the embedding.
func (c *catalog) UpdateAsset(ctx context.Context, a *models.Asset) error {
	sections, err := c.sectionArgs(a)
	if err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	cols := append(append([]string{
		"source_type", "filename", "content_type", "media_type", "file_size", "width", "height",
		"md5_checksum", "album_path", "album_name", "source_tags", "source_keywords",
		"approval_status", "owner_name", "thumbnail_url", "full_url", "source_preview_url",
		"asset_type", "reusability_score",
	}, models.SectionColumns...),
		"auto_tags", "semantic_description", "search_queries", "search_text",
		"processing_status", "processing_error", "analyzed_at", "updated_at",
	)
	args := []any{
		a.SourceType, a.Filename, a.ContentType, a.MediaType, a.FileSize, a.Width, a.Height,
		a.MD5Checksum, a.AlbumPath, a.AlbumName, c.codec.strings(a.SourceTags), c.codec.strings(a.SourceKeywords),
		a.ApprovalStatus, a.OwnerName, a.ThumbnailURL, a.FullURL, a.SourcePreviewURL,
		a.AssetType, a.ReusabilityScore,
	}
	args = append(args, sections...)
	args = append(args,
		c.codec.strings(a.AutoTags), a.SemanticDescription, c.codec.strings(a.SearchQueries), a.SearchText,
		string(a.ProcessingStatus), a.ProcessingError, a.AnalyzedAt, a.UpdatedAt,
		a.ID,
	)
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	n, err := c.exec(ctx, "UPDATE assets SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update asset %s: %w", a.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("asset %s: %w", a.ID, ErrNotFound)
	}
	return c.reindexText(a.ID, a.SearchText)
}

// DeleteAsset removes an asset by ID.
func (c *catalog) DeleteAsset(ctx context.Context, id string) error {
	n, err := c.exec(ctx, "DELETE FROM assets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	if c.index != nil {
		return c.index.Delete(id)
	}
	return nil
}

func (c *catalog) reindexText(id string, text *string) error {
	if c.index == nil {
		return nil
	}
	if text == nil {
		return c.index.Delete(id)
	}
	return c.index.Index(id, *text)
}

// ListAssets returns assets newest first.
func (c *catalog) ListAssets(ctx context.Context, q AssetQuery) ([]*models.Asset, error) {
	var conds []string
	var args []any
	add := func(col, v string) {
		if v != "" {
			conds = append(conds, col+" = ?")
			args = append(args, v)
		}
	}
	add("album_name", q.Album)
	add("asset_type", q.AssetType)
	add("media_type", q.MediaType)
	add("processing_status", string(q.ProcessingStatus))
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, q.Limit, q.Offset)
	return c.queryAssets(ctx,
		"SELECT "+assetColumns+" FROM assets"+where+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?", args...)
}

// ListAlbumAssets returns the assets of an album ordered by filename.
func (c *catalog) ListAlbumAssets(ctx context.Context, album string, limit, offset int) ([]*models.Asset, error) {
	return c.queryAssets(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE album_name = ? ORDER BY filename, id LIMIT ? OFFSET ?",
		album, limit, offset)
}

// ListAlbums groups assets by album name and path.
func (c *catalog) ListAlbums(ctx context.Context) ([]*models.Album, error) {
	rows, err := c.db.query(ctx, `
		SELECT album_name, album_path, COUNT(*),
		       SUM(CASE WHEN asset_type = 'template' THEN 1 ELSE 0 END)
		FROM assets
		WHERE album_name IS NOT NULL
		GROUP BY album_name, album_path
		ORDER BY album_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	defer rows.Close()

	var out []*models.Album
	for rows.Next() {
		var al models.Album
		var templates int64
		if err := rows.Scan(&al.Name, &al.Path, &al.AssetCount, &templates); err != nil {
			return nil, err
		}
		al.HasTemplates = templates > 0
		out = append(out, &al)
	}
	return out, rows.Err()
}

// AssetsByStatus returns up to limit assets in any of statuses, oldest first.
func (c *catalog) AssetsByStatus(ctx context.Context, statuses []models.ProcessingStatus, limit int) ([]*models.Asset, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, string(s))
	}
	args = append(args, limit)
	return c.queryAssets(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE processing_status IN ("+placeholders(len(statuses))+
			") ORDER BY created_at, id LIMIT ?", args...)
}

// SetEmbedding stores vec and version and marks the asset indexed.
func (c *catalog) SetEmbedding(ctx context.Context, id string, vec []float32, version int, at time.Time) error {
	n, err := c.exec(ctx, `
		UPDATE assets
		SET embedding = ?, embedding_version = ?, processing_status = ?, processing_error = NULL,
		    indexed_at = ?, updated_at = ?
		WHERE id = ?`,
		c.codec.vector(vec), version, string(models.StatusIndexed), at.UTC(), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to store embedding for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkFailed records reason and moves the asset to failed.
func (c *catalog) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := c.exec(ctx,
		"UPDATE assets SET processing_status = ?, processing_error = ?, updated_at = ? WHERE id = ?",
		string(models.StatusFailed), reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", id, err)
	}
	return nil
}

// RetryFailed moves failed assets back to pending and clears their errors.
func (c *catalog) RetryFailed(ctx context.Context) (int64, error) {
	n, err := c.exec(ctx,
		"UPDATE assets SET processing_status = ?, processing_error = NULL, updated_at = ? WHERE processing_status = ?",
		string(models.StatusPending), time.Now().UTC(), string(models.StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed assets: %w", err)
	}
	return n, nil
}

// ResetIndexed moves indexed assets back to enriched.
func (c *catalog) ResetIndexed(ctx context.Context) (int64, error) {
	n, err := c.exec(ctx,
		"UPDATE assets SET processing_status = ?, updated_at = ? WHERE processing_status = ?",
		string(models.StatusEnriched), time.Now().UTC(), string(models.StatusIndexed))
	if err != nil {
		return 0, fmt.Errorf("failed to reset indexed assets: %w", err)
	}
	return n, nil
}

// MaxEmbeddingVersion returns the highest stored version, or 1 when none.
func (c *catalog) MaxEmbeddingVersion(ctx context.Context) (int, error) {
	var v *int64
	if err := c.queryRow(ctx, "SELECT MAX(embedding_version) FROM assets").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read embedding version: %w", err)
	}
	if v == nil || *v < 1 {
		return 1, nil
	}
	return int(*v), nil
}

const targetVersionKey = "embedding_target_version"

// TargetEmbeddingVersion returns the persisted target, falling back to the
// highest stored version.
func (c *catalog) TargetEmbeddingVersion(ctx context.Context) (int, error) {
	var raw string
	err := c.queryRow(ctx, "SELECT value FROM sync_state WHERE key = ?", targetVersionKey).Scan(&raw)
	if isNoRows(err) {
		return c.MaxEmbeddingVersion(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sync state: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", targetVersionKey, raw, err)
	}
	return v, nil
}

// SetTargetEmbeddingVersion persists the version the next embedding pass writes.
func (c *catalog) SetTargetEmbeddingVersion(ctx context.Context, version int) error {
	_, err := c.exec(ctx, `
		INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		targetVersionKey, strconv.Itoa(version), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	return nil
}

// PendingAssets lists assets not yet indexed or failed, earliest stage first.
func (c *catalog) PendingAssets(ctx context.Context, limit int) ([]*models.PendingAsset, error) {
	rows, err := c.db.query(ctx, c.rebind(`
		SELECT id, filename, media_type, processing_status, created_at
		FROM assets
		WHERE processing_status NOT IN ('indexed', 'failed')
		ORDER BY CASE processing_status
		           WHEN 'pending' THEN 1
		           WHEN 'classified' THEN 2
		           WHEN 'enriched' THEN 3
		           ELSE 4
		         END, created_at, id
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending assets: %w", err)
	}
	defer rows.Close()

	out := []*models.PendingAsset{}
	for rows.Next() {
		var p models.PendingAsset
		var status string
		if err := rows.Scan(&p.ID, &p.Filename, &p.MediaType, &status, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.ProcessingStatus = models.ProcessingStatus(status)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (c *catalog) countBy(ctx context.Context, query string) (map[string]int64, []models.NamedCount, error) {
	rows, err := c.db.query(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	m := make(map[string]int64)
	var ordered []models.NamedCount
	for rows.Next() {
		var key *string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, nil, err
		}
		name := unclassifiedKey
		if key != nil {
			name = *key
		}
		m[name] += n
		ordered = append(ordered, models.NamedCount{Name: name, Count: n})
	}
	return m, ordered, rows.Err()
}

func (c *catalog) count(ctx context.Context, query string) (int64, error) {
	var n int64
	err := c.queryRow(ctx, query).Scan(&n)
	return n, err
}

// SyncStatus summarizes the pipeline.
func (c *catalog) SyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	total, err := c.count(ctx, "SELECT COUNT(*) FROM assets")
	if err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}
	byStatus, _, err := c.countBy(ctx, "SELECT processing_status, COUNT(*) FROM assets GROUP BY processing_status")
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	st := &models.SyncStatus{TotalAssets: total}
	for status, n := range byStatus {
		st.ByStatus.Set(models.ProcessingStatus(status), n)
	}

	var last time.Time
	err = c.queryRow(ctx,
		"SELECT indexed_at FROM assets WHERE indexed_at IS NOT NULL ORDER BY indexed_at DESC LIMIT 1").Scan(&last)
	switch {
	case err == nil:
		st.LastProcessed = &last
	case !isNoRows(err):
		return nil, fmt.Errorf("failed to read last indexed time: %w", err)
	}

	if st.EmbeddingVersion, err = c.MaxEmbeddingVersion(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// LibraryStats returns the detailed catalog breakdown.
func (c *catalog) LibraryStats(ctx context.Context) (*models.LibraryStats, error) {
	stats := &models.LibraryStats{}
	var err error
	if stats.TotalAssets, err = c.count(ctx, "SELECT COUNT(*) FROM assets"); err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}
	if stats.ProcessingStatus, _, err = c.countBy(ctx,
		"SELECT processing_status, COUNT(*) FROM assets GROUP BY processing_status"); err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	if stats.ByAssetType, _, err = c.countBy(ctx,
		"SELECT asset_type, COUNT(*) FROM assets GROUP BY asset_type"); err != nil {
		return nil, fmt.Errorf("failed to count asset types: %w", err)
	}
	if stats.ByMediaType, _, err = c.countBy(ctx,
		"SELECT media_type, COUNT(*) FROM assets WHERE media_type IS NOT NULL GROUP BY media_type"); err != nil {
		return nil, fmt.Errorf("failed to count media types: %w", err)
	}
	if _, stats.TopAlbums, err = c.countBy(ctx, `
		SELECT album_name, COUNT(*) AS n FROM assets
		WHERE album_name IS NOT NULL
		GROUP BY album_name ORDER BY n DESC, album_name LIMIT 20`); err != nil {
		return nil, fmt.Errorf("failed to count albums: %w", err)
	}
	if stats.TopAlbums == nil {
		stats.TopAlbums = []models.NamedCount{}
	}

	withEmbedding, err := c.count(ctx, "SELECT COUNT(*) FROM assets WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	stats.EmbeddingCoverage = coverage(withEmbedding, stats.TotalAssets)
	return stats, nil
}

func coverage(with, total int64) models.EmbeddingCoverage {
	denom := total
	if denom == 0 {
		denom = 1
	}
	pct := math.Round(float64(with)/float64(denom)*100*100) / 100
	return models.EmbeddingCoverage{WithEmbedding: with, Total: total, Percentage: pct}
}
