package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kura/internal/filter"
	"github.com/hyperjump/kura/internal/lexical"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/vector"
)

// sqliteInChunk bounds the number of ids bound into one IN list.
const sqliteInChunk = 500

// SQLiteStorage implements Storage on an embedded SQLite database. Vectors are
// stored as little-endian blobs and scored in process; trigram candidates come
// from a bleve side index kept in step with search_text.
type SQLiteStorage struct {
	*catalog
	db               *sql.DB
	dbPath           string
	indexPath        string
	trigrams         *lexical.TrigramIndex
	trigramThreshold float64
	prefilterSize    int

	closeOnce sync.Once
	closeErr  error
}

// SQLiteOption configures SQLiteStorage.
type SQLiteOption func(*SQLiteStorage)

// WithTrigramThreshold sets the minimum similarity for trigram candidates.
func WithTrigramThreshold(t float64) SQLiteOption {
	return func(s *SQLiteStorage) { s.trigramThreshold = t }
}

// WithPrefilterSize caps how many ids the trigram index hands to the exact scorer.
func WithPrefilterSize(n int) SQLiteOption {
	return func(s *SQLiteStorage) { s.prefilterSize = n }
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist. An empty
// indexPath keeps the trigram index in memory; it is rebuilt from the table
// when empty.
func NewSQLiteStorage(dbPath, indexPath string, opts ...SQLiteOption) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if indexPath != "" {
		if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	trigrams, err := lexical.NewTrigramIndex(indexPath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStorage{
		db:               db,
		dbPath:           dbPath,
		indexPath:        indexPath,
		trigrams:         trigrams,
		trigramThreshold: lexical.DefaultThreshold,
		prefilterSize:    10000,
	}
	s.catalog = &catalog{
		db: sqlConn{db},
		codec: codec{
			dialect:     filter.SQLite,
			strings:     func(v []string) any { return jsonStrings(v) },
			stringsDest: func(p *[]string) any { return (*jsonStrings)(p) },
			document:    sqliteDocument,
			vector:      func(v []float32) any { return vector.Encode(v) },
		},
		index: trigrams,
	}
	for _, opt := range opts {
		opt(s)
	}

	if n, err := trigrams.Count(); err == nil && n == 0 {
		if err := s.RebuildTrigramIndex(context.Background()); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	sections := make([]string, len(models.SectionColumns))
	for i, col := range models.SectionColumns {
		sections[i] = col + " TEXT,"
	}
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL UNIQUE,
		source_type TEXT,
		filename TEXT NOT NULL,
		content_type TEXT,
		media_type TEXT,
		file_size INTEGER,
		width INTEGER,
		height INTEGER,
		md5_checksum TEXT,
		album_path TEXT,
		album_name TEXT,
		source_tags TEXT,
		source_keywords TEXT,
		approval_status TEXT,
		owner_name TEXT,
		thumbnail_url TEXT,
		full_url TEXT,
		source_preview_url TEXT,
		asset_type TEXT,
		reusability_score INTEGER,
		` + strings.Join(sections, "\n\t\t") + `
		auto_tags TEXT,
		semantic_description TEXT,
		search_queries TEXT,
		search_text TEXT,
		embedding BLOB,
		embedding_version INTEGER,
		processing_status TEXT NOT NULL DEFAULT 'pending',
		processing_error TEXT,
		analyzed_at TIMESTAMP,
		indexed_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_assets_status ON assets(processing_status);
	CREATE INDEX IF NOT EXISTS idx_assets_album ON assets(album_name);
	CREATE INDEX IF NOT EXISTS idx_assets_type ON assets(asset_type);
	CREATE INDEX IF NOT EXISTS idx_assets_created_at ON assets(created_at);

	CREATE TABLE IF NOT EXISTS sync_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// RebuildTrigramIndex re-reads every search_text into the trigram index.
func (s *SQLiteStorage) RebuildTrigramIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, search_text FROM assets WHERE search_text IS NOT NULL")
	if err != nil {
		return fmt.Errorf("failed to read search text: %w", err)
	}
	defer rows.Close()

	batch := make(map[string]string)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return err
		}
		batch[id] = text
		if len(batch) == sqliteInChunk {
			if err := s.trigrams.IndexBatch(batch); err != nil {
				return fmt.Errorf("failed to rebuild trigram index: %w", err)
			}
			batch = make(map[string]string)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		if err := s.trigrams.IndexBatch(batch); err != nil {
			return fmt.Errorf("failed to rebuild trigram index: %w", err)
		}
	}
	return nil
}

// SemanticCandidates scores every embedded asset matching pred by cosine
// similarity and returns the best limit.
func (s *SQLiteStorage) SemanticCandidates(ctx context.Context, vec []float32, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error) {
	where, args := filter.Where(pred, filter.SQLite, 1, "embedding IS NOT NULL")
	rows, err := s.db.QueryContext(ctx, "SELECT "+assetColumns+", embedding FROM assets WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("semantic query failed: %w", err)
	}
	defer rows.Close()

	var out []*models.ScoredAsset
	for rows.Next() {
		var blob []byte
		a, err := s.scanAsset(rows, &blob)
		if err != nil {
			return nil, err
		}
		emb, err := vector.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", a.ID, err)
		}
		score, err := vector.Cosine(vec, emb)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", a.ID, err)
		}
		out = append(out, &models.ScoredAsset{Asset: a, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topScored(out, limit), nil
}

// TrigramCandidates asks the trigram index for ids sharing any trigram with
// query, then scores those rows exactly and keeps the ones at or above the
// threshold.
func (s *SQLiteStorage) TrigramCandidates(ctx context.Context, query string, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error) {
	m := lexical.NewMatcher(query, s.trigramThreshold)
	if m.Empty() {
		return nil, nil
	}
	ids, err := s.trigrams.Candidates(ctx, query, s.prefilterSize)
	if err != nil {
		return nil, err
	}

	var out []*models.ScoredAsset
	for start := 0; start < len(ids); start += sqliteInChunk {
		end := min(start+sqliteInChunk, len(ids))
		chunk := ids[start:end]
		base := []string{"search_text IS NOT NULL", "id IN (" + placeholders(len(chunk)) + ")"}
		where, predArgs := filter.Where(pred, filter.SQLite, 1, base...)
		args := make([]any, 0, len(chunk)+len(predArgs))
		for _, id := range chunk {
			args = append(args, id)
		}
		args = append(args, predArgs...)

		assets, err := s.queryAssets(ctx, "SELECT "+assetColumns+" FROM assets WHERE "+where, args...)
		if err != nil {
			return nil, fmt.Errorf("trigram query failed: %w", err)
		}
		for _, a := range assets {
			if score := m.Score(*a.SearchText); m.Matches(score) {
				out = append(out, &models.ScoredAsset{Asset: a, Score: score})
			}
		}
	}
	return topScored(out, limit), nil
}

// SubstringCandidates matches query inside search_text or filename. SQLite
// LIKE folds ASCII case only.
func (s *SQLiteStorage) SubstringCandidates(ctx context.Context, query string, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error) {
	pattern := lexical.LikePattern(query)
	where, predArgs := filter.Where(pred, filter.SQLite, 1,
		"search_text IS NOT NULL",
		`(search_text LIKE ? ESCAPE '\' OR filename LIKE ? ESCAPE '\')`,
	)
	args := append([]any{pattern, pattern}, predArgs...)
	args = append(args, pattern, limit)
	assets, err := s.queryAssets(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE "+where+
			` ORDER BY (filename LIKE ? ESCAPE '\') DESC, created_at DESC, id LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("substring query failed: %w", err)
	}
	out := make([]*models.ScoredAsset, len(assets))
	for i, a := range assets {
		out[i] = &models.ScoredAsset{Asset: a, Score: lexical.FallbackScore}
	}
	return out, nil
}

// Close closes the trigram index and the database. Later calls return the
// first call's result.
func (s *SQLiteStorage) Close() error {
	s.closeOnce.Do(func() {
		idxErr := s.trigrams.Close()
		if s.closeErr = s.db.Close(); s.closeErr == nil {
			s.closeErr = idxErr
		}
	})
	return s.closeErr
}

// topScored sorts by score descending, id ascending, and keeps limit rows.
func topScored(rows []*models.ScoredAsset, limit int) []*models.ScoredAsset {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Asset.ID < rows[j].Asset.ID
	})
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func sqliteDocument(d models.Document) (any, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// jsonStrings stores a string slice as a JSON array in a TEXT column.
type jsonStrings []string

func (j jsonStrings) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(j))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *jsonStrings) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*j = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into string list", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode string list: %w", err)
	}
	*j = out
	return nil
}

// sqlConn adapts *sql.DB to conn.
type sqlConn struct{ db *sql.DB }

func (c sqlConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c sqlConn) query(ctx context.Context, query string, args ...any) (rowIter, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (c sqlConn) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return c.db.QueryRowContext(ctx, query, args...)
}

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }
