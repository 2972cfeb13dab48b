package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/hyperjump/kura/internal/filter"
	"github.com/hyperjump/kura/internal/lexical"
	"github.com/hyperjump/kura/internal/models"
)

// PostgresConfig configures the Postgres backend.
type PostgresConfig struct {
	URL        string
	MaxConns   int32
	MinConns   int32
	Dimensions int

	// QueryTimeout becomes the session statement_timeout when positive.
	QueryTimeout time.Duration
}

// PostgresStorage implements Storage on Postgres with the pgvector and
// pg_trgm extensions. Every scoring query runs in the database.
type PostgresStorage struct {
	*catalog
	pool *pgxpool.Pool
}

// NewPostgresStorage connects and migrates the schema.
func NewPostgresStorage(ctx context.Context, cfg PostgresConfig) (*PostgresStorage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres storage requires a database URL")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.QueryTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.QueryTimeout.Milliseconds(), 10)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, pool, cfg.Dimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &PostgresStorage{
		pool: pool,
		catalog: &catalog{
			db: pgConn{pool},
			codec: codec{
				dialect:     filter.Postgres,
				strings:     func(v []string) any { return v },
				stringsDest: func(p *[]string) any { return p },
				document: func(d models.Document) (any, error) {
					if d == nil {
						return nil, nil
					}
					return map[string]any(d), nil
				},
				vector: func(v []float32) any { return pgvector.NewVector(v) },
			},
		},
	}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	if dims <= 0 {
		dims = 1536
	}
	sections := make([]string, len(models.SectionColumns))
	for i, col := range models.SectionColumns {
		sections[i] = col + " JSONB,"
	}
	_, err := pool.Exec(ctx, `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE EXTENSION IF NOT EXISTS pg_trgm;

		CREATE TABLE IF NOT EXISTS assets (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL UNIQUE,
			source_type TEXT,
			filename TEXT NOT NULL,
			content_type TEXT,
			media_type TEXT,
			file_size BIGINT,
			width INTEGER,
			height INTEGER,
			md5_checksum TEXT,
			album_path TEXT,
			album_name TEXT,
			source_tags TEXT[],
			source_keywords TEXT[],
			approval_status TEXT,
			owner_name TEXT,
			thumbnail_url TEXT,
			full_url TEXT,
			source_preview_url TEXT,
			asset_type TEXT,
			reusability_score INTEGER,
			`+strings.Join(sections, "\n\t\t\t")+`
			auto_tags TEXT[],
			semantic_description TEXT,
			search_queries TEXT[],
			search_text TEXT,
			embedding vector(`+strconv.Itoa(dims)+`),
			embedding_version INTEGER,
			processing_status TEXT NOT NULL DEFAULT 'pending',
			processing_error TEXT,
			analyzed_at TIMESTAMPTZ,
			indexed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_assets_status ON assets(processing_status);
		CREATE INDEX IF NOT EXISTS idx_assets_album ON assets(album_name);
		CREATE INDEX IF NOT EXISTS idx_assets_type ON assets(asset_type);
		CREATE INDEX IF NOT EXISTS idx_assets_created_at ON assets(created_at);
		CREATE INDEX IF NOT EXISTS idx_assets_embedding ON assets USING hnsw (embedding vector_cosine_ops);
		CREATE INDEX IF NOT EXISTS idx_assets_search_text ON assets USING gin (search_text gin_trgm_ops);

		CREATE TABLE IF NOT EXISTS sync_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func nextPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// SemanticCandidates ranks embedded assets by cosine similarity.
func (s *PostgresStorage) SemanticCandidates(ctx context.Context, vec []float32, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error) {
	where, predArgs := filter.Where(pred, filter.Postgres, 2, "embedding IS NOT NULL")
	args := append([]any{pgvector.NewVector(vec)}, predArgs...)
	args = append(args, limit)
	query := "SELECT " + assetColumns + ", 1 - (embedding <=> $1) AS score FROM assets WHERE " + where +
		" ORDER BY embedding <=> $1, id LIMIT " + nextPlaceholder(len(args))
	return s.scored(ctx, query, args)
}

// TrigramCandidates ranks assets whose search text passes the pg_trgm
// similarity threshold.
func (s *PostgresStorage) TrigramCandidates(ctx context.Context, query string, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error) {
	where, predArgs := filter.Where(pred, filter.Postgres, 2, "search_text IS NOT NULL", "search_text % $1")
	args := append([]any{query}, predArgs...)
	args = append(args, limit)
	sql := "SELECT " + assetColumns + ", similarity(search_text, $1)::float8 AS score FROM assets WHERE " + where +
		" ORDER BY score DESC, id LIMIT " + nextPlaceholder(len(args))
	return s.scored(ctx, sql, args)
}

// SubstringCandidates matches query inside search_text or filename with ILIKE.
func (s *PostgresStorage) SubstringCandidates(ctx context.Context, query string, pred *filter.Predicate, limit int) ([]*models.ScoredAsset, error) {
	where, predArgs := filter.Where(pred, filter.Postgres, 2,
		"search_text IS NOT NULL",
		`(search_text ILIKE $1 ESCAPE '\' OR filename ILIKE $1 ESCAPE '\')`,
	)
	args := append([]any{lexical.LikePattern(query)}, predArgs...)
	args = append(args, limit)
	sql := "SELECT " + assetColumns + " FROM assets WHERE " + where +
		` ORDER BY (filename ILIKE $1 ESCAPE '\') DESC, created_at DESC, id LIMIT ` + nextPlaceholder(len(args))
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("substring query failed: %w", err)
	}
	defer rows.Close()

	var out []*models.ScoredAsset
	for rows.Next() {
		a, err := s.scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, &models.ScoredAsset{Asset: a, Score: lexical.FallbackScore})
	}
	return out, rows.Err()
}

func (s *PostgresStorage) scored(ctx context.Context, sql string, args []any) ([]*models.ScoredAsset, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("candidate query failed: %w", err)
	}
	defer rows.Close()

	var out []*models.ScoredAsset
	for rows.Next() {
		var score float64
		a, err := s.scanAsset(rows, &score)
		if err != nil {
			return nil, err
		}
		out = append(out, &models.ScoredAsset{Asset: a, Score: score})
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// pgConn adapts *pgxpool.Pool to conn.
type pgConn struct{ pool *pgxpool.Pool }

func (c pgConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pgConn) query(ctx context.Context, query string, args ...any) (rowIter, error) {
	return c.pool.Query(ctx, query, args...)
}

func (c pgConn) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return c.pool.QueryRow(ctx, query, args...)
}

var (
	_ Storage = (*SQLiteStorage)(nil)
	_ Storage = (*PostgresStorage)(nil)
)
