package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"constellationFinder/core"
	"constellationFinder/logging"
)

// PostgresStore pgx 连接池实现，讲解文本的向量存放在 narration_embeddings
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

var (
	_ Store           = (*PostgresStore)(nil)
	_ SimilarityStore = (*PostgresStore)(nil)
)

// ConnectPostgresWithRetry dials and migrates, retrying while the database starts up.
func ConnectPostgresWithRetry(ctx context.Context, url string, dim, attempts int, delay time.Duration) (*PostgresStore, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		s, err := NewPostgresStore(ctx, url, dim)
		if err == nil {
			return s, nil
		}
		lastErr = err
		logging.Warn().Err(err).Int("attempt", i).Msg("postgres connect failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("postgres connect failed after %d attempts: %w", attempts, lastErr)
}

func NewPostgresStore(ctx context.Context, url string, dim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &PostgresStore{pool: pool, dim: dim}
	if err := s.ensureTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureTables(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS locations (
			id BIGSERIAL PRIMARY KEY,
			owner TEXT,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS narration_queries (
			id BIGSERIAL PRIMARY KEY,
			location_id BIGINT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			constellations TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS narration_embeddings (
			query_id BIGINT PRIMARY KEY REFERENCES narration_queries(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL
		);`, s.dim),
		"CREATE INDEX IF NOT EXISTS idx_locations_owner ON locations(owner);",
		"CREATE INDEX IF NOT EXISTS idx_locations_created_at ON locations(created_at DESC);",
		"CREATE INDEX IF NOT EXISTS idx_narration_queries_location_id ON narration_queries(location_id);",
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Backend() string { return "postgres" }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveLocation(ctx context.Context, loc *core.LocationSample) error {
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO locations (owner, latitude, longitude, accuracy, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		nullable(loc.Owner), loc.Latitude, loc.Longitude, loc.Accuracy, loc.CreatedAt,
	).Scan(&loc.ID)
	if err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLocation(ctx context.Context, id int64) (*core.LocationSample, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT id, owner, latitude, longitude, accuracy, created_at FROM locations WHERE id = $1", id)
	loc, err := scanPgLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return loc, nil
}

func (s *PostgresStore) ListLocations(ctx context.Context, limit int) ([]core.LocationSample, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, owner, latitude, longitude, accuracy, created_at FROM locations ORDER BY created_at DESC, id DESC LIMIT $1",
		ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []core.LocationSample
	for rows.Next() {
		loc, err := scanPgLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, *loc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteLocation(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM locations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteOwner(ctx context.Context, owner string) (int, error) {
	if owner == "" {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM locations WHERE owner = $1", owner)
	if err != nil {
		return 0, fmt.Errorf("delete owner: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveNarration(ctx context.Context, q *core.NarrationQuery) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	// INSERT ... SELECT 保证位置存在时才写入
	err := s.pool.QueryRow(ctx, `
		INSERT INTO narration_queries (location_id, prompt, response, constellations, created_at)
		SELECT id, $2, $3, $4, $5 FROM locations WHERE id = $1
		RETURNING id`,
		q.LocationID, q.Prompt, q.Response, nonNil(q.Constellations), q.CreatedAt,
	).Scan(&q.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert narration: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNarrations(ctx context.Context, locationID int64, limit int) ([]core.NarrationQuery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, location_id, prompt, response, constellations, created_at
		FROM narration_queries
		WHERE $1 = 0 OR location_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, locationID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list narrations: %w", err)
	}
	defer rows.Close()

	var out []core.NarrationQuery
	for rows.Next() {
		var q core.NarrationQuery
		if err := rows.Scan(&q.ID, &q.LocationID, &q.Prompt, &q.Response, &q.Constellations, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan narration: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveNarrationEmbedding(ctx context.Context, queryID int64, embedding []float32) error {
	if len(embedding) != s.dim {
		return fmt.Errorf("embedding has %d dimensions, table expects %d", len(embedding), s.dim)
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO narration_embeddings (query_id, embedding) VALUES ($1, $2) ON CONFLICT (query_id) DO UPDATE SET embedding = EXCLUDED.embedding",
		queryID, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// SimilarNarrations 按余弦距离返回最相近的历史讲解
func (s *PostgresStore) SimilarNarrations(ctx context.Context, queryID int64, k int) ([]core.SimilarNarration, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM narration_queries WHERE id = $1)", queryID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check narration: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT q.id, q.location_id, q.prompt, q.response, q.constellations, q.created_at,
		       e.embedding <=> t.embedding AS distance
		FROM narration_embeddings e
		JOIN narration_queries q ON q.id = e.query_id
		JOIN narration_embeddings t ON t.query_id = $1
		WHERE e.query_id <> $1
		ORDER BY distance
		LIMIT $2`, queryID, k)
	if err != nil {
		return nil, fmt.Errorf("similar narrations: %w", err)
	}
	defer rows.Close()

	out := []core.SimilarNarration{}
	for rows.Next() {
		var sn core.SimilarNarration
		if err := rows.Scan(&sn.ID, &sn.LocationID, &sn.Prompt, &sn.Response, &sn.Constellations, &sn.CreatedAt, &sn.Distance); err != nil {
			return nil, fmt.Errorf("scan similar narration: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func scanPgLocation(row pgx.Row) (*core.LocationSample, error) {
	var (
		loc   core.LocationSample
		owner *string
	)
	if err := row.Scan(&loc.ID, &owner, &loc.Latitude, &loc.Longitude, &loc.Accuracy, &loc.CreatedAt); err != nil {
		return nil, err
	}
	if owner != nil {
		loc.Owner = *owner
	}
	return &loc, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
