package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"constellationFinder/core"
)

// SQLiteStore 单机部署用的嵌入式存储
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// 单写连接，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			accuracy REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS narration_queries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			location_id INTEGER NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			constellations TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_locations_owner ON locations(owner);
		CREATE INDEX IF NOT EXISTS idx_locations_created_at ON locations(created_at);
		CREATE INDEX IF NOT EXISTS idx_narration_queries_location_id ON narration_queries(location_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Backend() string { return "sqlite" }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveLocation(ctx context.Context, loc *core.LocationSample) error {
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO locations (owner, latitude, longitude, accuracy, created_at) VALUES (?, ?, ?, ?, ?)",
		nullString(loc.Owner), loc.Latitude, loc.Longitude, loc.Accuracy, loc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("location id: %w", err)
	}
	loc.ID = id
	return nil
}

func (s *SQLiteStore) GetLocation(ctx context.Context, id int64) (*core.LocationSample, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, owner, latitude, longitude, accuracy, created_at FROM locations WHERE id = ?", id)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return loc, nil
}

func (s *SQLiteStore) ListLocations(ctx context.Context, limit int) ([]core.LocationSample, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner, latitude, longitude, accuracy, created_at FROM locations ORDER BY created_at DESC, id DESC LIMIT ?",
		ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []core.LocationSample
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, *loc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteLocation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM locations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteOwner(ctx context.Context, owner string) (int, error) {
	if owner == "" {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM locations WHERE owner = ?", owner)
	if err != nil {
		return 0, fmt.Errorf("delete owner: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) SaveNarration(ctx context.Context, q *core.NarrationQuery) error {
	names, err := json.Marshal(nonNil(q.Constellations))
	if err != nil {
		return fmt.Errorf("encode constellations: %w", err)
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM locations WHERE id = ?", q.LocationID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("check location: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO narration_queries (location_id, prompt, response, constellations, created_at) VALUES (?, ?, ?, ?, ?)",
		q.LocationID, q.Prompt, q.Response, string(names), q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert narration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("narration id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	q.ID = id
	return nil
}

func (s *SQLiteStore) ListNarrations(ctx context.Context, locationID int64, limit int) ([]core.NarrationQuery, error) {
	query := "SELECT id, location_id, prompt, response, constellations, created_at FROM narration_queries"
	args := []any{}
	if locationID != 0 {
		query += " WHERE location_id = ?"
		args = append(args, locationID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, ClampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list narrations: %w", err)
	}
	defer rows.Close()

	var out []core.NarrationQuery
	for rows.Next() {
		var (
			q     core.NarrationQuery
			names string
		)
		if err := rows.Scan(&q.ID, &q.LocationID, &q.Prompt, &q.Response, &names, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan narration: %w", err)
		}
		if err := json.Unmarshal([]byte(names), &q.Constellations); err != nil {
			return nil, fmt.Errorf("decode constellations: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (*core.LocationSample, error) {
	var (
		loc   core.LocationSample
		owner sql.NullString
	)
	if err := row.Scan(&loc.ID, &owner, &loc.Latitude, &loc.Longitude, &loc.Accuracy, &loc.CreatedAt); err != nil {
		return nil, err
	}
	loc.Owner = owner.String
	return &loc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
