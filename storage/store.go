package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"constellationFinder/config"
	"constellationFinder/core"
	"constellationFinder/logging"
)

// ErrNotFound is returned when a location or narration does not exist.
var ErrNotFound = fmt.Errorf("record %w", core.ErrNotFound)

// Store 定位样本与讲解记录的持久化接口
type Store interface {
	// SaveLocation assigns ID and CreatedAt when they are zero.
	SaveLocation(ctx context.Context, loc *core.LocationSample) error
	GetLocation(ctx context.Context, id int64) (*core.LocationSample, error)
	// ListLocations returns newest first.
	ListLocations(ctx context.Context, limit int) ([]core.LocationSample, error)
	// DeleteLocation removes the location and its narration queries.
	DeleteLocation(ctx context.Context, id int64) error
	// DeleteOwner removes every location of owner and, by cascade, their queries.
	DeleteOwner(ctx context.Context, owner string) (int, error)

	// SaveNarration fails with ErrNotFound if the referenced location is absent.
	SaveNarration(ctx context.Context, q *core.NarrationQuery) error
	// ListNarrations returns newest first; locationID 0 means all locations.
	ListNarrations(ctx context.Context, locationID int64, limit int) ([]core.NarrationQuery, error)

	Backend() string
	Ping(ctx context.Context) error
	Close() error
}

// SimilarityStore 支持向量检索的存储（目前只有 postgres）
type SimilarityStore interface {
	SaveNarrationEmbedding(ctx context.Context, queryID int64, embedding []float32) error
	SimilarNarrations(ctx context.Context, queryID int64, k int) ([]core.SimilarNarration, error)
}

// Limits applied to list operations.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ClampLimit 规范化分页大小
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// NewStore picks the backend from cfg.Storage.Backend.
// An unreachable postgres falls back to memory, matching the old STORE behaviour.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		pg, err := ConnectPostgresWithRetry(ctx, cfg.Storage.PostgresURL, cfg.Storage.EmbeddingDim, 3, 2*time.Second)
		if err != nil {
			logging.Warn().Err(err).Msg("postgres unavailable, falling back to memory store")
			return NewMemoryStore(), nil
		}
		return pg, nil
	case "sqlite":
		return NewSQLiteStore(cfg.Storage.SQLitePath)
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// IsNotFound is errors.Is(err, core.ErrNotFound).
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}
