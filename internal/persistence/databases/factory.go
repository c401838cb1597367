package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ragorch/internal/config"
)

// NewManager constructs the lexical + vector backend pair from retrieval
// configuration. The vector backend is "memory" (default) or "qdrant";
// the lexical backend is always the in-process index — no external
// full-text engine is wired, see DESIGN.md.
func NewManager(ctx context.Context, cfg config.RetrievalConfig) (Manager, error) {
	m := Manager{Search: NewMemoryLexical()}

	switch cfg.VectorBackend {
	case "", "memory":
		m.Vector = NewMemoryVector()
	case "qdrant":
		if cfg.VectorDSN == "" {
			return Manager{}, fmt.Errorf("vector backend qdrant requires vector_dsn")
		}
		v, err := NewQdrantVector(cfg.VectorDSN, cfg.VectorCollection, cfg.VectorDimensions, cfg.VectorMetric)
		if err != nil {
			return Manager{}, fmt.Errorf("connect qdrant: %w", err)
		}
		m.Vector = v
	default:
		return Manager{}, fmt.Errorf("unsupported vector backend: %s", cfg.VectorBackend)
	}
	return m, nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
