package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ResultCache implements cache.Store on the cache_generation and
// cache_entries tables.
type ResultCache struct {
	db  *DB
	ttl time.Duration
}

// NewResultCache creates a SQL-backed result cache. A zero ttl disables expiry.
func NewResultCache(db *DB, ttl time.Duration) *ResultCache {
	return &ResultCache{db: db, ttl: ttl}
}

func (r *ResultCache) Generation(ctx context.Context) (uint64, error) {
	var gen int64
	err := r.db.GetContext(ctx, &gen, `SELECT generation FROM cache_generation WHERE id = 1`)
	if err != nil {
		return 0, fmt.Errorf("select generation: %w", err)
	}
	return uint64(gen), nil
}

func (r *ResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row struct {
		Payload  string `db:"payload"`
		StoredAt int64  `db:"stored_at"`
	}
	query := r.db.Rebind(`
		SELECT e.payload, e.stored_at
		FROM cache_entries e
		JOIN cache_generation g ON g.id = 1 AND e.generation = g.generation
		WHERE e.cache_key = ?`)

	err := r.db.GetContext(ctx, &row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select entry: %w", err)
	}

	if r.ttl > 0 && time.Since(time.Unix(0, row.StoredAt)) >= r.ttl {
		return nil, false, nil
	}
	return []byte(row.Payload), true, nil
}

func (r *ResultCache) Set(ctx context.Context, key string, gen uint64, payload []byte) error {
	// The insert only happens while gen is still current.
	query := r.db.Rebind(`
		INSERT INTO cache_entries (cache_key, generation, payload, stored_at)
		SELECT CAST(? AS TEXT), CAST(? AS BIGINT), CAST(? AS TEXT), CAST(? AS BIGINT)
		WHERE EXISTS (SELECT 1 FROM cache_generation WHERE id = 1 AND generation = CAST(? AS BIGINT))
		ON CONFLICT (cache_key) DO UPDATE SET
			generation = excluded.generation,
			payload    = excluded.payload,
			stored_at  = excluded.stored_at`)

	_, err := r.db.ExecContext(ctx, query, key, int64(gen), string(payload), time.Now().UnixNano(), int64(gen))
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

func (r *ResultCache) Clear(ctx context.Context) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `UPDATE cache_generation SET generation = generation + 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("bump generation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	return tx.Commit()
}
