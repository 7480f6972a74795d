package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/castmix/pkg/audio"
)

var _ Resolver = (*CatalogResolver)(nil)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS media_assets (
    name       TEXT PRIMARY KEY,
    encoding   TEXT NOT NULL,
    data       BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS media_aliases (
    alias TEXT PRIMARY KEY,
    name  TEXT NOT NULL REFERENCES media_assets (name) ON DELETE CASCADE
);
`

// CatalogResolver looks assets up in PostgreSQL. Names are matched exactly
// first and then through the alias table.
type CatalogResolver struct {
	pool *pgxpool.Pool
}

// NewCatalogResolver connects to the catalog at dsn and creates the tables
// if they do not exist.
func NewCatalogResolver(ctx context.Context, dsn string) (*CatalogResolver, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("media catalog: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("media catalog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("media catalog: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, catalogSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("media catalog: migrate: %w", err)
	}
	return &CatalogResolver{pool: pool}, nil
}

// Resolve implements [Resolver].
func (c *CatalogResolver) Resolve(ctx context.Context, name string) (audio.Segment, error) {
	const q = `
SELECT a.encoding, a.data
FROM media_assets a
WHERE a.name = $1
UNION ALL
SELECT a.encoding, a.data
FROM media_aliases l JOIN media_assets a ON a.name = l.name
WHERE l.alias = $1
LIMIT 1`

	var (
		encoding string
		data     []byte
	)
	err := c.pool.QueryRow(ctx, q, name).Scan(&encoding, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return audio.Segment{}, &NotFoundError{Name: name, Tried: []string{"catalog"}}
	}
	if err != nil {
		return audio.Segment{}, fmt.Errorf("media catalog: resolve %q: %w", name, err)
	}
	seg, err := Decode(encoding, data)
	if err != nil {
		return audio.Segment{}, fmt.Errorf("media catalog: %q: %w", name, err)
	}
	return seg, nil
}

// Put stores or replaces an asset and its aliases.
func (c *CatalogResolver) Put(ctx context.Context, name, encoding string, data []byte, aliases ...string) error {
	if _, err := Decode(encoding, data); err != nil {
		return fmt.Errorf("media catalog: put %q: %w", name, err)
	}
	return pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		const upsert = `
INSERT INTO media_assets (name, encoding, data, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (name) DO UPDATE SET encoding = EXCLUDED.encoding, data = EXCLUDED.data, updated_at = now()`
		if _, err := tx.Exec(ctx, upsert, name, normalizeEncoding(encoding), data); err != nil {
			return fmt.Errorf("media catalog: put %q: %w", name, err)
		}
		for _, a := range aliases {
			const alias = `
INSERT INTO media_aliases (alias, name) VALUES ($1, $2)
ON CONFLICT (alias) DO UPDATE SET name = EXCLUDED.name`
			if _, err := tx.Exec(ctx, alias, a, name); err != nil {
				return fmt.Errorf("media catalog: alias %q: %w", a, err)
			}
		}
		return nil
	})
}

// Ping checks the connection. It satisfies the readiness checker signature.
func (c *CatalogResolver) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

// Close releases the connection pool.
func (c *CatalogResolver) Close() { c.pool.Close() }
