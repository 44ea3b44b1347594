// Package pgcache is a Postgres-backed geocore.Cache so several processes
// can share resolved catalog records.
package pgcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Canadian-Geospatial-Platform/geoview-sub011/geocore"
)

const logPrefix = "geocore:pgcache"

const schemaSQL = `CREATE TABLE IF NOT EXISTS geocore_records (
	id         text        NOT NULL,
	lang       text        NOT NULL,
	config     jsonb       NOT NULL,
	fetched_at timestamptz NOT NULL,
	PRIMARY KEY (id, lang)
)`

const loadSQL = `SELECT config, fetched_at FROM geocore_records WHERE id = $1 AND lang = $2`

const saveSQL = `INSERT INTO geocore_records (id, lang, config, fetched_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id, lang) DO UPDATE SET config = EXCLUDED.config, fetched_at = EXCLUDED.fetched_at`

// DB is the subset of pgxpool.Pool the cache uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Cache stores records in the geocore_records table.
type Cache struct {
	db DB
}

var _ geocore.Cache = (*Cache)(nil)

// New wraps an existing pool or connection.
func New(db DB) *Cache {
	return &Cache{db: db}
}

// Open connects to dsn, verifies connectivity and ensures the table exists.
// The returned close func releases the pool.
func Open(ctx context.Context, dsn string) (*Cache, func(), error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}
	config.MaxConns = 8
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	cache := New(pool)
	if err := cache.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	slog.Info(fmt.Sprintf("%s - catalog cache ready", logPrefix))
	return cache, pool.Close, nil
}

// EnsureSchema creates the cache table when missing.
func (c *Cache) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%s - ensure schema failed: %w", logPrefix, err)
	}
	return nil
}

func (c *Cache) Load(ctx context.Context, id, lang string) (geocore.Record, bool, error) {
	if _, err := geocore.CacheKey(id, lang); err != nil {
		return geocore.Record{}, false, err
	}
	var (
		raw       []byte
		fetchedAt time.Time
	)
	err := c.db.QueryRow(ctx, loadSQL, id, lang).Scan(&raw, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return geocore.Record{}, false, nil
	}
	if err != nil {
		return geocore.Record{}, false, fmt.Errorf("%s - load %s/%s failed: %w", logPrefix, id, lang, err)
	}
	return geocore.Record{ID: id, Lang: lang, Config: json.RawMessage(raw), FetchedAt: fetchedAt}, true, nil
}

func (c *Cache) Save(ctx context.Context, record geocore.Record) error {
	if _, err := geocore.CacheKey(record.ID, record.Lang); err != nil {
		return err
	}
	if !json.Valid(record.Config) {
		return fmt.Errorf("%s - record %s/%s holds invalid JSON", logPrefix, record.ID, record.Lang)
	}
	fetchedAt := record.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	if _, err := c.db.Exec(ctx, saveSQL, record.ID, record.Lang, []byte(record.Config), fetchedAt.UTC()); err != nil {
		return fmt.Errorf("%s - save %s/%s failed: %w", logPrefix, record.ID, record.Lang, err)
	}
	return nil
}
