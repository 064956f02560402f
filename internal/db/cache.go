package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/briangreenhill/tickerscope/cache"
	"github.com/jackc/pgx/v5"
)

type CacheEntry struct {
	Key       string
	Data      []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

const getCacheEntry = `
SELECT key, data, created_at, expires_at FROM ticker_cache
WHERE key = $1
`

func (q *Queries) GetCacheEntry(ctx context.Context, key string) (CacheEntry, error) {
	row := q.db.QueryRow(ctx, getCacheEntry, key)
	var i CacheEntry
	err := row.Scan(&i.Key, &i.Data, &i.CreatedAt, &i.ExpiresAt)
	return i, err
}

const upsertCacheEntry = `
INSERT INTO ticker_cache (key, data, created_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE SET
	data = EXCLUDED.data,
	created_at = EXCLUDED.created_at,
	expires_at = EXCLUDED.expires_at
`

type UpsertCacheEntryParams struct {
	Key       string
	Data      []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (q *Queries) UpsertCacheEntry(ctx context.Context, arg UpsertCacheEntryParams) error {
	_, err := q.db.Exec(ctx, upsertCacheEntry, arg.Key, arg.Data, arg.CreatedAt, arg.ExpiresAt)
	return err
}

const deleteExpiredCacheEntries = `
DELETE FROM ticker_cache WHERE expires_at <= $1
`

func (q *Queries) DeleteExpiredCacheEntries(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteExpiredCacheEntries, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const countCacheEntries = `
SELECT count(*) FROM ticker_cache
`

func (q *Queries) CountCacheEntries(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countCacheEntries).Scan(&n)
	return n, err
}

// CacheStore persists cache entries in Postgres. It satisfies cache.Persister.
type CacheStore struct {
	q *Queries
}

func NewCacheStore(q *Queries) *CacheStore {
	return &CacheStore{q: q}
}

func (s *CacheStore) Load(ctx context.Context, key string) (*cache.Entry, error) {
	row, err := s.q.GetCacheEntry(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("load cache entry: %w", err)
	}
	return &cache.Entry{
		Data:      json.RawMessage(row.Data),
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

func (s *CacheStore) Save(ctx context.Context, key string, e *cache.Entry) error {
	if !json.Valid(e.Data) {
		return fmt.Errorf("save cache entry %q: payload is not JSON", key)
	}
	err := s.q.UpsertCacheEntry(ctx, UpsertCacheEntryParams{
		Key:       key,
		Data:      e.Data,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}
	return nil
}

// Purge removes entries that expired before now
func (s *CacheStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	return s.q.DeleteExpiredCacheEntries(ctx, now)
}

// Count returns the number of persisted entries, expired ones included
func (s *CacheStore) Count(ctx context.Context) (int64, error) {
	return s.q.CountCacheEntries(ctx)
}
