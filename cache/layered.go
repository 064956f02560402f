package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Layered fronts an optional Persister with the in-memory Store.
// Reads try memory first and promote fresh persisted entries; writes go to
// both tiers.
type Layered struct {
	mem  *Store
	disk Persister
	log  zerolog.Logger
}

// NewLayered combines a memory store with a persistent tier.
// p may be nil, in which case only the memory store is used.
func NewLayered(mem *Store, p Persister, log zerolog.Logger) *Layered {
	if mem == nil {
		mem = NewStore()
	}
	return &Layered{
		mem:  mem,
		disk: p,
		log:  log.With().Str("component", "cache").Logger(),
	}
}

// Memory returns the in-memory tier
func (l *Layered) Memory() *Store {
	return l.mem
}

// Lookup returns a fresh payload for key from either tier
func (l *Layered) Lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	if data, ok := l.mem.Get(key); ok {
		return data, true
	}
	if l.disk == nil {
		return nil, false
	}

	entry, err := l.disk.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			l.log.Warn().Err(err).Str("key", key).Msg("Failed to read persistent cache")
		}
		return nil, false
	}

	now := l.mem.now()
	if !entry.Valid(now) {
		return nil, false
	}

	l.mem.Set(key, entry.Data, entry.ExpiresAt.Sub(now))
	l.log.Debug().Str("key", key).Msg("Promoted persisted entry")
	return entry.Data, true
}

// Save writes data to both tiers
func (l *Layered) Save(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l.mem.Set(key, data, ttl)
	if l.disk == nil {
		return
	}

	now := l.mem.now()
	entry := &Entry{Data: data, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	if err := l.disk.Save(ctx, key, entry); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("Failed to persist cache entry")
	}
}

// Stale returns a payload for key for use when the upstream cannot be
// reached. Persisted entries are returned regardless of expiry; the memory
// tier drops expired entries, so without a persister only fresh data is
// available.
func (l *Layered) Stale(ctx context.Context, key string) (json.RawMessage, bool) {
	if data, ok := l.mem.Get(key); ok {
		return data, true
	}
	if l.disk == nil {
		return nil, false
	}
	entry, err := l.disk.Load(ctx, key)
	if err != nil || len(entry.Data) == 0 {
		return nil, false
	}
	return entry.Data, true
}
