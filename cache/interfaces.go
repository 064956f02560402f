// Package cache provides the in-memory TTL store used for API responses,
// canonical request keys, and optional persistent tiers behind the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Persister when no entry exists for a key
	ErrNotFound = errors.New("cache entry not found")
)

// Entry represents a cached payload with its lifetime
type Entry struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Valid reports whether the entry is still usable at now
func (e *Entry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Persister is a durable tier behind the memory store.
// Load returns expired entries too; callers decide what to do with them.
type Persister interface {
	Load(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, key string, entry *Entry) error
}
