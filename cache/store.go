package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultTTL is used when Set is called without a positive ttl
const DefaultTTL = 30 * time.Minute

// Stats describes the current store contents
type Stats struct {
	Size int `json:"size"`
}

// Store is an in-process key/value store with per-entry expiration.
// Expired entries are removed lazily on access and by the sweep that runs
// on every Set.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the time source, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Set stores data under key, replacing any previous entry
func (s *Store) Set(key string, data json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[key] = &Entry{
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.sweep(now)
}

// Get returns the stored data if present and unexpired
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	return entry.Data, true
}

// Has reports whether key holds a valid entry
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.lookup(key)
	return ok
}

// Delete removes a single key
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear removes every entry
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

// Stats returns the current entry count
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Size: len(s.entries)}
}

// lookup must be called with mu held
func (s *Store) lookup(key string) (*Entry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.Valid(s.now()) {
		delete(s.entries, key)
		return nil, false
	}
	return entry, true
}

func (s *Store) sweep(now time.Time) {
	for key, entry := range s.entries {
		if !entry.Valid(now) {
			delete(s.entries, key)
		}
	}
}
