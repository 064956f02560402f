package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCacheRoundTrip(t *testing.T) {
	fc, err := NewFileCacheAt(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	key := "/v3/reference/tickers?market=stocks&search=apple"
	now := time.Now()
	entry := &Entry{Data: json.RawMessage(`{"results":[]}`), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	require.NoError(t, fc.Save(ctx, key, entry))

	got, err := fc.Load(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, string(got.Data))
	assert.True(t, got.Valid(now))
}

func TestFileCacheMissing(t *testing.T) {
	fc, err := NewFileCacheAt(t.TempDir())
	require.NoError(t, err)

	_, err = fc.Load(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileCacheSanitizedCollision(t *testing.T) {
	fc, err := NewFileCacheAt(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, fc.Save(ctx, "a?b", &Entry{Data: json.RawMessage(`1`), ExpiresAt: now.Add(time.Hour)}))

	// "a_b" sanitizes to the same file name as "a?b"
	_, err = fc.Load(ctx, "a_b")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileCacheLongKey(t *testing.T) {
	fc, err := NewFileCacheAt(t.TempDir())
	require.NoError(t, err)

	key := "/v3/reference/tickers?cursor=" + strings.Repeat("x", 300)
	name := fc.fileName(key)
	assert.True(t, strings.HasPrefix(name, "hash_"))
	assert.Less(t, len(name), 100)
}

func TestLayeredPromotesFreshPersistedEntries(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 8, 19, 7, 0, 0, 0, time.UTC)}
	fc, err := NewFileCacheAt(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	writer := NewLayered(NewStore(WithClock(clock.Now)), fc, zerolog.Nop())
	writer.Save(ctx, "k", json.RawMessage(`"v"`), time.Minute)

	// a second process starts with an empty memory tier
	mem := NewStore(WithClock(clock.Now))
	reader := NewLayered(mem, fc, zerolog.Nop())

	data, ok := reader.Lookup(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `"v"`, string(data))
	assert.True(t, mem.Has("k"), "fresh persisted entry should be promoted")

	clock.Advance(2 * time.Minute)
	_, ok = NewLayered(NewStore(WithClock(clock.Now)), fc, zerolog.Nop()).Lookup(ctx, "k")
	assert.False(t, ok, "expired persisted entry must not be served as fresh")
}

func TestLayeredStale(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 8, 19, 7, 0, 0, 0, time.UTC)}
	fc, err := NewFileCacheAt(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	l := NewLayered(NewStore(WithClock(clock.Now)), fc, zerolog.Nop())
	l.Save(ctx, "k", json.RawMessage(`"v"`), time.Minute)
	clock.Advance(time.Hour)

	_, fresh := l.Lookup(ctx, "k")
	assert.False(t, fresh)

	data, ok := l.Stale(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `"v"`, string(data))
}

func TestLayeredMemoryOnly(t *testing.T) {
	l := NewLayered(nil, nil, zerolog.Nop())
	ctx := context.Background()

	_, ok := l.Lookup(ctx, "k")
	assert.False(t, ok)

	l.Save(ctx, "k", json.RawMessage(`1`), time.Minute)
	data, ok := l.Lookup(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "1", string(data))

	_, ok = l.Stale(ctx, "other")
	assert.False(t, ok)
}

func TestLayeredStaleMemoryOnlyExpires(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 8, 19, 7, 0, 0, 0, time.UTC)}
	l := NewLayered(NewStore(WithClock(clock.Now)), nil, zerolog.Nop())
	ctx := context.Background()

	l.Save(ctx, "k", json.RawMessage(`"v"`), time.Minute)
	data, ok := l.Stale(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `"v"`, string(data))

	clock.Advance(2 * time.Minute)
	_, ok = l.Stale(ctx, "k")
	assert.False(t, ok, "memory tier keeps nothing past its ttl")
}
