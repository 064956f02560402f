package cache

import (
	"encoding/json"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 8, 19, 7, 0, 0, 0, time.UTC)}
	return NewStore(WithClock(clock.Now)), clock
}

func TestStoreSetGet(t *testing.T) {
	s, _ := newTestStore()

	s.Set("k", json.RawMessage(`{"a":1}`), time.Minute)

	data, ok := s.Get("k")
	if !ok {
		t.Fatal("expected entry to be found")
	}
	if string(data) != `{"a":1}` {
		t.Errorf("Get() = %s, want {\"a\":1}", data)
	}
	if !s.Has("k") {
		t.Error("Has() should be true for a fresh entry")
	}

	if _, ok := s.Get("missing"); ok {
		t.Error("Get() of unknown key should miss")
	}
}

func TestStoreOverwrite(t *testing.T) {
	s, _ := newTestStore()

	s.Set("k", json.RawMessage(`1`), time.Minute)
	s.Set("k", json.RawMessage(`2`), time.Minute)

	data, _ := s.Get("k")
	if string(data) != "2" {
		t.Errorf("Get() after overwrite = %s, want 2", data)
	}
	if got := s.Stats().Size; got != 1 {
		t.Errorf("Stats().Size = %d, want 1", got)
	}
}

func TestStoreExpiry(t *testing.T) {
	s, clock := newTestStore()

	s.Set("k", json.RawMessage(`1`), time.Millisecond)
	clock.Advance(2 * time.Millisecond)

	if _, ok := s.Get("k"); ok {
		t.Error("Get() should miss after ttl")
	}
	if s.Has("k") {
		t.Error("Has() should be false after ttl")
	}
	if got := s.Stats().Size; got != 0 {
		t.Errorf("expired entry should be deleted on access, size = %d", got)
	}
}

func TestStoreExpiryBoundary(t *testing.T) {
	s, clock := newTestStore()

	s.Set("k", json.RawMessage(`1`), time.Second)
	clock.Advance(time.Second)

	// valid only while now < expiresAt
	if s.Has("k") {
		t.Error("entry should be invalid exactly at expiresAt")
	}
}

func TestStoreExpiryRealClock(t *testing.T) {
	s := NewStore()

	s.Set("k", json.RawMessage(`1`), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := s.Get("k"); ok {
		t.Error("Get() should miss after ttl")
	}
	if s.Has("k") {
		t.Error("Has() should be false after ttl")
	}
}

func TestStoreDefaultTTL(t *testing.T) {
	s, clock := newTestStore()

	s.Set("k", json.RawMessage(`1`), 0)

	clock.Advance(DefaultTTL - time.Second)
	if !s.Has("k") {
		t.Error("entry should live for the default ttl")
	}
	clock.Advance(2 * time.Second)
	if s.Has("k") {
		t.Error("entry should expire after the default ttl")
	}
}

func TestStoreSetSweepsExpired(t *testing.T) {
	s, clock := newTestStore()

	s.Set("old1", json.RawMessage(`1`), time.Second)
	s.Set("old2", json.RawMessage(`2`), time.Second)
	s.Set("keep", json.RawMessage(`3`), time.Hour)
	clock.Advance(2 * time.Second)

	if got := s.Stats().Size; got != 3 {
		t.Fatalf("no sweep should happen before the next Set, size = %d", got)
	}

	s.Set("new", json.RawMessage(`4`), time.Hour)

	if got := s.Stats().Size; got != 2 {
		t.Errorf("Set() should sweep expired entries, size = %d, want 2", got)
	}
}

func TestStoreDeleteAndClear(t *testing.T) {
	s, _ := newTestStore()

	s.Set("a", json.RawMessage(`1`), time.Minute)
	s.Set("b", json.RawMessage(`2`), time.Minute)

	s.Delete("a")
	if s.Has("a") {
		t.Error("Delete() should remove the key")
	}
	if !s.Has("b") {
		t.Error("Delete() should not touch other keys")
	}

	s.Clear()
	if got := s.Stats().Size; got != 0 {
		t.Errorf("Clear() should empty the store, size = %d", got)
	}
}
