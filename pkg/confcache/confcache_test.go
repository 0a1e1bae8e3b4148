package confcache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestMemoryGetSetInvalidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()

	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Fatalf("Get() on empty store reported a hit")
	}

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	value, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(value, []byte("v")) {
		t.Fatalf("Get() = %q, %v, %v", value, ok, err)
	}

	if err := m.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate() = %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("Get() after Invalidate reported a hit")
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	m := NewMemory()
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "k", []byte("v"), 30*time.Second); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatalf("entry expired before its TTL")
	}

	now = now.Add(31 * time.Second)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("entry survived past its TTL")
	}
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	m := NewMemory()
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	now = now.Add(24 * time.Hour)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatalf("zero-TTL entry expired")
	}
}

func TestMemorySweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	m := NewMemory()
	m.now = func() time.Time { return now }

	_ = m.Set(ctx, "stale", []byte("a"), time.Second)
	_ = m.Set(ctx, "fresh", []byte("b"), time.Hour)
	now = now.Add(2 * time.Second)

	if removed := m.Sweep(); removed != 1 {
		t.Fatalf("Sweep() = %d, expected 1", removed)
	}
	if _, ok, _ := m.Get(ctx, "fresh"); !ok {
		t.Fatalf("Sweep removed an unexpired entry")
	}
}

func TestMemoryInvalidateAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, "a", []byte("1"), time.Minute)
	_ = m.Set(ctx, "b", []byte("2"), time.Minute)

	if err := m.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll() = %v", err)
	}
	for _, key := range []string{"a", "b"} {
		if _, ok, _ := m.Get(ctx, key); ok {
			t.Fatalf("entry %q survived InvalidateAll", key)
		}
	}
}

func TestMemoryGetCopiesValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, "k", []byte("original"), time.Minute)

	value, _, _ := m.Get(ctx, "k")
	value[0] = 'X'

	again, _, _ := m.Get(ctx, "k")
	if !bytes.Equal(again, []byte("original")) {
		t.Fatalf("caller mutation leaked into the store: %q", again)
	}
}
