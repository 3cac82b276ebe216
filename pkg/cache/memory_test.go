package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	ctx := context.Background()

	type payload struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	}

	if err := mc.Set(ctx, "k", payload{Name: "a", Score: 0.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got payload
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "a" || got.Score != 0.5 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestMemoryCacheBytesRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	ctx := context.Background()

	if err := mc.Set(ctx, "blob", []byte("snapshot"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got []byte
	if err := mc.Get(ctx, "blob", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "snapshot" {
		t.Fatalf("unexpected bytes %q", got)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	mc := NewMemoryCache()

	var got string
	if err := mc.Get(context.Background(), "absent", &got); err != ErrCacheMiss {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", time.Nanosecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	var got string
	if err := mc.Get(ctx, "k", &got); err != ErrCacheMiss {
		t.Fatalf("expected ErrCacheMiss for expired key, got %v", err)
	}
}
