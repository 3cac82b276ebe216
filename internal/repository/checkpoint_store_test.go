package repository

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"RegimeCast/pkg/cache"
)

func TestFileCheckpointsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "checkpoint.json")
	store := NewFileCheckpoints(path)

	if _, ok, err := store.Load(context.Background()); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	want := []byte(`{"step":42}`)
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("expected a checkpoint")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}

	// Overwrite keeps only the latest snapshot.
	next := []byte(`{"step":43}`)
	if err := store.Save(context.Background(), next); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _, err = store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(got, next) {
		t.Fatalf("got %q, want %q", got, next)
	}
}

func TestRedisCheckpointsRoundTrip(t *testing.T) {
	store := NewRedisCheckpoints(cache.NewMemoryCache(), "test:checkpoint")

	if _, ok, err := store.Load(context.Background()); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	want := []byte(`{"step":42}`)
	if err := store.Save(context.Background(), want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("expected a checkpoint")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}
