package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"RegimeCast/internal/domain/repository"
	"RegimeCast/pkg/cache"
)

// RedisCheckpoints keeps the latest engine snapshot under a single key.
type RedisCheckpoints struct {
	cache cache.Service
	key   string
}

func NewRedisCheckpoints(c cache.Service, key string) repository.CheckpointStore {
	return &RedisCheckpoints{cache: c, key: key}
}

func (r *RedisCheckpoints) Save(ctx context.Context, data []byte) error {
	// TTL 0: checkpoints survive until overwritten.
	if err := r.cache.Set(ctx, r.key, data, 0); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (r *RedisCheckpoints) Load(ctx context.Context) ([]byte, bool, error) {
	var data []byte
	err := r.cache.Get(ctx, r.key, &data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return data, true, nil
}

// FileCheckpoints writes the snapshot to a file, replacing it atomically.
type FileCheckpoints struct {
	path string
}

func NewFileCheckpoints(path string) repository.CheckpointStore {
	return &FileCheckpoints{path: path}
}

func (f *FileCheckpoints) Save(_ context.Context, data []byte) error {
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (f *FileCheckpoints) Load(context.Context) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return data, true, nil
}
