package usecase

import (
	"context"
	"fmt"
	"os"
	"time"

	"RegimeCast/internal/dbn"
	"RegimeCast/pkg/cache"
)

const artifactCacheTTL = time.Minute

var artifactCacheKey = cache.GenerateKey("artifact", "latest")

// Exporter serializes the live model into the portable artifact form.
type Exporter struct {
	runner *StreamRunner
	cache  cache.Service
	name   string
}

func NewExporter(runner *StreamRunner, c cache.Service, name string) *Exporter {
	return &Exporter{runner: runner, cache: c, name: name}
}

// Artifact snapshots the current model, caching briefly so repeated API
// reads do not copy every CPT each time.
func (e *Exporter) Artifact(ctx context.Context) (*dbn.Artifact, error) {
	if e.cache != nil {
		var cached dbn.Artifact
		if err := e.cache.Get(ctx, artifactCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	artifact := e.runner.Artifact(e.name)
	if e.cache != nil {
		_ = e.cache.Set(ctx, artifactCacheKey, artifact, artifactCacheTTL)
	}
	return artifact, nil
}

// ToFile writes the artifact JSON to path.
func (e *Exporter) ToFile(ctx context.Context, path string) error {
	artifact, err := e.Artifact(ctx)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact file: %w", err)
	}
	defer f.Close()

	if err := artifact.Encode(f); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}
