package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"RegimeCast/internal/dbn"
	"RegimeCast/internal/domain/models"
)

func replayFactory(t *testing.T) ModelFactory {
	t.Helper()
	return func() (*dbn.Network, *dbn.Store, error) {
		return dbn.BuildStockModel(dbn.StockModelConfig{HiddenStates: 2, PriorStrength: 1, Seed: 1})
	}
}

func TestReplayFailsOnUnreadableBars(t *testing.T) {
	rep := NewReplayer(replayFactory(t), dbn.NodePriceMove, "SPY", dbn.ConfidenceMargin, nil, nil)

	_, err := rep.Run(context.Background(), models.ReplayRequest{
		Path:    filepath.Join(t.TempDir(), "missing.csv"),
		Decay:   1,
		Horizon: 1,
	})
	if err == nil {
		t.Fatal("expected an error for a missing bar file")
	}
}

func TestReplayTrainsOverBarFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	content := "timestamp,open,high,low,close,volume\n" +
		"2024-01-02T09:30:00Z,100,101,99,100.5,1200\n" +
		"2024-01-02T09:31:00Z,100.5,102,100,101.2,900\n" +
		"2024-01-02T09:32:00Z,101.2,101.5,99.8,100.1,1100\n" +
		"2024-01-02T09:33:00Z,100.1,100.9,99.9,100.7,800\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write bars: %v", err)
	}

	rep := NewReplayer(replayFactory(t), dbn.NodePriceMove, "SPY", dbn.ConfidenceMargin, nil, nil)
	result, err := rep.Run(context.Background(), models.ReplayRequest{Path: path, Decay: 1, Horizon: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// 4 bars, first seeds the baseline.
	if result.Status.Step != 3 {
		t.Fatalf("expected 3 steps, got %d", result.Status.Step)
	}
	if result.Artifact == nil || len(result.Artifact.Nodes) == 0 {
		t.Fatal("expected a trained artifact")
	}
	if result.FinishedAt.Before(result.StartedAt) {
		t.Fatalf("timestamps out of order: %+v", result)
	}
}
