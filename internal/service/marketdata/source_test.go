package marketdata

import (
	"testing"
	"time"

	"RegimeCast/internal/dbn"
	"RegimeCast/internal/domain/models"
	drepo "RegimeCast/internal/domain/repository"
)

func trade(sec int64, price float64) *models.Trade {
	return &models.Trade{
		Symbol:    "SPY",
		Price:     price,
		Volume:    1,
		Timestamp: time.Unix(sec, 0).UTC(),
	}
}

func TestFoldEmitsLabeledBars(t *testing.T) {
	s := NewSource(nil, drepo.TF1m, "SPY", dbn.NodePriceMove, nil)

	// First bucket opens, nothing emitted yet.
	if _, ok := s.fold(trade(0, 100)); ok {
		t.Fatal("no record before the first bar closes")
	}
	// First bar closes: only seeds the baseline, no previous close to label
	// against.
	if _, ok := s.fold(trade(60, 102)); ok {
		t.Fatal("first completed bar should only seed the baseline")
	}
	// Second bar closes at 102 vs baseline 100.
	rec, ok := s.fold(trade(120, 95))
	if !ok {
		t.Fatal("expected a record for the second completed bar")
	}
	if rec.Values[dbn.NodePriceMove] != dbn.LabelUp {
		t.Fatalf("expected up, got %v", rec.Values)
	}
	if !rec.Timestamp.Equal(time.Unix(60, 0).UTC()) {
		t.Fatalf("record timestamp should be the bar start, got %v", rec.Timestamp)
	}

	// Third bar closes at 95 vs previous close 102.
	rec, ok = s.fold(trade(180, 96))
	if !ok {
		t.Fatal("expected a record for the third completed bar")
	}
	if rec.Values[dbn.NodePriceMove] != dbn.LabelDown {
		t.Fatalf("expected down, got %v", rec.Values)
	}
}

func TestFoldIgnoresIntraBarTicks(t *testing.T) {
	s := NewSource(nil, drepo.TF1m, "SPY", dbn.NodePriceMove, nil)

	s.fold(trade(0, 100))
	if _, ok := s.fold(trade(10, 101)); ok {
		t.Fatal("intra-bar tick should not emit")
	}
	if _, ok := s.fold(trade(30, 99)); ok {
		t.Fatal("intra-bar tick should not emit")
	}
}
