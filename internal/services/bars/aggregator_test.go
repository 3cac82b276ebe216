package bars

import (
	"testing"
	"time"

	"RegimeCast/internal/domain/models"
	"RegimeCast/internal/domain/repository"
)

func tick(symbol string, sec int64, price, volume float64) *models.Trade {
	return &models.Trade{
		Symbol:    symbol,
		Price:     price,
		Volume:    volume,
		Timestamp: time.Unix(sec, 0).UTC(),
	}
}

func TestAggregatorFoldsSameBucket(t *testing.T) {
	agg := NewAggregator(repository.TF1m)

	if done := agg.Add(tick("SPY", 0, 100, 1)); done != nil {
		t.Fatalf("first tick should open a bar, got %+v", done)
	}
	if done := agg.Add(tick("SPY", 10, 103, 2)); done != nil {
		t.Fatalf("same-bucket tick should not emit, got %+v", done)
	}
	if done := agg.Add(tick("SPY", 20, 99, 1)); done != nil {
		t.Fatalf("same-bucket tick should not emit, got %+v", done)
	}

	done := agg.Add(tick("SPY", 60, 101, 1))
	if done == nil {
		t.Fatal("next-bucket tick should emit the previous bar")
	}
	if done.Open != 100 || done.High != 103 || done.Low != 99 || done.Close != 99 {
		t.Fatalf("unexpected OHLC %+v", done)
	}
	if done.Volume != 4 {
		t.Fatalf("expected volume 4, got %v", done.Volume)
	}
	if !done.Start.Equal(time.Unix(0, 0).UTC()) {
		t.Fatalf("unexpected bar start %v", done.Start)
	}
}

func TestAggregatorDropsStaleTicks(t *testing.T) {
	agg := NewAggregator(repository.TF1m)

	agg.Add(tick("SPY", 120, 100, 1))
	if done := agg.Add(tick("SPY", 30, 50, 1)); done != nil {
		t.Fatalf("stale tick should be dropped, got %+v", done)
	}

	done := agg.Add(tick("SPY", 180, 101, 1))
	if done == nil {
		t.Fatal("expected completed bar")
	}
	if done.Low != 100 {
		t.Fatalf("stale tick leaked into the bar: %+v", done)
	}
}

func TestAggregatorPerSymbol(t *testing.T) {
	agg := NewAggregator(repository.TF1m)

	agg.Add(tick("SPY", 0, 100, 1))
	agg.Add(tick("QQQ", 0, 400, 1))

	done := agg.Add(tick("SPY", 60, 101, 1))
	if done == nil || done.Symbol != "SPY" {
		t.Fatalf("expected SPY bar, got %+v", done)
	}
	if done := agg.Add(tick("QQQ", 30, 401, 1)); done != nil {
		t.Fatalf("QQQ still in its first bucket, got %+v", done)
	}
}

func TestAggregatorFlush(t *testing.T) {
	agg := NewAggregator(repository.TF1m)

	if done := agg.Flush("SPY"); done != nil {
		t.Fatalf("flush of unknown symbol should be nil, got %+v", done)
	}

	agg.Add(tick("SPY", 0, 100, 1))
	done := agg.Flush("SPY")
	if done == nil || done.Close != 100 {
		t.Fatalf("expected in-progress bar, got %+v", done)
	}
	if done := agg.Flush("SPY"); done != nil {
		t.Fatalf("second flush should be nil, got %+v", done)
	}
}
