package bars

import (
	"time"

	"RegimeCast/internal/domain/models"
	"RegimeCast/internal/domain/repository"
)

// Aggregator folds ticks into OHLCV bars per symbol. A bar is emitted when
// the first tick of the next bucket arrives; late ticks for the current
// bucket are folded in, ticks for already closed buckets are dropped.
type Aggregator struct {
	tf      repository.Timeframe
	current map[string]*models.Bar
}

func NewAggregator(tf repository.Timeframe) *Aggregator {
	return &Aggregator{
		tf:      tf,
		current: make(map[string]*models.Bar),
	}
}

// Add folds one tick and returns the completed bar, if any.
func (a *Aggregator) Add(t *models.Trade) *models.Bar {
	bucket := a.tf.Bucket(t.Timestamp)

	cur, ok := a.current[t.Symbol]
	if !ok {
		a.current[t.Symbol] = newBar(t, bucket)
		return nil
	}
	if bucket.Before(cur.Start) {
		return nil
	}
	if bucket.Equal(cur.Start) {
		fold(cur, t)
		return nil
	}

	done := *cur
	a.current[t.Symbol] = newBar(t, bucket)
	return &done
}

// Flush returns and clears the in-progress bar for a symbol.
func (a *Aggregator) Flush(symbol string) *models.Bar {
	cur, ok := a.current[symbol]
	if !ok {
		return nil
	}
	delete(a.current, symbol)
	done := *cur
	return &done
}

func newBar(t *models.Trade, bucket time.Time) *models.Bar {
	return &models.Bar{
		Start:  bucket,
		Symbol: t.Symbol,
		Open:   t.Price,
		High:   t.Price,
		Low:    t.Price,
		Close:  t.Price,
		Volume: t.Volume,
	}
}

func fold(b *models.Bar, t *models.Trade) {
	if t.Price > b.High {
		b.High = t.Price
	}
	if t.Price < b.Low {
		b.Low = t.Price
	}
	b.Close = t.Price
	b.Volume += t.Volume
}
