package marketdata

import (
	"context"
	"time"

	"RegimeCast/internal/domain/models"
	drepo "RegimeCast/internal/domain/repository"
	mid "RegimeCast/internal/middleware"
	"RegimeCast/internal/services/bars"
)

// Source adapts a live MarketStream into direction observations for one
// symbol: ticks run through the realtime pipeline, get folded into bars, and
// each completed bar is labeled against the previous close. Bars that would
// move time backwards are dropped so the engine always sees a monotonic
// series.
type Source struct {
	stream  drepo.MarketStream
	agg     *bars.Aggregator
	symbol  string
	node    string
	metrics drepo.Metrics

	prev   *models.Bar
	lastTS time.Time
}

func NewSource(stream drepo.MarketStream, tf drepo.Timeframe, symbol, node string, metrics drepo.Metrics) *Source {
	return &Source{
		stream:  stream,
		agg:     bars.NewAggregator(tf),
		symbol:  symbol,
		node:    node,
		metrics: metrics,
	}
}

func (s *Source) Stream(ctx context.Context) (<-chan models.ObservationRecord, <-chan error) {
	recordCh := make(chan models.ObservationRecord)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordCh)

		if err := s.stream.Connect(ctx); err != nil {
			errCh <- err
			return
		}
		if err := s.stream.Subscribe(ctx); err != nil {
			errCh <- err
			return
		}

		proc := mid.ProcFunc(func(ctx context.Context, t *models.Trade) error {
			if rec, ok := s.fold(t); ok {
				select {
				case recordCh <- rec:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		pipe := mid.NewRealtimePipeline(proc, s.metrics)
		pipe.Start(ctx)
		defer pipe.Stop()

		for {
			trades, errs := s.stream.Read(ctx)
		read:
			for {
				select {
				case <-ctx.Done():
					return
				case err, ok := <-errs:
					if !ok {
						break read
					}
					select {
					case errCh <- err:
					default:
					}
					break read
				case t, ok := <-trades:
					if !ok {
						break read
					}
					if t.Symbol != s.symbol {
						continue
					}
					_ = pipe.Process(ctx, t)
				}
			}

			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := s.stream.Reconnect(ctx); err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
		}
	}()

	return recordCh, errCh
}

func (s *Source) fold(t *models.Trade) (models.ObservationRecord, bool) {
	done := s.agg.Add(t)
	if done == nil {
		return models.ObservationRecord{}, false
	}
	defer func() { s.prev = done }()

	if s.prev == nil || !done.Start.After(s.lastTS) {
		return models.ObservationRecord{}, false
	}
	s.lastTS = done.Start

	return models.ObservationRecord{
		Symbol:    done.Symbol,
		Timestamp: done.Start,
		Values:    map[string]string{s.node: bars.Label(*s.prev, *done)},
	}, true
}

func (s *Source) Close() error { return s.stream.Close() }

var _ drepo.ObservationSource = (*Source)(nil)
