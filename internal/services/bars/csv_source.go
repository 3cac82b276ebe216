package bars

import (
	"context"

	"RegimeCast/internal/domain/models"
	"RegimeCast/internal/domain/repository"
)

// CSVSource streams direction observations derived from a bar file. It
// implements repository.ObservationSource for replay and offline training.
type CSVSource struct {
	path   string
	symbol string
	node   string
}

func NewCSVSource(path, symbol, node string) *CSVSource {
	return &CSVSource{path: path, symbol: symbol, node: node}
}

func (s *CSVSource) Stream(ctx context.Context) (<-chan models.ObservationRecord, <-chan error) {
	recordCh := make(chan models.ObservationRecord)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordCh)

		series, err := LoadCSV(s.path, s.symbol)
		if err != nil {
			errCh <- err
			return
		}
		for _, rec := range Observations(s.node, series) {
			select {
			case recordCh <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return recordCh, errCh
}

func (s *CSVSource) Close() error { return nil }

var _ repository.ObservationSource = (*CSVSource)(nil)
