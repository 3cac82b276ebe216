package repository

import (
	"context"

	"RegimeCast/internal/domain/models"
)

// ObservationSource feeds time-ordered evidence into the engine. The record
// channel closes when the source is exhausted; the error channel reports
// transport failures without closing the stream.
type ObservationSource interface {
	Stream(ctx context.Context) (<-chan models.ObservationRecord, <-chan error)
	Close() error
}

// MarketStream is a live tick feed used to derive observations.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// PredictionSink receives prediction records as they are produced.
type PredictionSink interface {
	Emit(ctx context.Context, p *models.PredictionRecord) error
	Close() error
}

// PredictionStore persists prediction records for later querying. Store is
// an upsert keyed by (node, step): writing a resolved copy of a record
// replaces the unresolved one.
type PredictionStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, p *models.PredictionRecord) error
	Recent(ctx context.Context, node string, limit int) ([]*models.PredictionRecord, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// CheckpointStore persists opaque engine snapshots between runs.
type CheckpointStore interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, bool, error)
}

type Metrics interface {
	RecordStep(symbol string, seconds float64)
	RecordWarning(kind string)
	RecordSkipped(node string)
	RecordPrediction(node string, correct bool)
	SetAccuracy(node string, ratio float64)
	SetEntropy(node string, value float64)
	RecordError(kind string)
}
