package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"RegimeCast/internal/domain/models"
	domrepo "RegimeCast/internal/domain/repository"
	pkgkafka "RegimeCast/pkg/kafka"
)

// KafkaObservationsHandler decodes observation records off a topic and
// forwards them to the runner's channel.
type KafkaObservationsHandler struct {
	topic   string
	out     chan<- models.ObservationRecord
	metrics domrepo.Metrics
}

func NewKafkaObservationsHandler(topic string, out chan<- models.ObservationRecord, metrics domrepo.Metrics) *KafkaObservationsHandler {
	return &KafkaObservationsHandler{topic: topic, out: out, metrics: metrics}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, ts, values}; ts is RFC3339 or unix
// seconds, values maps node ids to labels.
func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string            `json:"symbol"`
		TS     json.RawMessage   `json:"ts"`
		Values map[string]string `json:"values"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	ts, err := parseEventTime(m.TS)
	if err != nil {
		h.metrics.RecordError("consumer_timestamp")
		return err
	}

	rec := models.ObservationRecord{Symbol: m.Symbol, Timestamp: ts, Values: m.Values}
	select {
	case h.out <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseEventTime(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad ts %q: %w", s, err)
		}
		return t, nil
	}
	var sec int64
	if err := json.Unmarshal(raw, &sec); err != nil {
		return time.Time{}, fmt.Errorf("bad ts %s", raw)
	}
	if sec > 1e11 { // ms
		return time.UnixMilli(sec).UTC(), nil
	}
	return time.Unix(sec, 0).UTC(), nil
}

var _ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)

// KafkaSource implements ObservationSource over the shared Kafka consumer.
type KafkaSource struct {
	consumer *pkgkafka.Consumer
	topic    string
	metrics  domrepo.Metrics
	records  chan models.ObservationRecord
}

func NewKafkaSource(consumer *pkgkafka.Consumer, topic string, metrics domrepo.Metrics) *KafkaSource {
	return &KafkaSource{
		consumer: consumer,
		topic:    topic,
		metrics:  metrics,
		records:  make(chan models.ObservationRecord, 256),
	}
}

func (s *KafkaSource) Stream(ctx context.Context) (<-chan models.ObservationRecord, <-chan error) {
	errCh := make(chan error, 1)

	s.consumer.RegisterHandler(NewKafkaObservationsHandler(s.topic, s.records, s.metrics))
	if err := s.consumer.Start(); err != nil {
		errCh <- err
		close(s.records)
	}
	return s.records, errCh
}

func (s *KafkaSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.consumer.Stop(ctx)
}

var _ domrepo.ObservationSource = (*KafkaSource)(nil)
