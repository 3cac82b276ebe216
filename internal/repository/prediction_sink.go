package repository

import (
	"context"

	"RegimeCast/internal/domain/models"
	"RegimeCast/internal/domain/repository"
	xhttp "RegimeCast/pkg/http"
	pkgkafka "RegimeCast/pkg/kafka"
)

// KafkaSink publishes prediction records to a Kafka topic, keyed by node so
// per-node ordering is preserved.
type KafkaSink struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSink creates a Kafka prediction sink.
func NewKafkaSink(producer *pkgkafka.Producer, topic string) repository.PredictionSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (k *KafkaSink) Emit(ctx context.Context, p *models.PredictionRecord) error {
	return k.producer.Publish(ctx, k.topic, []byte(p.Node), map[string]interface{}{
		"symbol":     p.Symbol,
		"node":       p.Node,
		"step":       p.Step,
		"ts":         p.Timestamp,
		"horizon":    p.Horizon,
		"label":      p.Label,
		"confidence": p.Confidence,
		"metric":     p.Metric,
		"probs":      p.Probabilities,
	})
}

func (k *KafkaSink) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}

// WebhookSink POSTs each prediction record to an external URL.
type WebhookSink struct {
	client *xhttp.Client
	url    string
}

// NewWebhookSink creates a webhook prediction sink.
func NewWebhookSink(client *xhttp.Client, url string) repository.PredictionSink {
	return &WebhookSink{client: client, url: url}
}

func (w *WebhookSink) Emit(ctx context.Context, p *models.PredictionRecord) error {
	return w.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    w.url,
		Body:   p,
	}, nil)
}

func (w *WebhookSink) Close() error { return nil }

// StoreSink adapts a PredictionStore into a PredictionSink so stored and
// streamed outputs share one code path in the runner.
type StoreSink struct {
	store repository.PredictionStore
}

func NewStoreSink(store repository.PredictionStore) repository.PredictionSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Emit(ctx context.Context, p *models.PredictionRecord) error {
	return s.store.Store(ctx, p)
}

func (s *StoreSink) Close() error { return s.store.Close() }
