package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"RegimeCast/internal/dbn"
	"RegimeCast/internal/domain/models"
)

type countingMetrics struct {
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) RecordStep(string, float64)     {}
func (m *countingMetrics) RecordWarning(string)           {}
func (m *countingMetrics) RecordSkipped(string)           {}
func (m *countingMetrics) RecordPrediction(string, bool)  {}
func (m *countingMetrics) SetAccuracy(string, float64)    {}
func (m *countingMetrics) SetEntropy(string, float64)     {}
func (m *countingMetrics) RecordError(kind string)        { m.errors[kind]++ }

func TestKafkaObservationsHandler(t *testing.T) {
	out := make(chan models.ObservationRecord, 1)
	h := NewKafkaObservationsHandler("observations", out, newCountingMetrics())

	if h.Topic() != "observations" {
		t.Fatalf("unexpected topic %q", h.Topic())
	}

	msg := []byte(`{"symbol":"SPY","ts":"2024-01-02T09:30:00Z","values":{"price_move":"up"}}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rec := <-out
	if rec.Symbol != "SPY" {
		t.Fatalf("unexpected symbol %q", rec.Symbol)
	}
	if rec.Values[dbn.NodePriceMove] != dbn.LabelUp {
		t.Fatalf("unexpected values %v", rec.Values)
	}
	if !rec.Timestamp.Equal(time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", rec.Timestamp)
	}
}

func TestKafkaObservationsHandlerBadPayload(t *testing.T) {
	out := make(chan models.ObservationRecord, 1)
	m := newCountingMetrics()
	h := NewKafkaObservationsHandler("observations", out, m)

	if err := h.Handle(context.Background(), []byte(`{not json`)); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if m.errors["consumer_unmarshal"] != 1 {
		t.Fatalf("expected unmarshal error recorded, got %v", m.errors)
	}

	if err := h.Handle(context.Background(), []byte(`{"symbol":"SPY","ts":"soon","values":{}}`)); err == nil {
		t.Fatal("expected timestamp error")
	}
	if m.errors["consumer_timestamp"] != 1 {
		t.Fatalf("expected timestamp error recorded, got %v", m.errors)
	}
}

func TestParseEventTime(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Time
	}{
		{`"2024-01-02T09:30:00Z"`, time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)},
		{`1704187800`, time.Unix(1704187800, 0).UTC()},
		{`1704187800123`, time.UnixMilli(1704187800123).UTC()},
	}
	for _, tc := range cases {
		got, err := parseEventTime(json.RawMessage(tc.raw))
		if err != nil {
			t.Fatalf("parse %s: %v", tc.raw, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("parse %s: got %v, want %v", tc.raw, got, tc.want)
		}
	}

	if _, err := parseEventTime(json.RawMessage(`true`)); err == nil {
		t.Fatal("expected error for bad ts")
	}
}
