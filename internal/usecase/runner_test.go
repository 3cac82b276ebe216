package usecase

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"RegimeCast/internal/dbn"
	"RegimeCast/internal/domain/models"
	drepo "RegimeCast/internal/domain/repository"
	"RegimeCast/internal/services/bars"
)

type memSink struct {
	records []*models.PredictionRecord
}

func (s *memSink) Emit(_ context.Context, p *models.PredictionRecord) error {
	cp := *p
	s.records = append(s.records, &cp)
	return nil
}

func (s *memSink) Close() error { return nil }

type memCheckpoints struct {
	data []byte
}

func (s *memCheckpoints) Save(_ context.Context, data []byte) error {
	s.data = append([]byte(nil), data...)
	return nil
}

func (s *memCheckpoints) Load(_ context.Context) ([]byte, bool, error) {
	if s.data == nil {
		return nil, false, nil
	}
	return s.data, true, nil
}

func testModel(t *testing.T) (*dbn.Network, *dbn.Store) {
	t.Helper()
	net, cpts, err := dbn.BuildStockModel(dbn.StockModelConfig{
		HiddenStates:  2,
		PriorStrength: 1.0,
		PriorJitter:   0.1,
		Seed:          7,
	})
	if err != nil {
		t.Fatalf("build model: %v", err)
	}
	return net, cpts
}

func newRunner(t *testing.T, cfg RunnerConfig, sink drepo.PredictionSink, ckpts drepo.CheckpointStore) *StreamRunner {
	t.Helper()
	net, cpts := testModel(t)
	var sinks []drepo.PredictionSink
	if sink != nil {
		sinks = append(sinks, sink)
	}
	r, err := NewStreamRunner(net, cpts, cfg, sinks, ckpts, nil, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

func obs(sec int64, label string) models.ObservationRecord {
	return models.ObservationRecord{
		Symbol:    "SPY",
		Timestamp: time.Unix(sec, 0).UTC(),
		Values:    map[string]string{dbn.NodePriceMove: label},
	}
}

func TestNewStreamRunnerRejectsBadConfig(t *testing.T) {
	net, cpts := testModel(t)

	if _, err := NewStreamRunner(net, cpts, RunnerConfig{Node: "nope", Horizon: 1, Decay: 1}, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for unknown node")
	}
	if _, err := NewStreamRunner(net, cpts, RunnerConfig{Node: dbn.NodePriceMove, Horizon: -1, Decay: 1}, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for negative horizon")
	}
	if _, err := NewStreamRunner(net, cpts, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Decay: 2}, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for decay outside (0,1]")
	}
}

func TestStepEmitsForecast(t *testing.T) {
	sink := &memSink{}
	r := newRunner(t, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}, sink, nil)

	pred, err := r.Step(context.Background(), obs(60, dbn.LabelUp))
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if pred == nil {
		t.Fatal("expected a prediction")
	}
	if pred.Node != dbn.NodePriceMove || pred.Step != 1 || pred.Horizon != 1 {
		t.Fatalf("unexpected prediction %+v", pred)
	}
	if pred.Label != dbn.LabelUp && pred.Label != dbn.LabelDown {
		t.Fatalf("unexpected label %q", pred.Label)
	}
	if pred.Confidence < 0 || pred.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", pred.Confidence)
	}
	sum := 0.0
	for _, p := range pred.Probabilities {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities do not sum to 1: %v", pred.Probabilities)
	}
	if pred.Resolved() {
		t.Fatal("fresh prediction should be unresolved")
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 emitted record, got %d", len(sink.records))
	}
	if r.Belief().Step() != 1 {
		t.Fatalf("belief should be at step 1, got %d", r.Belief().Step())
	}
}

func TestPredictionsResolveAgainstArrivingObservations(t *testing.T) {
	sink := &memSink{}
	r := newRunner(t, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}, sink, nil)

	labels := []string{dbn.LabelUp, dbn.LabelUp, dbn.LabelDown, dbn.LabelUp}
	for i, label := range labels {
		if _, err := r.Step(context.Background(), obs(int64(60*(i+1)), label)); err != nil {
			t.Fatalf("step %d: %v", i+1, err)
		}
	}

	status := r.Status()
	if status.Step != 4 {
		t.Fatalf("expected step 4, got %d", status.Step)
	}
	// Predictions made at steps 1..3 resolve at steps 2..4; step 4's is pending.
	if status.Total != 3 {
		t.Fatalf("expected 3 resolved predictions, got %d", status.Total)
	}
	if status.Pending != 1 {
		t.Fatalf("expected 1 pending prediction, got %d", status.Pending)
	}
	if status.Accuracy != float64(status.Correct)/float64(status.Total) {
		t.Fatalf("accuracy %v inconsistent with %d/%d", status.Accuracy, status.Correct, status.Total)
	}

	// 4 forecast emits plus 3 resolution re-emits.
	if len(sink.records) != 7 {
		t.Fatalf("expected 7 emitted records, got %d", len(sink.records))
	}
	var resolved int
	for _, rec := range sink.records {
		if rec.Resolved() {
			resolved++
			if rec.Actual == "" || rec.Correct == nil {
				t.Fatalf("resolved record missing outcome: %+v", rec)
			}
			if (rec.Actual == rec.Label) != *rec.Correct {
				t.Fatalf("outcome inconsistent: %+v", rec)
			}
		}
	}
	if resolved != 3 {
		t.Fatalf("expected 3 resolved emits, got %d", resolved)
	}
}

func TestOutOfOrderObservationsAreDropped(t *testing.T) {
	r := newRunner(t, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}, nil, nil)

	if _, err := r.Step(context.Background(), obs(120, dbn.LabelUp)); err != nil {
		t.Fatalf("step: %v", err)
	}
	pred, err := r.Step(context.Background(), obs(60, dbn.LabelUp))
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if pred != nil {
		t.Fatalf("stale observation should not produce a prediction, got %+v", pred)
	}

	status := r.Status()
	if status.Step != 1 {
		t.Fatalf("belief advanced on stale observation: step %d", status.Step)
	}
	if status.Skipped != 1 {
		t.Fatalf("expected 1 skipped observation, got %d", status.Skipped)
	}
}

func TestUnknownValueSkipsLearningOnly(t *testing.T) {
	r := newRunner(t, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}, nil, nil)

	pred, err := r.Step(context.Background(), models.ObservationRecord{
		Symbol:    "SPY",
		Timestamp: time.Unix(60, 0).UTC(),
		Values:    map[string]string{dbn.NodePriceMove: "sideways"},
	})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if pred == nil {
		t.Fatal("filtering should still produce a prediction")
	}

	status := r.Status()
	if status.Step != 1 {
		t.Fatalf("belief should still advance, got step %d", status.Step)
	}
	if status.Skipped != 1 {
		t.Fatalf("expected 1 skipped learning update, got %d", status.Skipped)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	ckpts := &memCheckpoints{}
	cfg := RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}
	r := newRunner(t, cfg, nil, ckpts)

	for i := 1; i <= 5; i++ {
		label := dbn.LabelUp
		if i%2 == 0 {
			label = dbn.LabelDown
		}
		if _, err := r.Step(context.Background(), obs(int64(60*i), label)); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if err := r.Checkpoint(context.Background()); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if ckpts.data == nil {
		t.Fatal("checkpoint store is empty")
	}

	restoredRunner := newRunner(t, cfg, nil, ckpts)
	restored, err := restoredRunner.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored {
		t.Fatal("expected a checkpoint to restore")
	}
	if restoredRunner.Belief().Step() != r.Belief().Step() {
		t.Fatalf("restored step %d, want %d", restoredRunner.Belief().Step(), r.Belief().Step())
	}

	want := r.Belief().Dist(dbn.NodeRegime)
	got := restoredRunner.Belief().Dist(dbn.NodeRegime)
	for i := range want {
		if math.Abs(want[i]-got[i]) > 1e-12 {
			t.Fatalf("restored belief differs: %v vs %v", got, want)
		}
	}
}

func TestRestoreWithoutCheckpoint(t *testing.T) {
	r := newRunner(t, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}, nil, &memCheckpoints{})

	restored, err := r.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored {
		t.Fatal("nothing to restore from an empty store")
	}
}

func TestConvergenceOnStationaryStream(t *testing.T) {
	r := newRunner(t, RunnerConfig{
		Node:              dbn.NodePriceMove,
		Horizon:           1,
		Metric:            dbn.ConfidenceMargin,
		Decay:             1,
		ConvergenceWindow: 3,
	}, nil, nil)

	for i := 1; i <= 6000; i++ {
		if _, err := r.Step(context.Background(), obs(int64(60*i), dbn.LabelUp)); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if r.Converged() {
			break
		}
	}
	if !r.Converged() {
		t.Fatal("learning never converged on a constant stream")
	}
	if r.Status().Warnings[string(dbn.WarningConvergence)] == 0 {
		t.Fatal("convergence warning counter not incremented")
	}
}

func TestRunConsumesSourceToExhaustion(t *testing.T) {
	ckpts := &memCheckpoints{}
	r := newRunner(t, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}, nil, ckpts)

	records := make(chan models.ObservationRecord, 3)
	records <- obs(60, dbn.LabelUp)
	records <- obs(120, dbn.LabelDown)
	records <- obs(180, dbn.LabelUp)
	close(records)

	src := &chanSource{records: records}
	if err := r.Run(context.Background(), src); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Status().Step != 3 {
		t.Fatalf("expected 3 steps, got %d", r.Status().Step)
	}
	// Run writes a final checkpoint on the way out.
	if ckpts.data == nil {
		t.Fatal("expected a final checkpoint")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r := newRunner(t, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &chanSource{records: make(chan models.ObservationRecord)}
	if err := r.Run(ctx, src); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunFailsWhenSourceCannotLoad(t *testing.T) {
	r := newRunner(t, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}, nil, nil)

	src := bars.NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), "SPY", dbn.NodePriceMove)
	if err := r.Run(context.Background(), src); err == nil {
		t.Fatal("expected an error for an unreadable bar file")
	}
	if r.Status().Step != 0 {
		t.Fatalf("no steps expected, got %d", r.Status().Step)
	}
}

func TestRunToleratesClosedErrorChannel(t *testing.T) {
	r := newRunner(t, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}, nil, nil)

	records := make(chan models.ObservationRecord, 1)
	records <- obs(60, dbn.LabelUp)
	close(records)
	errs := make(chan error)
	close(errs)

	src := &chanSource{records: records, errs: errs}
	if err := r.Run(context.Background(), src); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Status().Step != 1 {
		t.Fatalf("expected 1 step, got %d", r.Status().Step)
	}
}

type chanSource struct {
	records chan models.ObservationRecord
	errs    chan error
}

func (s *chanSource) Stream(context.Context) (<-chan models.ObservationRecord, <-chan error) {
	if s.errs == nil {
		s.errs = make(chan error)
	}
	return s.records, s.errs
}

func (s *chanSource) Close() error { return nil }

func TestForecastAPIValidatesAndClassifies(t *testing.T) {
	r := newRunner(t, RunnerConfig{Node: dbn.NodePriceMove, Horizon: 1, Metric: dbn.ConfidenceMargin, Decay: 1}, nil, nil)

	cls, err := r.Forecast(3, dbn.NodePriceMove, dbn.ConfidenceEntropy)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if cls.Node != dbn.NodePriceMove || len(cls.Labels) != 2 {
		t.Fatalf("unexpected classification %+v", cls)
	}

	if _, err := r.Forecast(1, "nope", dbn.ConfidenceMargin); err == nil {
		t.Fatal("expected error for unknown node")
	}
}
