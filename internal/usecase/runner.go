package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"RegimeCast/internal/dbn"
	"RegimeCast/internal/domain/models"
	drepo "RegimeCast/internal/domain/repository"
	applogger "RegimeCast/pkg/logger"
)

const convergenceThreshold = 1e-6

// RunnerConfig holds StreamRunner parameters.
type RunnerConfig struct {
	Node               string // observed node predictions are made for
	Horizon            int
	Metric             dbn.ConfidenceMetric
	Decay              float64
	CheckpointInterval int // steps between checkpoints, 0 disables
	ConvergenceWindow  int // consecutive sub-threshold steps before reporting
}

// StreamRunner drives the engine over an observation stream: one filter,
// learn, forecast cycle per record, with prediction resolution, accuracy
// tracking and optional checkpointing. Steps are strictly sequential; the
// current belief is swapped atomically so API readers never block the loop.
type StreamRunner struct {
	net     *dbn.Network
	cpts    *dbn.Store
	engine  *dbn.Engine
	learner *dbn.Learner
	pred    *dbn.Predictor
	cfg     RunnerConfig

	belief    atomic.Pointer[dbn.Belief]
	converged atomic.Bool

	sinks   []drepo.PredictionSink
	ckpts   drepo.CheckpointStore
	metrics drepo.Metrics
	l       *applogger.Logger

	mu         sync.Mutex
	pending    map[int64]*models.PredictionRecord // due step -> record
	lastTS     time.Time
	prevProbs  map[string][][]float64
	underSince int
	total      int64
	correct    int64
	warnings   map[string]int64
	skipped    int64
}

// NewStreamRunner wires a runner around a built model. The initial belief is
// uniform unless a checkpoint is restored later.
func NewStreamRunner(
	net *dbn.Network,
	cpts *dbn.Store,
	cfg RunnerConfig,
	sinks []drepo.PredictionSink,
	ckpts drepo.CheckpointStore,
	metrics drepo.Metrics,
	l *applogger.Logger,
) (*StreamRunner, error) {
	if _, ok := net.Node(cfg.Node); !ok {
		return nil, fmt.Errorf("prediction node %q not in network", cfg.Node)
	}
	if cfg.Horizon < 0 {
		return nil, fmt.Errorf("horizon must be non-negative, got %d", cfg.Horizon)
	}
	if cfg.ConvergenceWindow <= 0 {
		cfg.ConvergenceWindow = 3
	}
	learner, err := dbn.NewLearner(net, cpts, cfg.Decay)
	if err != nil {
		return nil, err
	}

	r := &StreamRunner{
		net:      net,
		cpts:     cpts,
		engine:   dbn.NewEngine(net, cpts),
		learner:  learner,
		pred:     dbn.NewPredictor(net, cpts),
		cfg:      cfg,
		sinks:    sinks,
		ckpts:    ckpts,
		metrics:  metrics,
		l:        l,
		pending:  make(map[int64]*models.PredictionRecord),
		warnings: make(map[string]int64),
	}
	r.belief.Store(dbn.UniformBelief(net))
	r.prevProbs = cpts.Probabilities()
	return r, nil
}

// Belief returns the current belief snapshot. Safe for concurrent use.
func (r *StreamRunner) Belief() *dbn.Belief { return r.belief.Load() }

// Converged reports whether learning has stabilized.
func (r *StreamRunner) Converged() bool { return r.converged.Load() }

// Forecast projects the current belief forward and classifies node, for
// ad-hoc API queries. Safe for concurrent use with Step.
func (r *StreamRunner) Forecast(horizon int, node string, metric dbn.ConfidenceMetric) (dbn.Classification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fb, err := r.pred.Forecast(r.belief.Load(), horizon)
	if err != nil {
		return dbn.Classification{}, err
	}
	return r.pred.Classify(fb, node, metric)
}

// Network returns the model topology.
func (r *StreamRunner) Network() *dbn.Network { return r.net }

// Artifact serializes the current model with learned counts.
func (r *StreamRunner) Artifact(name string) *dbn.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return dbn.Export(name, r.net, r.cpts)
}

// Restore loads the latest checkpoint, if any.
func (r *StreamRunner) Restore(ctx context.Context) (bool, error) {
	if r.ckpts == nil {
		return false, nil
	}
	data, ok, err := r.ckpts.Load(ctx)
	if err != nil || !ok {
		return false, err
	}
	ckpt, err := dbn.DecodeCheckpoint(data)
	if err != nil {
		return false, fmt.Errorf("decode checkpoint: %w", err)
	}
	b, err := ckpt.Apply(r.net, r.cpts)
	if err != nil {
		return false, fmt.Errorf("apply checkpoint: %w", err)
	}
	r.belief.Store(b)
	r.mu.Lock()
	r.prevProbs = r.cpts.Probabilities()
	r.mu.Unlock()
	if r.l != nil {
		r.l.Info("checkpoint restored", applogger.Int64("step", b.Step()))
	}
	return true, nil
}

// Checkpoint persists the current engine state.
func (r *StreamRunner) Checkpoint(ctx context.Context) error {
	if r.ckpts == nil {
		return nil
	}
	r.mu.Lock()
	data, err := dbn.NewCheckpoint(r.cfg.Decay, r.cpts, r.belief.Load()).Encode()
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return r.ckpts.Save(ctx, data)
}

// Run consumes the source until it is exhausted or ctx is cancelled. A final
// checkpoint is written on the way out.
func (r *StreamRunner) Run(ctx context.Context, source drepo.ObservationSource) error {
	records, errs := source.Stream(ctx)
	defer func() {
		if err := r.Checkpoint(context.Background()); err != nil && r.l != nil {
			r.l.Error("final checkpoint failed", applogger.Error(err))
		}
	}()

	var srcErr error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			srcErr = r.noteSourceErr(err, srcErr)
		case rec, ok := <-records:
			if !ok {
				// The source buffers its error, so it may land after the
				// records channel is already closed. Drain before deciding
				// whether the stream ended cleanly.
				if errs != nil {
					select {
					case err, open := <-errs:
						if open && err != nil {
							srcErr = r.noteSourceErr(err, srcErr)
						}
					default:
					}
				}
				if srcErr != nil {
					return fmt.Errorf("observation source: %w", srcErr)
				}
				return nil
			}
			if _, err := r.Step(ctx, rec); err != nil {
				return err
			}
		}
	}
}

// noteSourceErr absorbs per-record data problems as skip diagnostics and
// remembers everything else so Run can fail once the stream terminates.
func (r *StreamRunner) noteSourceErr(err, prev error) error {
	var de *dbn.DataError
	if errors.As(err, &de) {
		r.noteSkip(de)
		return prev
	}
	if r.metrics != nil {
		r.metrics.RecordError("source")
	}
	if r.l != nil {
		r.l.Error("observation source error", applogger.Error(err))
	}
	return err
}

// Step advances the engine by one observation and returns the emitted
// prediction, if any. Per-step data problems are absorbed as diagnostics;
// only unrecoverable errors are returned.
func (r *StreamRunner) Step(ctx context.Context, rec models.ObservationRecord) (*models.PredictionRecord, error) {
	start := time.Now()
	prev := r.belief.Load()

	r.mu.Lock()
	if !r.lastTS.IsZero() && rec.Timestamp.Before(r.lastTS) {
		r.skipped++
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.RecordSkipped(r.cfg.Node)
		}
		if r.l != nil {
			r.l.Warn("out-of-order observation dropped",
				applogger.Any("timestamp", rec.Timestamp),
				applogger.Any("last", r.lastTS),
			)
		}
		return nil, nil
	}
	r.lastTS = rec.Timestamp
	r.mu.Unlock()

	obs := dbn.Observation{Timestamp: rec.Timestamp, Values: rec.Values}

	next, warnings, err := r.engine.Filter(prev, obs)
	if err != nil {
		return nil, fmt.Errorf("filter step %d: %w", prev.Step()+1, err)
	}
	for _, w := range warnings {
		r.noteWarning(w)
	}

	// Resolve predictions that targeted this step before counts change.
	r.resolve(ctx, next.Step(), rec)

	r.mu.Lock()
	err = r.learner.Learn(prev, next, obs)
	r.mu.Unlock()
	if err != nil {
		var de *dbn.DataError
		if !errors.As(err, &de) {
			return nil, fmt.Errorf("learn step %d: %w", next.Step(), err)
		}
		r.noteSkip(de)
	} else {
		r.checkConvergence(next.Step())
	}

	r.belief.Store(next)

	pred, err := r.forecast(ctx, rec, next)
	if err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordStep(rec.Symbol, time.Since(start).Seconds())
		for _, h := range r.net.Hidden() {
			r.metrics.SetEntropy(h.ID, next.NormalizedEntropy(h.ID))
		}
	}

	if r.cfg.CheckpointInterval > 0 && next.Step()%int64(r.cfg.CheckpointInterval) == 0 {
		if err := r.Checkpoint(ctx); err != nil {
			if r.metrics != nil {
				r.metrics.RecordError("checkpoint")
			}
			if r.l != nil {
				r.l.Error("periodic checkpoint failed", applogger.Error(err))
			}
		}
	}

	return pred, nil
}

func (r *StreamRunner) forecast(ctx context.Context, rec models.ObservationRecord, b *dbn.Belief) (*models.PredictionRecord, error) {
	if r.cfg.Horizon == 0 {
		return nil, nil
	}
	r.mu.Lock()
	fb, err := r.pred.Forecast(b, r.cfg.Horizon)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("forecast step %d: %w", b.Step(), err)
	}
	cls, err := r.pred.Classify(fb, r.cfg.Node, r.cfg.Metric)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("classify step %d: %w", b.Step(), err)
	}

	p := &models.PredictionRecord{
		Symbol:        rec.Symbol,
		Node:          r.cfg.Node,
		Step:          b.Step(),
		Timestamp:     rec.Timestamp,
		Horizon:       r.cfg.Horizon,
		Label:         cls.Label,
		Confidence:    cls.Confidence,
		Metric:        string(cls.Metric),
		Labels:        cls.Labels,
		Probabilities: cls.Probabilities,
	}

	r.mu.Lock()
	r.pending[b.Step()+int64(r.cfg.Horizon)] = p
	r.mu.Unlock()

	r.emit(ctx, p)
	return p, nil
}

// resolve scores the prediction that targeted step, if one is pending and
// the arrived record carries a value for the prediction node.
func (r *StreamRunner) resolve(ctx context.Context, step int64, rec models.ObservationRecord) {
	r.mu.Lock()
	p, ok := r.pending[step]
	if ok {
		delete(r.pending, step)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	actual, ok := rec.Values[r.cfg.Node]
	if !ok || actual == "" {
		return
	}

	p.Resolve(actual)

	r.mu.Lock()
	r.total++
	if *p.Correct {
		r.correct++
	}
	total, correct := r.total, r.correct
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordPrediction(p.Node, *p.Correct)
		r.metrics.SetAccuracy(p.Node, float64(correct)/float64(total))
	}
	r.emit(ctx, p)
}

func (r *StreamRunner) emit(ctx context.Context, p *models.PredictionRecord) {
	for _, sink := range r.sinks {
		if err := sink.Emit(ctx, p); err != nil {
			if r.metrics != nil {
				r.metrics.RecordError("sink")
			}
			if r.l != nil {
				r.l.Error("prediction sink failed",
					applogger.Int64("step", p.Step),
					applogger.Error(err),
				)
			}
		}
	}
}

// checkConvergence compares the full CPT snapshot against the previous step
// and flips the converged flag once the largest probability change stays
// below threshold for the configured window.
func (r *StreamRunner) checkConvergence(step int64) {
	r.mu.Lock()
	delta := r.cpts.MaxDelta(r.prevProbs)
	r.prevProbs = r.cpts.Probabilities()
	if delta >= convergenceThreshold {
		r.underSince = 0
		r.mu.Unlock()
		return
	}
	r.underSince++
	reached := r.underSince >= r.cfg.ConvergenceWindow
	if reached {
		r.warnings[string(dbn.WarningConvergence)]++
	}
	r.mu.Unlock()

	if reached && !r.converged.Swap(true) {
		if r.metrics != nil {
			r.metrics.RecordWarning(string(dbn.WarningConvergence))
		}
		if r.l != nil {
			r.l.Info("parameter learning converged",
				applogger.Int64("step", step),
				applogger.Any("max_delta", delta),
			)
		}
	}
}

func (r *StreamRunner) noteWarning(w dbn.Warning) {
	r.mu.Lock()
	r.warnings[string(w.Kind)]++
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.RecordWarning(string(w.Kind))
	}
	if r.l != nil {
		r.l.Warn("engine warning",
			applogger.String("kind", string(w.Kind)),
			applogger.String("node", w.Node),
			applogger.String("detail", w.Detail),
		)
	}
}

func (r *StreamRunner) noteSkip(de *dbn.DataError) {
	r.mu.Lock()
	r.skipped++
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.RecordSkipped(de.Node)
	}
	if r.l != nil {
		r.l.Warn("observation skipped",
			applogger.String("node", de.Node),
			applogger.String("value", de.Value),
		)
	}
}

// Status is a point-in-time diagnostic snapshot of the runner.
type Status struct {
	Step      int64            `json:"step"`
	Converged bool             `json:"converged"`
	Total     int64            `json:"resolved_predictions"`
	Correct   int64            `json:"correct_predictions"`
	Accuracy  float64          `json:"accuracy"`
	Skipped   int64            `json:"skipped_observations"`
	Pending   int              `json:"pending_predictions"`
	Warnings  map[string]int64 `json:"warnings"`
}

// Status reports runner counters. Safe for concurrent use.
func (r *StreamRunner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	warnings := make(map[string]int64, len(r.warnings))
	for k, v := range r.warnings {
		warnings[k] = v
	}
	s := Status{
		Step:      r.belief.Load().Step(),
		Converged: r.converged.Load(),
		Total:     r.total,
		Correct:   r.correct,
		Skipped:   r.skipped,
		Pending:   len(r.pending),
		Warnings:  warnings,
	}
	if s.Total > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Total)
	}
	return s
}
