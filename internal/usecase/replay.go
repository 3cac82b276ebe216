package usecase

import (
	"context"
	"fmt"
	"time"

	"RegimeCast/internal/dbn"
	"RegimeCast/internal/domain/models"
	drepo "RegimeCast/internal/domain/repository"
	"RegimeCast/internal/services/bars"
	"RegimeCast/pkg/cache"
	applogger "RegimeCast/pkg/logger"
	"RegimeCast/pkg/queue"
)

const (
	// ReplayJobType routes queued replay requests to the job handler.
	ReplayJobType = "replay.request"

	replayResultTTL = time.Hour
)

var replayResultKey = cache.GenerateKey("replay", "last")

// ModelFactory builds a fresh model for a replay run.
type ModelFactory func() (*dbn.Network, *dbn.Store, error)

// ReplayResult is what a completed replay leaves behind.
type ReplayResult struct {
	Path       string        `json:"path"`
	Status     Status        `json:"status"`
	Artifact   *dbn.Artifact `json:"artifact"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Replayer trains a fresh model over a historical bar file using the same
// step loop as the live runner.
type Replayer struct {
	factory ModelFactory
	node    string
	symbol  string
	metric  dbn.ConfidenceMetric
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewReplayer(factory ModelFactory, node, symbol string, metric dbn.ConfidenceMetric, metrics drepo.Metrics, l *applogger.Logger) *Replayer {
	return &Replayer{
		factory: factory,
		node:    node,
		symbol:  symbol,
		metric:  metric,
		metrics: metrics,
		l:       l,
	}
}

// Run replays the bar file and returns the resulting status and artifact.
func (r *Replayer) Run(ctx context.Context, req models.ReplayRequest) (*ReplayResult, error) {
	startedAt := time.Now()

	net, cpts, err := r.factory()
	if err != nil {
		return nil, fmt.Errorf("build replay model: %w", err)
	}
	runner, err := NewStreamRunner(net, cpts, RunnerConfig{
		Node:    r.node,
		Horizon: req.Horizon,
		Metric:  r.metric,
		Decay:   req.Decay,
	}, nil, nil, r.metrics, r.l)
	if err != nil {
		return nil, fmt.Errorf("build replay runner: %w", err)
	}

	source := bars.NewCSVSource(req.Path, r.symbol, r.node)
	if err := runner.Run(ctx, source); err != nil {
		return nil, fmt.Errorf("replay %s: %w", req.Path, err)
	}

	status := runner.Status()
	if r.l != nil {
		r.l.Info("replay finished",
			applogger.String("path", req.Path),
			applogger.Int64("steps", status.Step),
			applogger.Any("accuracy", status.Accuracy),
		)
	}
	return &ReplayResult{
		Path:       req.Path,
		Status:     status,
		Artifact:   runner.Artifact("replay"),
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}, nil
}

// ReplayJob runs queued replay requests and caches the latest result so the
// API can hand it back.
type ReplayJob struct {
	replayer *Replayer
	cache    cache.Service
	l        *applogger.Logger
}

func NewReplayJob(replayer *Replayer, c cache.Service, l *applogger.Logger) *ReplayJob {
	return &ReplayJob{replayer: replayer, cache: c, l: l}
}

func (j *ReplayJob) Name() string { return "replay" }

func (j *ReplayJob) Type() string { return ReplayJobType }

func (j *ReplayJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[models.ReplayRequest](payload)
	if err != nil {
		return fmt.Errorf("replay payload: %w", err)
	}

	result, err := j.replayer.Run(ctx, *req)
	if err != nil {
		return err
	}
	if j.cache != nil {
		if err := j.cache.Set(ctx, replayResultKey, result, replayResultTTL); err != nil && j.l != nil {
			j.l.Error("cache replay result failed", applogger.Error(err))
		}
	}
	return nil
}

// LastReplayResult fetches the cached result of the most recent replay.
func LastReplayResult(ctx context.Context, c cache.Service) (*ReplayResult, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	var result ReplayResult
	err := c.Get(ctx, replayResultKey, &result)
	if err == cache.ErrCacheMiss {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

var _ queue.Job = (*ReplayJob)(nil)
