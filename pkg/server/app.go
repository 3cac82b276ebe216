package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	drepo "RegimeCast/internal/domain/repository"
	"RegimeCast/internal/usecase"
	"RegimeCast/pkg/config"
	xhttp "RegimeCast/pkg/http"
	applogger "RegimeCast/pkg/logger"
	"RegimeCast/pkg/queue"
)

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle: the stream runner, the
// HTTP API, the replay worker, and the infrastructure clients behind them.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	runner     *usecase.StreamRunner
	source     drepo.ObservationSource
	handler    xhttp.Handler
	httpServer *xhttp.Server
	worker     *queue.RedisQueue
	closers    []closer
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.StreamRunner,
	source drepo.ObservationSource,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:     cfg,
		l:       l,
		runner:  runner,
		source:  source,
		handler: handler,
	}
}

// SetWorker attaches the optional background job consumer.
func (a *App) SetWorker(w *queue.RedisQueue) { a.worker = w }

// AddCloser registers an infrastructure client to close on shutdown.
func (a *App) AddCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Runner exposes the stream runner, mainly for the replay and export CLI
// modes that drive it directly.
func (a *App) Runner() *usecase.StreamRunner { return a.runner }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resume from the latest checkpoint when one exists.
	if restored, err := a.runner.Restore(ctx); err != nil {
		a.l.Warn("checkpoint restore failed, starting fresh", applogger.Error(err))
	} else if restored {
		a.l.Info("resumed from checkpoint", applogger.Int64("step", a.runner.Belief().Step()))
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Start the filtering loop over the configured observation source.
	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- a.runner.Run(ctx, a.source)
	}()
	a.l.Info("stream runner started",
		applogger.String("source", a.cfg.Stream.Source),
		applogger.String("symbol", a.cfg.Data.Symbol),
	)

	// Start the replay worker if configured.
	if a.worker != nil {
		if err := a.worker.Start(); err != nil {
			a.l.Error("queue worker start error", applogger.Error(err))
		} else {
			a.l.Info("replay worker started")
		}
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt. A finished source (historical file exhausted) keeps
	// the API up so the learned model stays queryable.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		a.l.Info("shutdown signal received")
	case err := <-runnerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.l.Error("stream runner failed", applogger.Error(err))
			return errors.Join(err, a.shutdown(cancel, nil))
		}
		status := a.runner.Status()
		a.l.Info("observation stream finished",
			applogger.Int64("steps", status.Step),
			applogger.Any("accuracy", status.Accuracy),
		)
		<-sigCh
		a.l.Info("shutdown signal received")
		runnerDone = nil
	}

	return a.shutdown(cancel, runnerDone)
}

// shutdown gracefully stops all services. The final checkpoint is written by
// the runner on its way out of Run.
func (a *App) shutdown(cancel context.CancelFunc, runnerDone <-chan error) error {
	cancel()
	if runnerDone != nil {
		<-runnerDone
	}

	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.l.Warn("source close error", applogger.Error(err))
		}
	}

	shutdownCtx, cancelTimeout := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancelTimeout()

	if a.worker != nil {
		if err := a.worker.Stop(shutdownCtx); err != nil {
			a.l.Warn("queue worker stop error", applogger.Error(err))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.l.Warn("close error", applogger.String("client", c.name), applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
