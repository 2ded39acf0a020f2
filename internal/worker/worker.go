// Package worker runs periodic maintenance in the background.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one maintenance pass. The cleanup service satisfies it.
type Task interface {
	Run(ctx context.Context) error
}

// Worker runs a maintenance task on a fixed interval until stopped.
type Worker struct {
	task     Task
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	Interval time.Duration
}

// New creates a new worker.
func New(task Task, cfg Config, logger *slog.Logger) *Worker {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		task:     task,
		interval: cfg.Interval,
		stop:     make(chan struct{}),
		logger:   logger.With("component", "worker"),
	}
}

// Start begins the maintenance loop. One pass runs immediately so a
// restart does not postpone overdue cleanup by a whole interval.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "interval", w.interval)

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	if err := w.task.Run(ctx); err != nil {
		w.logger.Error("maintenance pass failed", "error", err)
	}
}
