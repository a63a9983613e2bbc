// Package autosync runs the periodic background synchronization loop.
package autosync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Syncer pushes state to the remote store. A sync already in flight makes
// the call a no-op, so overlapping ticks are harmless.
type Syncer interface {
	SyncNow(ctx context.Context, now time.Time) error
}

// Worker triggers a sync on a fixed interval.
type Worker struct {
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger

	shutdown chan struct{}
	ticker   *time.Ticker
	running  atomic.Bool
	stopped  bool
}

// New creates a worker. It does nothing until Start is called.
func New(syncer Syncer, interval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		syncer:   syncer,
		interval: interval,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// Start begins the sync loop.
func (w *Worker) Start(ctx context.Context) {
	w.ticker = time.NewTicker(w.interval)
	go w.loop(ctx)
	w.logger.Info("auto-sync started", "interval", w.interval)
}

// Stop shuts the worker down. Safe to call more than once.
func (w *Worker) Stop() {
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.shutdown)
	if w.ticker != nil {
		w.ticker.Stop()
	}
	w.logger.Info("auto-sync stopped")
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-w.ticker.C:
			if !w.running.Load() {
				w.tick(ctx)
			}
		case <-w.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	if err := w.syncer.SyncNow(ctx, time.Now()); err != nil {
		w.logger.Warn("auto-sync pass failed", "error", err)
	}
}
