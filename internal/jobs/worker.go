package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/kbase/internal/logging"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker drives a JobProcessor on a fixed poll interval until Stop is called
// or its context ends. The first pass runs immediately so jobs left over from
// a previous process are picked up on boot.
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	logger       *zap.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWorker creates a Worker; name is the queue it serves and is only used
// for logging.
func NewWorker(name string, processor JobProcessor, pollInterval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		logger:       logging.OrNop(logger).With(zap.String("worker", name)),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the polling loop and blocks until the worker stops.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker started", zap.Duration("poll_interval", w.pollInterval))
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			w.logger.Info("worker stopped: stop signal received")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("error processing jobs", zap.Error(err))
	}
}

// Stop signals the loop and waits for the pass in flight to finish. It is
// safe to call more than once; it must only be called after Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	w.logger.Info("worker shutdown complete")
}
