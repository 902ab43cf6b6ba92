/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/musicranker/mbproxy/log"
)

// ErrPeriodicWorkerStop ends the PeriodicWorker loop without an error when returned by the wrapped worker.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

// Worker does a piece of (possibly long-running) work until ctx is done.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc lets an ordinary function act as a Worker.
type WorkerFunc func(ctx context.Context) error

func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorkerOpts configures NewPeriodicWorkerWithOpts.
type PeriodicWorkerOpts struct {
	// InitialDelay postpones the first run. Zero runs it right away.
	InitialDelay time.Duration

	// ErrorDelay replaces the regular interval after a failed run. Zero keeps the regular interval.
	ErrorDelay time.Duration
}

// PeriodicWorker calls the wrapped worker repeatedly with a pause between calls.
// Errors of a single run are logged and don't end the loop.
type PeriodicWorker struct {
	worker   Worker
	logger   log.FieldLogger
	interval time.Duration
	opts     PeriodicWorkerOpts
}

// NewPeriodicWorker returns a PeriodicWorker that starts immediately and pauses interval between runs.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, interval, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts is NewPeriodicWorker with options.
func NewPeriodicWorkerWithOpts(
	worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	return &PeriodicWorker{worker: worker, logger: logger, interval: interval, opts: opts}
}

// Run loops until ctx is done or the worker returns ErrPeriodicWorkerStop.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	pw.logger.Info("periodic worker started",
		log.Duration("initial_delay", pw.opts.InitialDelay), log.Duration("interval", pw.interval))
	defer pw.logger.Info("periodic worker stopped")

	delay := pw.opts.InitialDelay
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		err := pw.runOnce(ctx)
		switch {
		case errors.Is(err, ErrPeriodicWorkerStop):
			return nil
		case err != nil:
			pw.logger.Error("periodic worker run failed", log.Error(err))
			delay = pw.interval
			if pw.opts.ErrorDelay > 0 {
				delay = pw.opts.ErrorDelay
			}
		default:
			delay = pw.interval
		}
	}
}

// runOnce logs a panic of the worker with its stack and re-panics.
func (pw *PeriodicWorker) runOnce(ctx context.Context) error {
	defer func() {
		if p := recover(); p != nil {
			stack := make([]byte, 8192)
			pw.logger.Error(fmt.Sprintf("periodic worker panic: %+v", p),
				log.Bytes("stack", stack[:runtime.Stack(stack, false)]))
			panic(p)
		}
	}()
	return pw.worker.Run(ctx)
}
