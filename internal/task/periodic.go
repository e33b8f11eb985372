// Package task runs background maintenance jobs on a fixed interval.
package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPeriodicInterval = time.Minute
	logEventJobPanicked     = "periodic_job_panicked"
	logFieldJobName         = "job"
	logFieldPanic           = "panic"
)

// Job is one unit of periodic work.
type Job func(context.Context)

// PeriodicRunner invokes a job every interval until stopped.
type PeriodicRunner struct {
	name     string
	interval time.Duration
	job      Job
	logger   *zap.Logger

	controlMutex sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewPeriodicRunner builds a runner. A non-positive interval falls back to one minute.
func NewPeriodicRunner(logger *zap.Logger, name string, interval time.Duration, job Job) *PeriodicRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultPeriodicInterval
	}
	return &PeriodicRunner{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger,
	}
}

// Start launches the loop. Calling Start on a running runner is a no-op.
func (runner *PeriodicRunner) Start(ctx context.Context) {
	if runner == nil || runner.job == nil {
		return
	}
	runner.controlMutex.Lock()
	defer runner.controlMutex.Unlock()
	if runner.cancel != nil {
		return
	}
	loopContext, cancel := context.WithCancel(ctx)
	runner.cancel = cancel
	runner.done = make(chan struct{})
	go runner.loop(loopContext, runner.done)
}

// Stop cancels the loop and waits for the current run to finish.
func (runner *PeriodicRunner) Stop() {
	if runner == nil {
		return
	}
	runner.controlMutex.Lock()
	cancel := runner.cancel
	done := runner.done
	runner.cancel = nil
	runner.done = nil
	runner.controlMutex.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (runner *PeriodicRunner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(runner.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runner.runOnce(ctx)
		}
	}
}

func (runner *PeriodicRunner) runOnce(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			runner.logger.Error(logEventJobPanicked, zap.String(logFieldJobName, runner.name), zap.Any(logFieldPanic, recovered))
		}
	}()
	runner.job(ctx)
}
