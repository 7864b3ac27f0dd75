package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/ports/driven"
	"github.com/aurora-labs/aurora-cli/internal/logger"
)

// Dispatcher routes one claimed job to its stage handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *domain.Job) error
}

// WorkerConfig tunes one worker loop.
type WorkerConfig struct {
	Lane         domain.Lane
	LeaseSeconds int
	MaxAttempts  int
	IdleSleep    time.Duration

	// MaxIdlePolls drains the worker after that many consecutive empty
	// claims. Zero keeps the loop running until stopped.
	MaxIdlePolls int
}

// Worker is the cooperative claim-dispatch-complete loop over one lane.
// Several workers may run the same lane; the claim query serializes them.
type Worker struct {
	jobs       driven.JobStore
	dispatcher Dispatcher
	cfg        WorkerConfig

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWorker creates a worker for a lane.
func NewWorker(cfg WorkerConfig, jobs driven.JobStore, dispatcher Dispatcher) *Worker {
	if cfg.Lane == "" {
		cfg.Lane = domain.LaneIO
	}
	if cfg.LeaseSeconds <= 0 {
		cfg.LeaseSeconds = 300
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = 500 * time.Millisecond
	}
	return &Worker{
		jobs:       jobs,
		dispatcher: dispatcher,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
	}
}

// Run executes the worker loop until the context is cancelled, Stop is
// called, or the idle-poll budget drains. The in-flight job always reaches
// complete or fail before the loop returns.
func (w *Worker) Run(ctx context.Context) error {
	idlePolls := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		default:
		}

		job, err := w.jobs.Claim(ctx, w.cfg.Lane, w.cfg.LeaseSeconds)
		if err != nil {
			// Claim races are retryable: back off and poll again.
			logger.Warn("claim on lane %s failed: %v", w.cfg.Lane, err)
			if err := w.sleep(ctx); err != nil {
				return ignoreStopped(err)
			}
			continue
		}

		if job == nil {
			idlePolls++
			if w.cfg.MaxIdlePolls > 0 && idlePolls >= w.cfg.MaxIdlePolls {
				logger.Info("lane %s idle for %d polls, draining", w.cfg.Lane, idlePolls)
				return nil
			}
			if err := w.sleep(ctx); err != nil {
				return ignoreStopped(err)
			}
			continue
		}
		idlePolls = 0

		w.runJob(ctx, job)
	}
}

// runJob dispatches one job and records its outcome.
func (w *Worker) runJob(ctx context.Context, job *domain.Job) {
	logger.Debug("lane %s claimed %s (%s) attempt %d", w.cfg.Lane, job.ID, job.Kind, job.Attempts)

	if err := w.dispatcher.Dispatch(ctx, job); err != nil {
		logger.Warn("job %s (%s) failed: %v", job.ID, job.Kind, err)
		if failErr := w.jobs.Fail(ctx, job.ID, err.Error(), w.cfg.MaxAttempts); failErr != nil {
			logger.Warn("recording failure for %s: %v", job.ID, failErr)
		}
		return
	}

	if err := w.jobs.Complete(ctx, job.ID); err != nil {
		logger.Warn("completing %s: %v", job.ID, err)
	}
}

// errWorkerStopped marks a Stop-initiated exit, which is not an error.
var errWorkerStopped = errors.New("worker stopped")

func ignoreStopped(err error) error {
	if errors.Is(err, errWorkerStopped) {
		return nil
	}
	return err
}

// sleep waits one idle interval; a non-nil return means the worker should
// exit.
func (w *Worker) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopCh:
		return errWorkerStopped
	case <-time.After(w.cfg.IdleSleep):
		return nil
	}
}

// Stop signals the loop to exit after the in-flight job finishes.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, job *domain.Job) error

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(ctx context.Context, job *domain.Job) error {
	if f == nil {
		return fmt.Errorf("%w: no dispatcher configured", domain.ErrUnsupportedType)
	}
	return f(ctx, job)
}
