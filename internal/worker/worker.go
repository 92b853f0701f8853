// Package worker implements the Worker Loop (C9): dequeue, acquire the
// target instance's lock, run the Coordinator under a renewing Guard, and
// ack or requeue depending on the outcome. Grounded on the teacher's
// internal/runner worker pool idiom (a pollLoop goroutine per worker,
// context-cancellable, backing off on an empty queue) generalized from a
// single backtest runner pool to N parallel workers each single-threaded
// per deployment (§4.9).
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"deployctl/internal/coordinator"
	"deployctl/internal/ids"
	"deployctl/internal/lock"
	"deployctl/internal/logger"
	"deployctl/internal/model"
	"deployctl/internal/ports"
	"deployctl/internal/queue"
)

// Config is the Worker's tunable surface.
type Config struct {
	Environment  string
	LockTTL      time.Duration
	PollInterval time.Duration // how long to sleep after an empty Lease
}

// Worker repeatedly leases one job, runs it to completion under a
// per-instance lock, and acks or requeues.
type Worker struct {
	Queue       *queue.Queue
	LockBackend lock.Backend
	Coordinator *coordinator.Coordinator
	Store       ports.Store
	Clock       ports.Clock
	Config      Config
}

// Run loops until ctx is cancelled, processing one job per iteration and
// sleeping Config.PollInterval when the queue is empty.
func (w *Worker) Run(ctx context.Context) {
	log := logger.GetLogger(ctx).With(zap.String("component", "worker"), zap.String("environment", w.Config.Environment))
	interval := w.Config.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker loop stopping")
			return
		default:
		}

		processed, err := w.tick(ctx, log)
		if err != nil {
			log.Error("worker tick failed", zap.Error(err))
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}
}

// tick leases at most one job and drives it to completion. It returns
// processed=true if a job was leased (whether or not it ultimately
// succeeded), so Run knows whether to poll again immediately or back off.
func (w *Worker) tick(ctx context.Context, log *zap.Logger) (bool, error) {
	owner := ids.NewOwnerToken()

	entry, ok, err := w.Queue.Lease(ctx, w.Config.Environment, owner)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	job := entry.Job
	jobLog := log.With(zap.String("deployment_id", job.DeploymentID), zap.String("instance_id", job.InstanceID))

	resource := lock.ResourceKey(job.InstanceID)
	guard, acquired, err := lock.Acquire(ctx, w.LockBackend, resource, owner, w.Config.LockTTL)
	if err != nil {
		jobLog.Warn("lock backend unreachable, requeueing", zap.Error(err))
		w.Queue.Fail(ctx, w.Config.Environment, entry, w.Clock.Now())
		return true, nil
	}
	if !acquired {
		// Another worker already holds this instance's lock (§4.4 mutual
		// exclusion); put the job back for a later attempt without counting
		// it against RetryCount, since this isn't a failure of the job itself.
		jobLog.Info("instance locked by another worker, requeueing")
		requeued := entry
		requeued.EnqueuedAt = w.Clock.Now().Add(time.Second)
		w.Queue.Complete(ctx, w.Config.Environment, entry.EnvelopeID)
		w.Queue.Submit(ctx, requeued.EnvelopeID, job, requeued.EnqueuedAt)
		return true, nil
	}
	defer guard.Release(ctx)

	runCtx := guard.Context(ctx)
	rec, err := w.Coordinator.Run(runCtx, job, job.RetryCount+1)
	if err != nil {
		jobLog.Error("coordinator run failed to persist state, requeueing", zap.Error(err))
		w.Queue.Fail(ctx, w.Config.Environment, entry, w.Clock.Now())
		return true, nil
	}

	if guard.Lost() {
		// The lock was lost mid-run (renewal failure): per §8 scenario S6,
		// the visibility-timeout sweeper will have already (or will soon)
		// requeue this entry for another worker to pick up and resume via
		// DeployPhase's idempotent RemoteExecutor calls, so there's nothing
		// further to do here beyond logging the loss.
		jobLog.Warn("lock lost during run", zap.String("final_status", string(rec.Status)))
		return true, nil
	}

	if rec.Status.Terminal() {
		w.Queue.Complete(ctx, w.Config.Environment, entry.EnvelopeID)
		return true, nil
	}

	// A non-terminal status (ctx cancelled mid-run) means the attempt was
	// interrupted rather than completed; treat it like any other failure and
	// let retry/backoff decide whether another attempt is warranted.
	retried, err := w.Queue.Fail(ctx, w.Config.Environment, entry, w.Clock.Now())
	if err != nil {
		jobLog.Error("failed to requeue interrupted job", zap.Error(err))
	} else if !retried {
		jobLog.Warn("interrupted job exhausted retries", zap.Int("retry_count", job.RetryCount))
	}
	return true, nil
}

// Submit enqueues a job under its DeploymentID, minting a DeploymentID and a
// JobID only where the caller left them blank. This is
// the entrypoint drivers (the CLI, a webhook handler) call rather than
// reaching into the Queue directly, so DeploymentID minting lives in one
// place (§6).
func Submit(ctx context.Context, q *queue.Queue, job model.DeploymentJob, now time.Time) (string, error) {
	if job.DeploymentID == "" {
		job.DeploymentID = ids.New()
	}
	if job.JobID == "" {
		job.JobID = ids.New()
	}
	job.SubmittedAt = now
	if err := model.ValidateJob(job); err != nil {
		return "", err
	}
	return job.DeploymentID, q.Submit(ctx, ids.New(), job, now)
}
