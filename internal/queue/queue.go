// Package queue implements the Deployment Queue (C5): a per-environment FIFO
// with priority bands, a separate processing set per in-flight entry, and a
// visibility-timeout recovery sweeper that requeues work abandoned by a dead
// worker. Retries back off exponentially and are capped at MaxRetries (§4.5).
// Grounded on the teacher's internal/pubsub/redis.go for the go-redis client
// idiom (context-first, injected *redis.Client, JSON payloads), generalized
// from fire-and-forget pub/sub to an at-least-once work queue since pub/sub
// alone can't express acknowledgement or redelivery.
package queue

import (
	"context"
	"time"

	"deployctl/internal/model"
)

// Backend is the atomic primitive set the Deployment Queue needs from its
// store. A single environment's FIFO, its processing set, and the retry
// counters all live behind one Backend instance.
type Backend interface {
	// Enqueue adds entry to the tail of its priority band's FIFO.
	Enqueue(ctx context.Context, environment string, entry model.QueueEntry) error
	// Dequeue atomically moves the highest-priority, oldest entry from the
	// ready queue into the processing set, stamping owner and a visibility
	// deadline. Returns ok=false if the queue is empty.
	Dequeue(ctx context.Context, environment, owner string, visibilityTimeout time.Duration) (model.QueueEntry, bool, error)
	// Ack removes entry from the processing set on successful completion.
	Ack(ctx context.Context, environment, envelopeID string) error
	// Sweep requeues every processing entry whose visibility deadline has
	// passed, returning how many were recovered.
	Sweep(ctx context.Context, environment string) (int, error)
}

// Config mirrors config.QueueConfig's fields the Queue itself consults.
type Config struct {
	VisibilityTimeout time.Duration
	MaxRetries        int
	PriorityBands     int
}

// Queue is the driver-facing API: Submit enqueues a new job, Lease dequeues
// the next one for a worker, and Complete/Fail close out a leased entry.
type Queue struct {
	backend Backend
	cfg     Config
}

func New(backend Backend, cfg Config) *Queue {
	return &Queue{backend: backend, cfg: cfg}
}

// Submit enqueues job at its priority band (clamped to [0, PriorityBands-1]).
func (q *Queue) Submit(ctx context.Context, envelopeID string, job model.DeploymentJob, now time.Time) error {
	band := job.Priority
	if band < 0 {
		band = 0
	}
	if band >= q.cfg.PriorityBands {
		band = q.cfg.PriorityBands - 1
	}
	entry := model.QueueEntry{
		EnvelopeID:   envelopeID,
		Job:          job,
		EnqueuedAt:   now,
		PriorityBand: band,
	}
	return q.backend.Enqueue(ctx, string(job.Environment), entry)
}

// Lease dequeues the next ready entry for environment, visible to no other
// worker until VisibilityTimeout elapses or the worker Acks/Fails it.
func (q *Queue) Lease(ctx context.Context, environment, owner string) (model.QueueEntry, bool, error) {
	return q.backend.Dequeue(ctx, environment, owner, q.cfg.VisibilityTimeout)
}

// Complete acknowledges successful processing.
func (q *Queue) Complete(ctx context.Context, environment, envelopeID string) error {
	return q.backend.Ack(ctx, environment, envelopeID)
}

// Fail acks the current attempt and, if under MaxRetries, re-submits the job
// with an exponential backoff delay before it becomes visible again. Once
// RetryCount reaches MaxRetries the entry is acked and dropped — the caller
// is expected to have already recorded the terminal failure in the Store
// before calling Fail.
func (q *Queue) Fail(ctx context.Context, environment string, entry model.QueueEntry, now time.Time) (retried bool, err error) {
	if err := q.backend.Ack(ctx, environment, entry.EnvelopeID); err != nil {
		return false, err
	}
	if entry.Job.RetryCount >= q.cfg.MaxRetries {
		return false, nil
	}

	job := entry.Job
	job.RetryCount++
	job.TriggeredBy = model.TriggeredByRetry

	backoff := backoffDelay(job.RetryCount)
	retryEntry := model.QueueEntry{
		EnvelopeID:   entry.EnvelopeID,
		Job:          job,
		EnqueuedAt:   now.Add(backoff),
		PriorityBand: entry.PriorityBand,
	}
	if err := q.backend.Enqueue(ctx, environment, retryEntry); err != nil {
		return false, err
	}
	return true, nil
}

// Sweep recovers entries abandoned by a dead worker back into the ready
// queue. Callers run this on a timer per environment.
func (q *Queue) Sweep(ctx context.Context, environment string) (int, error) {
	return q.backend.Sweep(ctx, environment)
}

// backoffDelay is 2^(attempt-1) seconds, capped at 1 minute, per §4.5's
// exponential retry schedule.
func backoffDelay(attempt int) time.Duration {
	d := time.Second
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= time.Minute {
			return time.Minute
		}
	}
	return d
}
