// Package queue implements a Redis list-backed background job queue.
//
// Producers call Queue.Enqueue, which serializes a domain.Job to JSON and
// LPUSHes it under a deadline; a missed deadline is reported as a
// gateway-timeout failure from the application taxonomy so the HTTP layer
// renders it as 504 without further translation. The Worker BRPOPs jobs,
// dispatches them to registered handlers by job type, and survives handler
// panics.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mvasilakos/go-api-starter/internal/apperr"
	"github.com/mvasilakos/go-api-starter/internal/domain"
)

// Queue is a producer handle for a single Redis list.
type Queue struct {
	client         *redis.Client
	name           string
	enqueueTimeout time.Duration
}

// New builds a Queue pushing onto the Redis list name. enqueueTimeout bounds
// each Enqueue call; values <= 0 are coerced to 2s.
func New(client *redis.Client, name string, enqueueTimeout time.Duration) *Queue {
	if enqueueTimeout <= 0 {
		enqueueTimeout = 2 * time.Second
	}
	return &Queue{client: client, name: name, enqueueTimeout: enqueueTimeout}
}

// NewJob assembles a job envelope with a fresh UUID and UTC enqueue time.
func NewJob(jobType string, payload map[string]string) domain.Job {
	return domain.Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Enqueue pushes job onto the queue under the configured deadline.
//
// Failure mapping:
//   - deadline exceeded        -> apperr.QueueTimeout (HTTP 504)
//   - any other Redis failure  -> apperr.ServiceUnavailable (HTTP 503)
//
// Both carry the underlying error as a diagnostic cause.
func (q *Queue) Enqueue(ctx context.Context, job domain.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return apperr.Generic("").WithCause(err).WithDetail("marshal job " + job.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, q.enqueueTimeout)
	defer cancel()

	if err := q.client.LPush(ctx, q.name, raw).Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.QueueTimeout("").WithCause(err).WithDetail("enqueue " + job.Type)
		}
		return apperr.ServiceUnavailable("").WithCause(err).WithDetail("enqueue " + job.Type)
	}
	return nil
}

// Handler processes a single job. Returning an error marks the job failed;
// the worker logs it and moves on (no retry semantics here).
type Handler func(ctx context.Context, job domain.Job) error

// Worker consumes jobs from a Queue and dispatches them by job type.
// Register handlers before calling Run.
type Worker struct {
	client   *redis.Client
	name     string
	handlers map[string]Handler
	log      zerolog.Logger
}

// NewWorker builds a Worker reading from the Redis list name.
func NewWorker(client *redis.Client, name string, log zerolog.Logger) *Worker {
	return &Worker{
		client:   client,
		name:     name,
		handlers: make(map[string]Handler),
		log:      log,
	}
}

// Handle registers fn for jobs of the given type, replacing any previous
// registration.
func (w *Worker) Handle(jobType string, fn Handler) {
	w.handlers[jobType] = fn
}

// Run blocks consuming jobs until ctx is canceled. Individual job failures
// and malformed payloads are logged and skipped; they never stop the loop.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Str("queue", w.name).Msg("queue worker started")
	for {
		if ctx.Err() != nil {
			w.log.Info().Str("queue", w.name).Msg("queue worker stopped")
			return
		}

		// Bounded block so cancellation is observed within a second.
		res, err := w.client.BRPop(ctx, time.Second, w.name).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			w.log.Error().Err(err).Str("queue", w.name).Msg("queue pop failed")
			// Back off briefly so a dead Redis does not spin the loop.
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		w.dispatch(ctx, []byte(res[1]))
	}
}

// dispatch decodes and runs one job, recovering from handler panics.
func (w *Worker) dispatch(ctx context.Context, raw []byte) {
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		w.log.Error().Err(err).Str("queue", w.name).Msg("discarding malformed job")
		return
	}

	fn, ok := w.handlers[job.Type]
	if !ok {
		w.log.Warn().Str("job_id", job.ID).Str("type", job.Type).Msg("no handler for job type")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			w.log.Error().
				Interface("panic", rec).
				Str("job_id", job.ID).
				Str("type", job.Type).
				Msg("job handler panicked")
		}
	}()

	start := time.Now()
	if err := fn(ctx, job); err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Str("type", job.Type).Msg("job failed")
		return
	}
	w.log.Info().
		Str("job_id", job.ID).
		Str("type", job.Type).
		Dur("took", time.Since(start)).
		Msg("job done")
}
