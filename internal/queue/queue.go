package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dinver-app/dinver-media/internal/config"
	"github.com/dinver-app/dinver-media/internal/entities"
	"github.com/dinver-app/dinver-media/internal/eventbus"
)

// Queue is the durable, at-least-once derivative job queue: Redis Streams
// for delivery, a per-job state hash for everything callers observe.
type Queue struct {
	producer *Producer
	store    *store
	bus      *eventbus.Bus
}

// Init builds the queue and starts its worker pool in the background.
func Init(ctx context.Context, rc redis.UniversalClient, cfg config.PipelineConfig, storage Storage, gen Generator, catalog Catalog, bus *eventbus.Bus) *Queue {
	st := newStore(rc, cfg.MaxAttempts, cfg.RetainCompleted, cfg.RetainFailed)
	producer := newProducer(rc, cfg.Stream, cfg.MaxLen, st)
	worker := newWorker(rc, cfg, st, storage, gen, catalog, bus)

	go func() {
		if err := worker.Start(ctx); err != nil {
			log.Printf("[media-worker] stopped: %v", err)
		}
	}()

	return &Queue{producer: producer, store: st, bus: bus}
}

// Enqueue submits one job and returns its ID.
func (q *Queue) Enqueue(ctx context.Context, payload entities.JobPayload, prio Priority) (string, error) {
	return q.producer.Enqueue(ctx, payload, prio)
}

// Status returns the job's current externally visible state.
func (q *Queue) Status(ctx context.Context, id string) (entities.Job, error) {
	return q.store.job(ctx, id)
}

// Stats snapshots queue occupancy.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	return q.store.stats(ctx)
}

// Await blocks until the job reaches a terminal state or timeout elapses.
// Timing out abandons the wait only; the job itself keeps running. Event
// notifications are a fast path, polling is the guarantee.
func (q *Queue) Await(ctx context.Context, id string, timeout time.Duration) (entities.Job, error) {
	var ch chan eventbus.Event
	if q.bus != nil {
		ch = q.bus.Subscribe(id)
		defer q.bus.Unsubscribe(id, ch)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	check := func() (entities.Job, bool, error) {
		job, err := q.store.job(ctx, id)
		if err != nil {
			return entities.Job{}, false, err
		}
		return job, job.Status.Terminal(), nil
	}

	if job, done, err := check(); err != nil || done {
		return job, err
	}

	for {
		select {
		case <-ctx.Done():
			return entities.Job{}, ctx.Err()
		case <-deadline.C:
			return entities.Job{}, fmt.Errorf("%w: %s after %s", entities.ErrAwaitTimeout, id, timeout)
		case ev := <-ch:
			if ev.Status.Terminal() {
				if job, done, err := check(); err != nil || done {
					return job, err
				}
			}
		case <-poll.C:
			if job, done, err := check(); err != nil || done {
				return job, err
			}
		}
	}
}
