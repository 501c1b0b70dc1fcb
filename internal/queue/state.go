package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dinver-app/dinver-media/internal/entities"
)

const (
	jobKeyPrefix  = "media:jobs:"
	statsKey      = "media:jobs:stats"
	completedList = "media:jobs:completed"
	failedList    = "media:jobs:failed"
	retryKey      = "media:jobs:retry"
)

// Stats is a point-in-time snapshot of queue occupancy.
type Stats struct {
	Queued    int64 `json:"queued"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// store is the state-machine layer over the broker: per-job Redis hashes
// plus capped retention lists for terminal jobs. The stream only delivers
// work; all externally observable state lives here.
type store struct {
	rc              redis.UniversalClient
	maxAttempts     int
	retainCompleted int
	retainFailed    int
}

func newStore(rc redis.UniversalClient, maxAttempts, retainCompleted, retainFailed int) *store {
	return &store{
		rc:              rc,
		maxAttempts:     maxAttempts,
		retainCompleted: retainCompleted,
		retainFailed:    retainFailed,
	}
}

func jobKey(id string) string { return jobKeyPrefix + id }

func (s *store) create(ctx context.Context, id string) error {
	pl := s.rc.TxPipeline()
	pl.HSet(ctx, jobKey(id),
		"status", string(entities.JobStatusQueued),
		"progress", 0,
		"attempts", 0,
		"max_attempts", s.maxAttempts,
		"enqueued_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pl.HIncrBy(ctx, statsKey, "queued", 1)
	_, err := pl.Exec(ctx)
	return err
}

// markActive claims the job for an attempt and returns the attempt number.
// A job reclaimed from a crashed worker is already active, so the counters
// move only on an actual queued to active transition.
func (s *store) markActive(ctx context.Context, id string) (int, error) {
	attempts, err := s.rc.HIncrBy(ctx, jobKey(id), "attempts", 1).Result()
	if err != nil {
		return 0, err
	}

	prev, err := s.rc.HGet(ctx, jobKey(id), "status").Result()
	if err != nil && err != redis.Nil {
		return 0, err
	}

	pl := s.rc.TxPipeline()
	pl.HSet(ctx, jobKey(id), "status", string(entities.JobStatusActive))
	if entities.JobStatus(prev) == entities.JobStatusQueued {
		pl.HIncrBy(ctx, statsKey, "queued", -1)
		pl.HIncrBy(ctx, statsKey, "active", 1)
	}
	if _, err := pl.Exec(ctx); err != nil {
		return 0, err
	}
	return int(attempts), nil
}

func (s *store) setProgress(ctx context.Context, id string, progress int) error {
	return s.rc.HSet(ctx, jobKey(id), "progress", progress).Err()
}

// markRequeued returns a failed attempt to the queued state. A caller
// polling at completion boundaries never observes the intermediate failure.
func (s *store) markRequeued(ctx context.Context, id string) error {
	pl := s.rc.TxPipeline()
	pl.HSet(ctx, jobKey(id), "status", string(entities.JobStatusQueued))
	pl.HIncrBy(ctx, statsKey, "active", -1)
	pl.HIncrBy(ctx, statsKey, "queued", 1)
	_, err := pl.Exec(ctx)
	return err
}

func (s *store) markCompleted(ctx context.Context, id string, result []entities.VariantRecord) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}

	pl := s.rc.TxPipeline()
	pl.HSet(ctx, jobKey(id),
		"status", string(entities.JobStatusCompleted),
		"progress", entities.ProgressDone,
		"result", string(raw),
		"finished_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pl.HIncrBy(ctx, statsKey, "active", -1)
	pl.HIncrBy(ctx, statsKey, "completed", 1)
	if _, err := pl.Exec(ctx); err != nil {
		return err
	}
	return s.retain(ctx, completedList, id, s.retainCompleted)
}

// markFailed is terminal. Progress stays frozen at the last checkpoint the
// attempt reached.
func (s *store) markFailed(ctx context.Context, id, errMsg string) error {
	pl := s.rc.TxPipeline()
	pl.HSet(ctx, jobKey(id),
		"status", string(entities.JobStatusFailed),
		"last_error", errMsg,
		"finished_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pl.HIncrBy(ctx, statsKey, "active", -1)
	pl.HIncrBy(ctx, statsKey, "failed", 1)
	if _, err := pl.Exec(ctx); err != nil {
		return err
	}
	return s.retain(ctx, failedList, id, s.retainFailed)
}

// retain keeps terminal jobs on a capped list, oldest evicted first. The
// result has already been delivered, so eviction is an audit concern only.
func (s *store) retain(ctx context.Context, list, id string, max int) error {
	if err := s.rc.LPush(ctx, list, id).Err(); err != nil {
		return err
	}
	n, err := s.rc.LLen(ctx, list).Result()
	if err != nil {
		return err
	}
	for n > int64(max) {
		evicted, err := s.rc.RPop(ctx, list).Result()
		if err != nil {
			return err
		}
		if err := s.rc.Del(ctx, jobKey(evicted)).Err(); err != nil {
			return err
		}
		n--
	}
	return nil
}

func (s *store) job(ctx context.Context, id string) (entities.Job, error) {
	fields, err := s.rc.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return entities.Job{}, err
	}
	if len(fields) == 0 {
		return entities.Job{}, fmt.Errorf("%w: %s", entities.ErrJobNotFound, id)
	}

	job := entities.Job{
		ID:          id,
		Status:      entities.JobStatus(fields["status"]),
		Progress:    atoi(fields["progress"]),
		Attempts:    atoi(fields["attempts"]),
		MaxAttempts: atoi(fields["max_attempts"]),
		LastError:   fields["last_error"],
	}
	if raw := fields["result"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &job.Result)
	}
	if ts := fields["enqueued_at"]; ts != "" {
		job.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if ts := fields["finished_at"]; ts != "" {
		job.FinishedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return job, nil
}

func (s *store) stats(ctx context.Context) (Stats, error) {
	fields, err := s.rc.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Queued:    int64(atoi(fields["queued"])),
		Active:    int64(atoi(fields["active"])),
		Completed: int64(atoi(fields["completed"])),
		Failed:    int64(atoi(fields["failed"])),
	}, nil
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
