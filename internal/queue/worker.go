package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"

	"github.com/dinver-app/dinver-media/internal/config"
	"github.com/dinver-app/dinver-media/internal/entities"
	"github.com/dinver-app/dinver-media/internal/eventbus"
	"github.com/dinver-app/dinver-media/internal/processor"
)

// retrySweepInterval bounds how late a delayed retry can fire past its
// backoff; it stays well under the production backoff base.
const retrySweepInterval = 250 * time.Millisecond

// Storage is the slice of the object store gateway a worker needs.
type Storage interface {
	Put(ctx context.Context, key, contentType string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

// Generator renders the variant set for one payload.
type Generator interface {
	Generate(ctx context.Context, data []byte, opts processor.Options) (*processor.Result, error)
}

// Catalog persists the completed asset as a durable reference outside the
// queue's retention window.
type Catalog interface {
	SaveAsset(ctx context.Context, asset entities.MediaAsset, variants []entities.VariantRecord) error
}

// Worker consumes the priority streams and drives the job state machine.
// Generation plus storage upload run as a single unit of work per job.
type Worker struct {
	rc      redis.UniversalClient
	cfg     config.PipelineConfig
	store   *store
	storage Storage
	gen     Generator
	catalog Catalog
	bus     *eventbus.Bus
}

func newWorker(rc redis.UniversalClient, cfg config.PipelineConfig, st *store, storage Storage, gen Generator, catalog Catalog, bus *eventbus.Bus) *Worker {
	return &Worker{
		rc:      rc,
		cfg:     cfg,
		store:   st,
		storage: storage,
		gen:     gen,
		catalog: catalog,
		bus:     bus,
	}
}

func (w *Worker) streams() []string {
	return []string{
		streamName(w.cfg.Stream, PriorityHigh),
		streamName(w.cfg.Stream, PriorityNormal),
		streamName(w.cfg.Stream, PriorityLow),
	}
}

func (w *Worker) EnsureGroups(ctx context.Context) error {
	for _, stream := range w.streams() {
		// Without MkStream, Redis would error out if you try to create a group
		// before any messages exist in the stream.
		err := w.rc.XGroupCreateMkStream(ctx, stream, w.cfg.Group, "0").Err()
		// Redis returns BUSYGROUP if the group already exists therefore we check for other errors
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return err
		}
	}
	return nil
}

func (w *Worker) Start(ctx context.Context) error {
	if err := w.EnsureGroups(ctx); err != nil {
		return fmt.Errorf("failed to ensure Redis groups: %w", err)
	}

	log.Printf("[media-worker] starting consumer group=%s stream=%s workers=%d",
		w.cfg.Group, w.cfg.Stream, w.cfg.Workers,
	)

	// Adopt orphaned pending messages from crashed workers
	w.autoClaim(ctx)

	errCh := make(chan error, w.cfg.Workers)
	for i := 0; i < w.cfg.Workers; i++ {
		id := i
		go func() {
			err := w.loop(ctx)
			if err != nil {
				log.Printf("[media-worker] worker #%d stopped with error: %v", id, err)
			}
			errCh <- err
		}()
	}

	// Periodic sweeps: stalled claims are reclaimed and due delayed retries
	// are moved back onto their streams without a restart.
	w.sweepRetries(ctx)
	go func() {
		claims := time.NewTicker(time.Minute)
		defer claims.Stop()
		retries := time.NewTicker(retrySweepInterval)
		defer retries.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-claims.C:
				w.autoClaim(ctx)
			case <-retries.C:
				w.sweepRetries(ctx)
			}
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("[media-worker] context canceled, stopping all workers")
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker loop exited with error: %w", err)
		}
		return nil
	}
}

// autoClaim scans each stream's consumer group for messages that were
// delivered to a consumer but never acknowledged, usually because a worker
// crashed before XACK. We take ownership of those idle messages and run
// them, so a claimed-but-unfinished job is never silently lost.
func (w *Worker) autoClaim(ctx context.Context) {
	minIdle := w.cfg.StallMinIdle
	if minIdle <= 0 {
		// Don't steal messages still being processed by slow workers.
		minIdle = 30 * time.Second
		if t := w.cfg.BlockTimeout * 6; t > minIdle {
			minIdle = t
		}
	}

	for _, stream := range w.streams() {
		next := "0-0"
		for {
			msgs, start, err := w.rc.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    w.cfg.Group,
				Consumer: w.cfg.Consumer,
				MinIdle:  minIdle,
				Start:    next,
				Count:    100,
			}).Result()
			if err != nil || len(msgs) == 0 {
				break
			}
			for _, m := range msgs {
				if err := w.handle(ctx, stream, m); err != nil {
					log.Printf("[media-worker] reclaimed job failed: %v", err)
				}
			}
			next = start
		}
	}
}

func (w *Worker) loop(ctx context.Context) error {
	// Streams are listed high priority first; XREADGROUP returns entries in
	// the order the streams were given, so higher priorities drain first.
	streams := append(w.streams(), ">", ">", ">")

	for {
		res, err := w.rc.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			Streams:  streams,
			Count:    1,
			Block:    w.cfg.BlockTimeout,
		}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		for _, s := range res {
			for _, m := range s.Messages {
				if err := w.handle(ctx, s.Stream, m); err != nil {
					log.Printf("[media-worker] job failed: %v", err)
				}
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, stream string, m redis.XMessage) error {
	// The message stays in the pending entries list until XACK; a crash
	// before this defer runs leaves it for autoClaim to reclaim.
	defer w.rc.XAck(ctx, stream, w.cfg.Group, m.ID)

	raw, ok := m.Values["payload"].(string)
	if !ok {
		sentry.CaptureMessage(fmt.Sprintf("malformed stream entry %s on %s", m.ID, stream))
		return nil
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		sentry.CaptureException(fmt.Errorf("decode stream entry %s: %w", m.ID, err))
		return nil
	}

	attempt, err := w.store.markActive(ctx, env.JobID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", env.JobID, err)
	}
	w.publish(env.JobID, entities.JobStatusActive, 0, "")

	// Hard per-job deadline, distinct from retry backoff.
	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	records, perr := w.process(jobCtx, env)
	cancel()

	if perr != nil {
		if attempt >= w.cfg.MaxAttempts {
			if err := w.store.markFailed(ctx, env.JobID, perr.Error()); err != nil {
				return err
			}
			sentry.CaptureException(fmt.Errorf("job %s failed after %d attempts: %w", env.JobID, attempt, perr))
			w.publish(env.JobID, entities.JobStatusFailed, 0, perr.Error())
			return perr
		}

		if err := w.store.markRequeued(ctx, env.JobID); err != nil {
			return err
		}
		// The delayed retry is persisted before the deferred XAck runs, so a
		// crash during the backoff window leaves either the retry entry or
		// the unacked original for another worker to pick up.
		backoff := w.cfg.BackoffBase << (attempt - 1)
		if err := w.scheduleRetry(ctx, stream, raw, backoff); err != nil {
			sentry.CaptureException(fmt.Errorf("schedule retry for job %s: %w", env.JobID, err))
			return err
		}
		w.publish(env.JobID, entities.JobStatusQueued, 0, "")
		return perr
	}

	if err := w.store.markCompleted(ctx, env.JobID, records); err != nil {
		return err
	}
	w.publish(env.JobID, entities.JobStatusCompleted, entities.ProgressDone, "")
	return nil
}

// process runs Generator then Gateway as one unit of work, reporting the
// coarse progress checkpoints along the way.
func (w *Worker) process(ctx context.Context, env envelope) ([]entities.VariantRecord, error) {
	p := env.Payload

	_ = w.store.setProgress(ctx, env.JobID, entities.ProgressGenerating)
	w.publish(env.JobID, entities.JobStatusActive, entities.ProgressGenerating, "")

	res, err := w.gen.Generate(ctx, p.Data, processor.Options{
		KeepOriginal: p.KeepOriginal,
		Concurrency:  w.cfg.VariantParallel,
	})
	if err != nil {
		return nil, fmt.Errorf("generate variants for %s/%s: %w", p.Folder, p.BaseName, err)
	}

	_ = w.store.setProgress(ctx, env.JobID, entities.ProgressGenerated)
	w.publish(env.JobID, entities.JobStatusActive, entities.ProgressGenerated, "")

	records := make([]entities.VariantRecord, 0, len(res.Variants))
	written := make([]string, 0, len(res.Variants))
	for _, name := range entities.AllVariants() {
		buf, ok := res.Variants[name]
		if !ok {
			continue
		}
		key := entities.StorageKey(p.Folder, p.BaseName, name)
		if err := w.storage.Put(ctx, key, "image/jpeg", buf.Data); err != nil {
			// Roll back what landed so the baseName stays all-or-nothing.
			for _, k := range written {
				if derr := w.storage.Delete(context.WithoutCancel(ctx), k); derr != nil {
					log.Printf("[media-worker] rollback delete %s: %v", k, derr)
				}
			}
			return nil, err
		}
		written = append(written, key)
		records = append(records, entities.VariantRecord{
			Name:       name,
			StorageKey: key,
			Width:      buf.Width,
			Height:     buf.Height,
			ByteSize:   int64(len(buf.Data)),
			Format:     "jpeg",
		})
	}

	_ = w.store.setProgress(ctx, env.JobID, entities.ProgressStored)
	w.publish(env.JobID, entities.JobStatusActive, entities.ProgressStored, "")

	if w.catalog != nil {
		asset := entities.MediaAsset{
			BaseName:        p.BaseName,
			Folder:          p.Folder,
			SourceFormat:    res.Format,
			OriginalWidth:   res.Width,
			OriginalHeight:  res.Height,
			SourceSizeBytes: int64(len(p.Data)),
			CreatedAt:       time.Now().UTC(),
		}
		// The job result is still delivered through Await/Status; a catalog
		// write failure is reported, not retried with the whole job.
		if err := w.catalog.SaveAsset(ctx, asset, records); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[media-worker] catalog save %s/%s: %v", p.Folder, p.BaseName, err)
			sentry.CaptureException(err)
		}
	}

	return records, nil
}

// retryEntry is one delayed attempt parked in the retry sorted set, scored
// by its due time in unix milliseconds.
type retryEntry struct {
	Stream  string `json:"stream"`
	Payload string `json:"payload"`
}

func (w *Worker) scheduleRetry(ctx context.Context, stream, payload string, delay time.Duration) error {
	raw, err := json.Marshal(retryEntry{Stream: stream, Payload: payload})
	if err != nil {
		return err
	}
	return w.rc.ZAdd(ctx, retryKey, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: string(raw),
	}).Err()
}

// sweepRetries moves due retry entries back onto their streams. Any worker
// can sweep; ZRem decides the winner when several race for one entry.
func (w *Worker) sweepRetries(ctx context.Context) {
	due, err := w.rc.ZRangeByScore(ctx, retryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}).Result()
	if err != nil || len(due) == 0 {
		return
	}

	for _, raw := range due {
		removed, err := w.rc.ZRem(ctx, retryKey, raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		var entry retryEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			sentry.CaptureException(fmt.Errorf("malformed retry entry: %w", err))
			continue
		}
		err = w.rc.XAdd(ctx, &redis.XAddArgs{
			Stream: entry.Stream,
			MaxLen: w.cfg.MaxLen,
			Values: map[string]any{
				"payload": entry.Payload,
			},
		}).Err()
		if err != nil {
			sentry.CaptureException(fmt.Errorf("requeue delayed job: %w", err))
			// Park it again so the next sweep retries the hand-off.
			w.rc.ZAdd(ctx, retryKey, redis.Z{
				Score:  float64(time.Now().UnixMilli()),
				Member: raw,
			})
		}
	}
}

func (w *Worker) publish(jobID string, status entities.JobStatus, progress int, msg string) {
	if w.bus != nil {
		w.bus.Publish(eventbus.Event{
			JobID:    jobID,
			Status:   status,
			Progress: progress,
			Message:  msg,
		})
	}
}
