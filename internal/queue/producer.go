package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dinver-app/dinver-media/internal/entities"
)

// Producer writes jobs to the priority streams and seeds their state hash.
type Producer struct {
	rc     redis.UniversalClient
	stream string
	maxLen int64
	store  *store
}

func newProducer(rc redis.UniversalClient, stream string, maxLen int64, st *store) *Producer {
	return &Producer{rc: rc, stream: stream, maxLen: maxLen, store: st}
}

func streamName(stream string, prio Priority) string {
	return fmt.Sprintf("%s:p%d", stream, prio)
}

// Enqueue registers the job as queued and appends it to the stream for its
// priority. The returned ID is immediately pollable.
func (p *Producer) Enqueue(ctx context.Context, payload entities.JobPayload, prio Priority) (string, error) {
	id := uuid.NewString()

	if err := p.store.create(ctx, id); err != nil {
		return "", fmt.Errorf("create job state: %w", err)
	}

	raw, err := json.Marshal(envelope{JobID: id, Payload: payload})
	if err != nil {
		return "", err
	}

	err = p.rc.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName(p.stream, prio.clamp()),
		MaxLen: p.maxLen,
		Values: map[string]any{
			"payload": string(raw),
		},
	}).Err()
	if err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", id, err)
	}
	return id, nil
}
