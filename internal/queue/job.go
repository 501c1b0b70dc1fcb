package queue

import "github.com/dinver-app/dinver-media/internal/entities"

// Priority orders jobs within the broker; lower numbers drain first. It
// never preempts in-flight work.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 1
	PriorityLow    Priority = 2
)

// envelope is the stream entry. The payload carries the source bytes, so a
// worker never has to re-fetch anything to run a job.
type envelope struct {
	JobID   string              `json:"job_id"`
	Payload entities.JobPayload `json:"payload"`
}

func (p Priority) clamp() Priority {
	if p < PriorityHigh {
		return PriorityHigh
	}
	if p > PriorityLow {
		return PriorityLow
	}
	return p
}
