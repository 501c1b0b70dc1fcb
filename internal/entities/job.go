package entities

import "time"

// JobStatus is the queue-visible lifecycle of one processing job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobPayload is what gets pushed onto the stream. Raw bytes ride along
// base64-encoded inside the stream entry; workers do not re-fetch the source.
type JobPayload struct {
	Folder       string `json:"folder"`
	BaseName     string `json:"base_name"`
	ContentType  string `json:"content_type"`
	Data         []byte `json:"data"`
	KeepOriginal bool   `json:"keep_original,omitempty"`
}

// Job is the externally observable state of queued work.
type Job struct {
	ID          string          `json:"id"`
	Status      JobStatus       `json:"status"`
	Progress    int             `json:"progress"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Result      []VariantRecord `json:"result,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// Progress checkpoints reported by the worker. Coarse on purpose: enough
// for a polling caller to render an indicator.
const (
	ProgressGenerating = 10
	ProgressGenerated  = 50
	ProgressStored     = 90
	ProgressDone       = 100
)
