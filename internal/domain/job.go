package domain

import (
	"context"
	"time"
)

// JobStatus is the terminal state a job ended in.
type JobStatus string

const (
	JobReplied          JobStatus = "replied"
	JobSizeExceeded     JobStatus = "size_exceeded"
	JobNoPayload        JobStatus = "no_payload"
	JobTransportFailure JobStatus = "transport_failure"
	JobEngineFailure    JobStatus = "engine_failure"
	JobUnexpected       JobStatus = "unexpected_failure"
)

// JobRecord is one finished job as kept in the history store.
type JobRecord struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	ChatID     string    `json:"chat_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Preset     string    `json:"preset"`
	Origin     string    `json:"origin,omitempty"`
	InputBytes int64     `json:"input_bytes"`
	OutputName string    `json:"output_name,omitempty"`
	Status     JobStatus `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// JobStats aggregates job counts per status.
type JobStats struct {
	Total    int64
	ByStatus map[JobStatus]int64
}

// JobHistory persists finished jobs.
type JobHistory interface {
	Record(ctx context.Context, rec JobRecord) error
	Recent(ctx context.Context, limit int) ([]JobRecord, error)
	Stats(ctx context.Context) (JobStats, error)
	Close() error
}
