// Package history exports job lifecycle events to external systems for
// bookkeeping and statistics.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventJobStarted  EventType = "job_started"
	EventJobFinished EventType = "job_finished"
)

// Record is the persisted view of one job.
type Record struct {
	JobID       string `json:"job_id"`
	Repository  string `json:"repository"`
	Status      string `json:"status"`       // empty for job_started
	TriggerRole string `json:"trigger_role"` // empty for job_started
	ExitCode    int    `json:"exit_code"`
	DurationMS  int64  `json:"duration_ms"`
	OutputDir   string `json:"output_dir"`
}

// Event represents a lifecycle event to be exported.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
