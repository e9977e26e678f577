package supervisor

import (
	"time"

	"github.com/loykin/roborun/internal/process"
)

// Status classifies how a job ended.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusUserFailure    Status = "user_failure"
	StatusBackendFailure Status = "backend_failure"
	StatusTimeout        Status = "timeout"
	StatusAborted        Status = "aborted"
)

// ExitCode maps the overall status to the runner's process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusUserFailure:
		return 1
	case StatusBackendFailure:
		return 2
	case StatusTimeout:
		return 3
	case StatusAborted:
		return 4
	default:
		return 1
	}
}

// Outcome aggregates the result of one job. It is created once by the
// supervisor loop and immutable afterwards; the result collector is its
// only consumer.
type Outcome struct {
	JobID           string                  `json:"job_id"`
	Status          Status                  `json:"status"`
	Trigger         process.Role            `json:"trigger"`
	TriggerExitCode int                     `json:"trigger_exit_code"`
	ExitCodes       map[process.Role]int    `json:"exit_codes"`
	Terminated      []process.Role          `json:"terminated"` // shutdown order actually executed
	ShutdownErrors  []string                `json:"shutdown_errors,omitempty"`
	StartedAt       time.Time               `json:"started_at"`
	Duration        time.Duration           `json:"duration"`
	Statuses        map[process.Role]string `json:"statuses"`
}
