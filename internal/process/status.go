package process

import "time"

// State is the lifecycle state of a supervised process.
type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateKilled   State = "killed"
	StateTimedOut State = "timed_out"
)

// Terminal reports whether the state means the process has left RUNNING.
func (s State) Terminal() bool {
	switch s {
	case StateExited, StateKilled, StateTimedOut:
		return true
	default:
		return false
	}
}

// Status is a point-in-time snapshot of a handle.
type Status struct {
	Role      Role      `json:"role"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitCode  int       `json:"exit_code"`
	ExitErr   error     `json:"-"`
}

// ExitResult is what Wait returns once the process has been reaped.
type ExitResult struct {
	Code int
	Err  error
}
