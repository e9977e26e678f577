package process

import (
	"errors"
	"fmt"
)

// ErrWaitTimeout is returned by Wait when the timeout elapses before the
// process exits.
var ErrWaitTimeout = errors.New("timeout exceeded waiting for process exit")

// SpawnError means the container/process could not be launched at all.
// It is fatal for the job; the supervisor never retries it.
type SpawnError struct {
	Role Role
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Role, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ShutdownError records a terminate() that failed to stop a process
// within its grace period. It is reported but never blocks job completion.
type ShutdownError struct {
	Role Role
	Err  error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown %s: %v", e.Role, e.Err)
}

func (e *ShutdownError) Unwrap() error { return e.Err }
