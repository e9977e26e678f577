package process

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Handle wraps one spawned process of a job. The supervisor is the only
// owner of lifecycle transitions; everything else sees read-only
// snapshots. All methods are safe for concurrent use.
//
// Exactly one reaper goroutine waits on the underlying process; Stop and
// Kill never call cmd.Wait themselves, they wait on the done channel the
// reaper closes.
type Handle struct {
	spec Spec
	cmd  *exec.Cmd

	mu        sync.Mutex
	status    Status
	killed    bool
	timedOut  bool
	outCloser io.WriteCloser
	errCloser io.WriteCloser

	done chan struct{} // closed by the reaper after cmd.Wait returns
}

// Start spawns the process described by spec in its own process group,
// with stdio captured per spec.Log. A launch failure yields a SpawnError.
func Start(spec Spec) (*Handle, error) {
	h := &Handle{spec: spec, done: make(chan struct{})}

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.Writers(spec.Role.String())
		h.outCloser, h.errCloser = outW, errW
		if outW != nil {
			cmd.Stdout = outW
		}
		if errW != nil {
			cmd.Stderr = errW
		}
	}
	if cmd.Stdout == nil {
		cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if cmd.Stderr == nil {
		cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}

	if err := cmd.Start(); err != nil {
		h.closeWriters()
		return nil, &SpawnError{Role: spec.Role, Err: err}
	}

	h.cmd = cmd
	h.mu.Lock()
	h.status = Status{
		Role:      spec.Role,
		PID:       cmd.Process.Pid,
		State:     StateStarting,
		StartedAt: time.Now(),
	}
	h.mu.Unlock()

	go h.reap()
	return h, nil
}

// reap is the single waiter on the underlying process.
func (h *Handle) reap() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.status.StoppedAt = time.Now()
	h.status.ExitErr = err
	h.status.ExitCode = exitCode(err)
	switch {
	case h.timedOut:
		h.status.State = StateTimedOut
	case h.killed:
		h.status.State = StateKilled
	default:
		h.status.State = StateExited
	}
	h.mu.Unlock()

	h.closeWriters()
	close(h.done)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// Spec returns a copy of the spec the handle was started with.
func (h *Handle) Spec() Spec { return h.spec }

// Role is a convenience accessor for the handle's role.
func (h *Handle) Role() Role { return h.spec.Role }

// Status returns a snapshot of the current status.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Done returns a channel closed once the process has exited and been
// reaped. Monitoring workers block on this instead of cmd.Wait.
func (h *Handle) Done() <-chan struct{} { return h.done }

// MarkReady records a successful readiness probe. It is a no-op once the
// process has left the starting state; readiness is never recomputed.
func (h *Handle) MarkReady() {
	h.mu.Lock()
	if h.status.State == StateStarting {
		h.status.State = StateReady
	}
	h.mu.Unlock()
}

// MarkRunning records the transition into normal operation.
func (h *Handle) MarkRunning() {
	h.mu.Lock()
	if h.status.State == StateStarting || h.status.State == StateReady {
		h.status.State = StateRunning
	}
	h.mu.Unlock()
}

// MarkTimedOut tags the handle so that its eventual exit is recorded as
// TIMED_OUT rather than KILLED. Called before Stop when a timeout fires.
func (h *Handle) MarkTimedOut() {
	h.mu.Lock()
	if !h.status.State.Terminal() {
		h.timedOut = true
	}
	h.mu.Unlock()
}

// Alive is a non-blocking liveness check.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
	}
	pid := h.cmd.Process.Pid
	// On Linux, a quickly-exiting child can linger as a zombie until the
	// reaper runs; treat that as not alive.
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	return syscall.Kill(-pid, 0) == nil
}

// Wait blocks until the process exits or timeout elapses. A zero timeout
// waits indefinitely.
func (h *Handle) Wait(timeout time.Duration) (ExitResult, error) {
	if timeout <= 0 {
		<-h.done
		st := h.Status()
		return ExitResult{Code: st.ExitCode, Err: st.ExitErr}, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.done:
		st := h.Status()
		return ExitResult{Code: st.ExitCode, Err: st.ExitErr}, nil
	case <-t.C:
		return ExitResult{}, ErrWaitTimeout
	}
}

// Stop sends SIGTERM to the process group, waits up to grace, then
// escalates to SIGKILL. Calling Stop on an already-exited handle is a
// no-op; repeated calls are safe.
func (h *Handle) Stop(grace time.Duration) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	pid := h.cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-h.done:
		return nil
	case <-t.C:
	}

	h.mu.Lock()
	if !h.timedOut {
		h.killed = true
	}
	h.mu.Unlock()
	_ = syscall.Kill(-pid, syscall.SIGKILL)

	// The kill should reap almost immediately; guard against a stuck wait.
	t2 := time.NewTimer(2 * time.Second)
	defer t2.Stop()
	select {
	case <-h.done:
		return nil
	case <-t2.C:
		return &ShutdownError{Role: h.spec.Role, Err: errors.New("process survived SIGKILL")}
	}
}

// Kill force-kills the process group without a grace period.
func (h *Handle) Kill() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	h.mu.Lock()
	if !h.timedOut {
		h.killed = true
	}
	h.mu.Unlock()
	pid := h.cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGKILL)

	t := time.NewTimer(2 * time.Second)
	defer t.Stop()
	select {
	case <-h.done:
		return nil
	case <-t.C:
		return &ShutdownError{Role: h.spec.Role, Err: errors.New("process survived SIGKILL")}
	}
}

func (h *Handle) closeWriters() {
	h.mu.Lock()
	out, errW := h.outCloser, h.errCloser
	h.outCloser, h.errCloser = nil, nil
	h.mu.Unlock()
	if out != nil {
		_ = out.Close()
	}
	if errW != nil {
		_ = errW.Close()
	}
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z).
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
