// Package supervisor implements the job-execution core: it starts the
// backend processes, readiness-gates them, starts the user code, waits
// for the first exit among all handles and then drives the ordered
// shutdown of the rest before assembling the job outcome.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/roborun/internal/metrics"
	"github.com/loykin/roborun/internal/plan"
	"github.com/loykin/roborun/internal/probe"
	"github.com/loykin/roborun/internal/process"
)

// Launcher starts the container process for a role. The production
// implementation builds singularity invocations; tests substitute plain
// commands.
type Launcher interface {
	Launch(role process.Role) (*process.Handle, error)
}

// State of the supervisor loop.
type State string

const (
	StateInit             State = "init"
	StateStartingBackends State = "starting_backends"
	StateWaitingReady     State = "waiting_ready"
	StateRunningUserCode  State = "running_user_code"
	StateMonitoring       State = "monitoring"
	StateShuttingDown     State = "shutting_down"
	StateDone             State = "done"
)

// Config for one job supervisor.
type Config struct {
	JobID      string
	Launcher   Launcher
	Plan       plan.Plan
	Probes     map[process.Role]probe.Policy // readiness policy per backend role
	JobTimeout time.Duration                 // overall wall-clock limit, 0 = none
	StopGrace  time.Duration                 // per-process grace before SIGKILL (default 10s)
	Logger     *slog.Logger
}

// Supervisor owns the role→handle table. All lifecycle mutations are
// funneled through Run; everything else only reads snapshots.
type Supervisor struct {
	cfg Config

	mu      sync.Mutex
	state   State
	handles map[process.Role]*process.Handle
}

// completion is one handle's exit reported onto the fan-in channel.
type completion struct {
	role process.Role
	code int
}

// readinessError is returned by the probe group when a backend never
// became usable.
type readinessError struct {
	role   process.Role
	result probe.Result
}

func (e *readinessError) Error() string {
	return fmt.Sprintf("backend %s readiness: %s", e.role, e.result)
}

func New(cfg Config) *Supervisor {
	if cfg.Plan == nil {
		cfg.Plan = plan.Default()
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{
		cfg:     cfg,
		state:   StateInit,
		handles: make(map[process.Role]*process.Handle),
	}
}

// State returns the current loop state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns read-only copies of all handle statuses.
func (s *Supervisor) Snapshot() map[process.Role]process.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[process.Role]process.Status, len(s.handles))
	for role, h := range s.handles {
		out[role] = h.Status()
	}
	return out
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.cfg.Logger.Debug("supervisor state", "state", string(st))
}

func (s *Supervisor) putHandle(role process.Role, h *process.Handle) {
	s.mu.Lock()
	s.handles[role] = h
	s.mu.Unlock()
}

func (s *Supervisor) handle(role process.Role) *process.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[role]
}

// Run executes the job to completion. It always returns an outcome, even
// when cleanup is imperfect; shutdown errors are recorded on the outcome
// rather than propagated.
func (s *Supervisor) Run(ctx context.Context) *Outcome {
	started := time.Now()
	out := &Outcome{
		JobID:     s.cfg.JobID,
		StartedAt: started,
		ExitCodes: make(map[process.Role]int),
		Statuses:  make(map[process.Role]string),
	}
	metrics.IncJobStarted()
	defer func() {
		out.Duration = time.Since(started)
		s.setState(StateDone)
		metrics.ObserveJob(string(out.Status), out.Duration.Seconds())
	}()

	backends := []process.Role{process.RoleDataBackend, process.RoleRobotBackend}

	// Launch backends. Spawn failures are fatal, no retry.
	s.setState(StateStartingBackends)
	for _, role := range backends {
		h, err := s.cfg.Launcher.Launch(role)
		if err != nil {
			s.cfg.Logger.Error("failed to launch backend", "role", role.String(), "error", err)
			out.Status = StatusBackendFailure
			out.Trigger = role
			s.shutdown(out, role)
			return out
		}
		s.putHandle(role, h)
		s.cfg.Logger.Info("backend started", "role", role.String(), "pid", h.Status().PID)
	}

	// Gate on readiness. A backend that never becomes ready must never
	// let the user code start.
	s.setState(StateWaitingReady)
	g, gctx := errgroup.WithContext(ctx)
	for _, role := range backends {
		role := role
		h := s.handle(role)
		pol := s.cfg.Probes[role]
		g.Go(func() error {
			res := probe.WaitReady(gctx, h, pol)
			if res != probe.Ready {
				return &readinessError{role: role, result: res}
			}
			h.MarkReady()
			s.cfg.Logger.Info("backend ready", "role", role.String())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var re *readinessError
		switch {
		case ctx.Err() != nil:
			out.Status = StatusAborted
			out.Trigger = process.RoleUserCode
		case errors.As(err, &re) && re.result == probe.Timeout:
			out.Status = StatusTimeout
			out.Trigger = re.role
		case errors.As(err, &re):
			out.Status = StatusBackendFailure
			out.Trigger = re.role
		default:
			out.Status = StatusBackendFailure
			out.Trigger = process.RoleDataBackend
		}
		s.cfg.Logger.Error("readiness gate failed", "error", err)
		s.shutdown(out, out.Trigger)
		return out
	}

	// Start the user code.
	s.setState(StateRunningUserCode)
	uh, err := s.cfg.Launcher.Launch(process.RoleUserCode)
	if err != nil {
		s.cfg.Logger.Error("failed to launch user code", "error", err)
		out.Status = StatusUserFailure
		out.Trigger = process.RoleUserCode
		s.shutdown(out, process.RoleUserCode)
		return out
	}
	s.putHandle(process.RoleUserCode, uh)
	uh.MarkRunning()
	for _, role := range backends {
		s.handle(role).MarkRunning()
	}
	s.cfg.Logger.Info("user code started", "pid", uh.Status().PID)

	// Monitor all handles; the first exit wins.
	s.setState(StateMonitoring)
	completions := make(chan completion, len(process.Roles()))
	for _, role := range process.Roles() {
		role := role
		h := s.handle(role)
		go func() {
			<-h.Done()
			completions <- completion{role: role, code: h.Status().ExitCode}
		}()
	}

	var timeoutC <-chan time.Time
	if s.cfg.JobTimeout > 0 {
		remaining := s.cfg.JobTimeout - time.Since(started)
		if remaining < 0 {
			remaining = 0
		}
		tm := time.NewTimer(remaining)
		defer tm.Stop()
		timeoutC = tm.C
	}

	select {
	case c := <-completions:
		c = selectTrigger(c, completions)
		out.Trigger = c.role
		out.TriggerExitCode = c.code
		s.cfg.Logger.Info("process exited, starting shutdown",
			"trigger", c.role.String(), "exit_code", c.code)
	case <-ctx.Done():
		// External abort is treated identically to a user-code exit.
		out.Status = StatusAborted
		out.Trigger = process.RoleUserCode
		s.cfg.Logger.Warn("abort signal received, starting shutdown")
	case <-timeoutC:
		out.Status = StatusTimeout
		out.Trigger = process.RoleUserCode
		s.markAllTimedOut()
		s.cfg.Logger.Warn("job timeout exceeded, starting shutdown",
			"timeout", s.cfg.JobTimeout)
	}

	s.shutdown(out, out.Trigger)

	if out.Status == "" {
		out.Status = s.classify(out)
	}
	return out
}

// selectTrigger drains completions already queued when the first one was
// received and breaks the tie by role priority, so exactly one trigger is
// recognized even when several processes exit in the same tick.
func selectTrigger(first completion, more <-chan completion) completion {
	best := first
	for {
		select {
		case c := <-more:
			if c.role.Priority() < best.role.Priority() {
				best = c
			}
		default:
			return best
		}
	}
}

// shutdown executes the plan for the trigger role and records final
// per-role results. Errors during shutdown are recorded but never
// prevent completion.
func (s *Supervisor) shutdown(out *Outcome, trigger process.Role) {
	s.setState(StateShuttingDown)

	// The trigger itself is stopped first when it is still alive (abort
	// and timeout reach here with all processes running).
	sequence := append([]process.Role{trigger}, s.cfg.Plan.Ordering(trigger)...)
	for _, role := range sequence {
		h := s.handle(role)
		if h == nil {
			continue
		}
		if h.Status().State.Terminal() {
			continue
		}
		out.Terminated = append(out.Terminated, role)
		s.cfg.Logger.Info("terminating", "role", role.String())
		if err := h.Stop(s.cfg.StopGrace); err != nil {
			out.ShutdownErrors = append(out.ShutdownErrors, err.Error())
			s.cfg.Logger.Error("terminate failed", "role", role.String(), "error", err)
		}
	}

	for role, h := range s.snapshotHandles() {
		st := h.Status()
		out.ExitCodes[role] = st.ExitCode
		out.Statuses[role] = string(st.State)
		metrics.IncProcessExit(role.String(), st.ExitCode)
	}
}

func (s *Supervisor) snapshotHandles() map[process.Role]*process.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[process.Role]*process.Handle, len(s.handles))
	for role, h := range s.handles {
		out[role] = h
	}
	return out
}

func (s *Supervisor) markAllTimedOut() {
	for _, h := range s.snapshotHandles() {
		h.MarkTimedOut()
	}
}

// classify derives the overall status for the normal trigger path.
// Abort, timeout and readiness failures set the status before shutdown.
func (s *Supervisor) classify(out *Outcome) Status {
	if out.Trigger != process.RoleUserCode {
		return StatusBackendFailure
	}
	if out.TriggerExitCode != 0 {
		return StatusUserFailure
	}
	// User code finished cleanly; a backend that exited on its own with a
	// non-zero code still fails the job. Exits caused by our own signals
	// are recorded as killed/timed_out states and don't count here.
	for role, h := range s.snapshotHandles() {
		if role == process.RoleUserCode {
			continue
		}
		st := h.Status()
		if st.State == process.StateExited && st.ExitCode > 0 {
			return StatusBackendFailure
		}
	}
	return StatusSuccess
}
