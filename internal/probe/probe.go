package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/roborun/internal/process"
)

// Check is a strategy that tests whether a backend process is able to
// serve its role, as opposed to merely having started.
// Implementations must be non-destructive and repeatable, and safe for
// concurrent use.
type Check interface {
	// Ready returns true once the probed capability is available.
	Ready() (bool, error)
	// Describe returns a human-readable description of the check.
	Describe() string
}

// Result of a readiness wait. Produced once per process at startup and
// never recomputed afterwards.
type Result string

const (
	Ready   Result = "ready"
	Timeout Result = "timeout"
	Failed  Result = "failed"
)

// Policy configures a readiness wait.
type Policy struct {
	Interval time.Duration // time between probes (default 500ms)
	Timeout  time.Duration // max total wait (default 60s)
	Check    Check
}

const (
	defaultInterval = 500 * time.Millisecond
	defaultTimeout  = 60 * time.Second
)

// WaitReady polls p.Check until it reports ready, the policy timeout
// elapses, or the probed process exits. A process that dies during the
// wait yields Failed immediately instead of waiting out the timeout.
// Context cancellation also yields Failed.
func WaitReady(ctx context.Context, h *process.Handle, p Policy) Result {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		if p.Check != nil {
			if ok, err := p.Check.Ready(); err == nil && ok {
				return Ready
			}
		}
		select {
		case <-h.Done():
			return Failed
		default:
		}
		select {
		case <-ctx.Done():
			return Failed
		case <-h.Done():
			return Failed
		case <-deadline.C:
			return Timeout
		case <-tick.C:
		}
	}
}

// Config is the file/flag representation of a check.
type Config struct {
	Type    string `json:"type" mapstructure:"type"`       // port, file, command
	Addr    string `json:"addr" mapstructure:"addr"`       // for port
	Path    string `json:"path" mapstructure:"path"`       // for file
	Command string `json:"command" mapstructure:"command"` // for command
}

// FromConfig builds a Check from its config representation.
func FromConfig(c Config) (Check, error) {
	switch c.Type {
	case "port":
		if c.Addr == "" {
			return nil, fmt.Errorf("port probe requires addr")
		}
		return PortCheck{Addr: c.Addr}, nil
	case "file":
		if c.Path == "" {
			return nil, fmt.Errorf("file probe requires path")
		}
		return FileCheck{Path: c.Path}, nil
	case "command":
		if c.Command == "" {
			return nil, fmt.Errorf("command probe requires command")
		}
		return CommandCheck{Command: c.Command}, nil
	default:
		return nil, fmt.Errorf("unknown probe type: %q", c.Type)
	}
}
