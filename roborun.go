// Package roborun runs one evaluation job: it clones and builds the
// user's code, launches the robot and data backends next to it in
// containers, supervises all three processes and collects the results
// into the job's output directory.
package roborun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/roborun/internal/config"
	"github.com/loykin/roborun/internal/container"
	"github.com/loykin/roborun/internal/history"
	"github.com/loykin/roborun/internal/history/factory"
	"github.com/loykin/roborun/internal/logger"
	"github.com/loykin/roborun/internal/metrics"
	"github.com/loykin/roborun/internal/plan"
	"github.com/loykin/roborun/internal/probe"
	"github.com/loykin/roborun/internal/process"
	"github.com/loykin/roborun/internal/report"
	"github.com/loykin/roborun/internal/server"
	"github.com/loykin/roborun/internal/supervisor"
	"github.com/loykin/roborun/internal/workspace"
	"github.com/prometheus/client_golang/prometheus"
)

// Job is the public job configuration.
type Job = config.Job

// Outcome is the public view of a finished job.
type Outcome = supervisor.Outcome

// Run executes one job from clone to report. The returned Outcome is
// non-nil whenever the job got far enough to launch processes; err is
// non-nil for failures before that point (bad config, clone or build
// errors) and those are also written to error_report.txt in the output
// directory.
func Run(ctx context.Context, cfg Job) (*Outcome, error) {
	cfg.Normalize()
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(cfg.Debug)
	collector := report.Collector{OutputDir: cfg.OutputDir}

	out, err := run(ctx, cfg, log, collector)
	if err != nil {
		if rerr := collector.StoreErrorReport(err); rerr != nil {
			log.Error("failed to store error report", "error", rerr)
		}
	}
	return out, err
}

func run(ctx context.Context, cfg Job, log *slog.Logger, collector report.Collector) (*Outcome, error) {
	_ = metrics.Register(prometheus.DefaultRegisterer)

	var sink history.Sink
	if cfg.HistoryDSN != "" {
		s, err := factory.NewSinkFromDSN(cfg.HistoryDSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		sink = s
		defer func() { _ = sink.Close() }()
	}

	startedAt := time.Now()
	recordEvent(ctx, sink, log, history.Event{
		Type:       history.EventJobStarted,
		OccurredAt: startedAt,
		Record: history.Record{
			JobID:      cfg.JobID,
			Repository: cfg.Repository,
			OutputDir:  cfg.OutputDir,
		},
	})

	// Workspace: clone and build the user's code outside the output
	// directory so partial builds never end up in the results.
	wsDir, err := os.MkdirTemp("", "roborun-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer func() { _ = os.RemoveAll(wsDir) }()
	srcDir := filepath.Join(wsDir, "src")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace src: %w", err)
	}

	log.Info("cloning user code", "repository", cfg.Repository, "branch", cfg.Branch)
	revision, err := workspace.Clone(ctx, cfg, srcDir)
	if err != nil {
		return nil, err
	}

	goal, err := workspace.SampleGoal(ctx, cfg, srcDir)
	if err != nil {
		return nil, err
	}

	if err := collector.StoreInfo(cfg.JobID, revision); err != nil {
		return nil, err
	}
	if err := collector.StoreGoal(goal); err != nil {
		return nil, err
	}
	if err := collector.EnsureUserOutputDir(); err != nil {
		return nil, err
	}

	log.Info("building user code")
	if err := workspace.Build(ctx, cfg, wsDir); err != nil {
		return nil, err
	}

	policies, err := probePolicies(cfg)
	if err != nil {
		return nil, err
	}

	sup := supervisor.New(supervisor.Config{
		JobID: cfg.JobID,
		Launcher: &container.Launcher{
			Job:          cfg,
			WorkspaceDir: wsDir,
			Goal:         goal,
		},
		Plan:       plan.Default(),
		Probes:     policies,
		JobTimeout: cfg.JobTimeout,
		StopGrace:  cfg.StopGrace,
		Logger:     log,
	})

	if cfg.Listen != "" {
		srv := server.NewServer(cfg.Listen, sup)
		defer func() { _ = srv.Close() }()
		log.Info("status server listening", "addr", cfg.Listen)
	}

	out := sup.Run(ctx)

	if err := collector.StoreReport(out); err != nil {
		log.Error("failed to store report", "error", err)
	}

	recordEvent(ctx, sink, log, history.Event{
		Type:       history.EventJobFinished,
		OccurredAt: time.Now(),
		Record: history.Record{
			JobID:       cfg.JobID,
			Repository:  cfg.Repository,
			Status:      string(out.Status),
			TriggerRole: out.Trigger.String(),
			ExitCode:    out.Status.ExitCode(),
			DurationMS:  out.Duration.Milliseconds(),
			OutputDir:   cfg.OutputDir,
		},
	})

	return out, nil
}

func probePolicies(cfg Job) (map[process.Role]probe.Policy, error) {
	policies := make(map[process.Role]probe.Policy, 2)
	for role, pc := range map[process.Role]probe.Config{
		process.RoleDataBackend:  cfg.DataProbe,
		process.RoleRobotBackend: cfg.RobotProbe,
	} {
		check, err := probe.FromConfig(pc)
		if err != nil {
			return nil, fmt.Errorf("%s readiness probe: %w", role.String(), err)
		}
		policies[role] = probe.Policy{
			Interval: cfg.ProbeInterval,
			Timeout:  cfg.ReadyTimeout,
			Check:    check,
		}
	}
	return policies, nil
}

func recordEvent(ctx context.Context, sink history.Sink, log *slog.Logger, e history.Event) {
	if sink == nil {
		return
	}
	if err := sink.Send(ctx, e); err != nil {
		log.Warn("history event not recorded", "event", string(e.Type), "error", err)
	}
}
