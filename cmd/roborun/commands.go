package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loykin/roborun"
	"github.com/loykin/roborun/internal/config"
)

// RunFlags holds flags for the run command
type RunFlags struct {
	ConfigPath string

	OutputDir     string
	Repository    string
	Branch        string
	BackendImage  string
	UserImage     string
	UserDataDir   string
	EpisodeLength int
	Task          string
	Backend       string

	SimVisualize    bool
	SimRenderImages bool
	SingularityNV   bool

	JobTimeout time.Duration
	Listen     string
	HistoryDSN string
	Debug      bool
}

// SubmissionFlags holds flags for the batch-system submission command
type SubmissionFlags struct {
	ConfigPath string
	PayloadDir string
	OutputRoot string
	Debug      bool
}

// createRunCommand creates the run subcommand for directly configured jobs
func createRunCommand(f *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single job with explicit configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := jobFromRunFlags(f)
			if err != nil {
				return err
			}
			return executeJob(cmd, job)
		},
	}

	cmd.Flags().StringVar(&f.ConfigPath, "config", "", "path to TOML config file (optional)")
	cmd.Flags().StringVarP(&f.OutputDir, "output-dir", "o", "", "directory the job results are written to")
	cmd.Flags().StringVarP(&f.Repository, "repository", "r", "", "git repository with the user code")
	cmd.Flags().StringVarP(&f.Branch, "branch", "b", "master", "branch to check out")
	cmd.Flags().StringVar(&f.BackendImage, "backend-image", "", "container image for the backends")
	cmd.Flags().StringVar(&f.UserImage, "user-image", "", "container image for the user code (defaults to backend image)")
	cmd.Flags().StringVar(&f.UserDataDir, "user-data-dir", "", "directory bound read-only into the user container")
	cmd.Flags().IntVar(&f.EpisodeLength, "episode-length", 0, "episode length in milliseconds (0 = default)")
	cmd.Flags().StringVar(&f.Task, "task", "none", "task to sample a goal for (none, move_cube, move_cube_on_trajectory, rearrange_dice)")
	cmd.Flags().StringVar(&f.Backend, "backend", string(config.BackendSimulation), "backend kind (robot, simulation, log_replay)")
	cmd.Flags().BoolVar(&f.SimVisualize, "sim-visualize", false, "open the simulation GUI")
	cmd.Flags().BoolVar(&f.SimRenderImages, "sim-render-images", false, "render camera images in simulation")
	cmd.Flags().BoolVar(&f.SingularityNV, "singularity-nv", false, "enable NVIDIA support in the containers")
	cmd.Flags().DurationVar(&f.JobTimeout, "job-timeout", 0, "overall wall-clock limit (0 = none)")
	cmd.Flags().StringVar(&f.Listen, "listen", "", "address for the status/metrics HTTP server (optional)")
	cmd.Flags().StringVar(&f.HistoryDSN, "history-dsn", "", "history sink DSN (sqlite, postgres or clickhouse)")
	cmd.Flags().BoolVar(&f.Debug, "debug", false, "enable debug logging")

	return cmd
}

// createSubmissionCommand creates the submission subcommand for jobs
// scheduled by the cluster batch system
func createSubmissionCommand(f *SubmissionFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submission",
		Short: "Run a batch-system submission using the user's payload",
		Long: `Runs a job scheduled by the batch system. The job id comes from
$JOB_ID, the repository and optional overrides from roboch.json in the
user payload directory, and results go below the shared output root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := jobFromSubmission(f)
			if err != nil {
				return err
			}
			return executeJob(cmd, job)
		},
	}

	cmd.Flags().StringVar(&f.ConfigPath, "config", "", "path to TOML config file with site defaults")
	cmd.Flags().StringVar(&f.PayloadDir, "payload-dir", "", "user payload directory (defaults to ~/payload)")
	cmd.Flags().StringVar(&f.OutputRoot, "output-root", "/shared/output", "root of the shared results tree")
	cmd.Flags().BoolVar(&f.Debug, "debug", false, "enable debug logging")

	return cmd
}

func jobFromRunFlags(f *RunFlags) (roborun.Job, error) {
	var job roborun.Job
	if f.ConfigPath != "" {
		if err := config.LoadFile(f.ConfigPath, &job); err != nil {
			return job, err
		}
	}

	if f.OutputDir != "" {
		job.OutputDir = f.OutputDir
	}
	if f.Repository != "" {
		job.Repository = f.Repository
	}
	if f.Branch != "" {
		job.Branch = f.Branch
	}
	if f.BackendImage != "" {
		job.BackendImage = f.BackendImage
	}
	if f.UserImage != "" {
		job.UserImage = f.UserImage
	}
	if f.UserDataDir != "" {
		job.UserDataDir = f.UserDataDir
	}
	if f.EpisodeLength > 0 {
		job.EpisodeLength = f.EpisodeLength
	}
	if f.Task != "" {
		job.TaskName = f.Task
	}
	if f.Backend != "" {
		job.Backend = config.BackendKind(f.Backend)
	}
	job.SimVisualize = job.SimVisualize || f.SimVisualize
	job.SimRenderImages = job.SimRenderImages || f.SimRenderImages
	job.SingularityNV = job.SingularityNV || f.SingularityNV
	if f.JobTimeout > 0 {
		job.JobTimeout = f.JobTimeout
	}
	if f.Listen != "" {
		job.Listen = f.Listen
	}
	if f.HistoryDSN != "" {
		job.HistoryDSN = f.HistoryDSN
	}
	job.Debug = job.Debug || f.Debug

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	return job, nil
}

func jobFromSubmission(f *SubmissionFlags) (roborun.Job, error) {
	var job roborun.Job
	if f.ConfigPath != "" {
		if err := config.LoadFile(f.ConfigPath, &job); err != nil {
			return job, err
		}
	}
	job.Debug = job.Debug || f.Debug

	usr, err := user.Current()
	if err != nil {
		return job, fmt.Errorf("resolve current user: %w", err)
	}

	payloadDir := f.PayloadDir
	if payloadDir == "" {
		payloadDir = filepath.Join(usr.HomeDir, "payload")
	}
	userConfig := filepath.Join(payloadDir, "roboch.json")
	if err := config.ApplyUserConfig(userConfig, payloadDir, &job); err != nil {
		return job, err
	}

	if config.IsBatchSystem() {
		id, err := config.BatchJobID()
		if err != nil {
			return job, err
		}
		job.JobID = id
	} else if job.JobID == "" {
		job.JobID = uuid.NewString()
	}

	job.OutputDir = filepath.Join(f.OutputRoot, usr.Username, "data", job.JobID)
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return job, fmt.Errorf("create output directory: %w", err)
	}
	return job, nil
}

// executeJob runs the job and maps its outcome to the process exit code.
func executeJob(cmd *cobra.Command, job roborun.Job) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := run(ctx, job)
	if err != nil {
		return err
	}
	fmt.Printf("job %s finished: %s (trigger %s, %s)\n",
		out.JobID, out.Status, out.Trigger.String(), out.Duration.Round(time.Millisecond))
	if code := out.Status.ExitCode(); code != 0 {
		stop()
		os.Exit(code)
	}
	return nil
}

// run is indirected for tests.
var run = func(ctx context.Context, job roborun.Job) (*roborun.Outcome, error) {
	return roborun.Run(ctx, job)
}
