package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/roborun/internal/probe"
)

// Episode length limits (number of robot actions in one run).
const (
	MaxEpisodeLength     = 5 * 60 * 1000
	DefaultEpisodeLength = 2 * 60 * 1000
)

// Default supervisor timings.
const (
	DefaultReadyTimeout       = 60 * time.Second
	DefaultProbeInterval      = time.Second
	DefaultStopGrace          = 10 * time.Second
	DefaultFirstActionTimeout = 2 * time.Minute
)

// BackendKind selects which robot backend variant a job runs against.
type BackendKind string

const (
	BackendRobot      BackendKind = "robot"
	BackendSimulation BackendKind = "simulation"
	BackendLogReplay  BackendKind = "log_replay"
)

// Job is the full configuration of one submission run.
type Job struct {
	JobID string `json:"job_id" mapstructure:"job_id"`

	// Container images and runtime.
	SingularityBinary string      `json:"singularity_binary" mapstructure:"singularity_binary"`
	BackendImage      string      `json:"backend_image" mapstructure:"backend_image"`
	UserImage         string      `json:"user_image" mapstructure:"user_image"` // defaults to BackendImage
	Backend           BackendKind `json:"backend" mapstructure:"backend"`

	// User code source.
	Repository    string `json:"repository" mapstructure:"repository"`
	Branch        string `json:"branch" mapstructure:"branch"`
	GitSSHCommand string `json:"git_ssh_command" mapstructure:"git_ssh_command"`
	UserDataDir   string `json:"user_data_dir" mapstructure:"user_data_dir"` // bound read-only into the user container

	// Job parameters.
	OutputDir     string `json:"output_dir" mapstructure:"output_dir"`
	EpisodeLength int    `json:"episode_length" mapstructure:"episode_length"`
	Task          Task   `json:"task" mapstructure:"-"`
	TaskName      string `json:"-" mapstructure:"task"`

	// Simulation toggles.
	SimVisualize    bool `json:"sim_visualize" mapstructure:"sim_visualize"`
	SimRenderImages bool `json:"sim_render_images" mapstructure:"sim_render_images"`
	SingularityNV   bool `json:"singularity_nv" mapstructure:"singularity_nv"`

	// Supervisor timings.
	FirstActionTimeout time.Duration `json:"first_action_timeout" mapstructure:"first_action_timeout"`
	ReadyTimeout       time.Duration `json:"ready_timeout" mapstructure:"ready_timeout"`
	ProbeInterval      time.Duration `json:"probe_interval" mapstructure:"probe_interval"`
	JobTimeout         time.Duration `json:"job_timeout" mapstructure:"job_timeout"`
	StopGrace          time.Duration `json:"stop_grace" mapstructure:"stop_grace"`

	// Readiness probes per backend. When unset, a file-marker probe on
	// <output_dir>/<role>.ready is used.
	DataProbe  probe.Config `json:"data_probe" mapstructure:"data_probe"`
	RobotProbe probe.Config `json:"robot_probe" mapstructure:"robot_probe"`

	// Observability.
	HistoryDSN string `json:"history_dsn" mapstructure:"history_dsn"`
	Listen     string `json:"listen" mapstructure:"listen"`
	Debug      bool   `json:"debug" mapstructure:"debug"`
}

// Normalize fills defaults and clamps limits. It must be called before
// the job is handed to the supervisor.
func (j *Job) Normalize() {
	if j.SingularityBinary == "" {
		j.SingularityBinary = "singularity"
	}
	if j.UserImage == "" {
		j.UserImage = j.BackendImage
	}
	if j.Backend == "" {
		j.Backend = BackendSimulation
	}
	if j.Branch == "" {
		j.Branch = "master"
	}
	if j.EpisodeLength <= 0 {
		j.EpisodeLength = DefaultEpisodeLength
	}
	if j.EpisodeLength > MaxEpisodeLength {
		j.EpisodeLength = MaxEpisodeLength
	}
	if j.TaskName != "" {
		if t, err := ParseTask(j.TaskName); err == nil {
			j.Task = t
		}
	}
	if j.FirstActionTimeout <= 0 {
		j.FirstActionTimeout = DefaultFirstActionTimeout
	}
	if j.ReadyTimeout <= 0 {
		j.ReadyTimeout = DefaultReadyTimeout
	}
	if j.ProbeInterval <= 0 {
		j.ProbeInterval = DefaultProbeInterval
	}
	if j.StopGrace <= 0 {
		j.StopGrace = DefaultStopGrace
	}
	if j.DataProbe.Type == "" {
		j.DataProbe = probe.Config{Type: "file", Path: filepath.Join(j.OutputDir, "data_backend.ready")}
	}
	if j.RobotProbe.Type == "" {
		j.RobotProbe = probe.Config{Type: "file", Path: filepath.Join(j.OutputDir, "robot_backend.ready")}
	}
}

// Validate checks the fields that have no sensible default.
func (j *Job) Validate() error {
	if j.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	info, err := os.Stat(j.OutputDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("output directory %s does not exist or is not a directory", j.OutputDir)
	}
	if j.Repository == "" {
		return fmt.Errorf("user code repository is required")
	}
	if j.BackendImage == "" {
		return fmt.Errorf("backend image is required")
	}
	if _, err := os.Stat(j.BackendImage); err != nil {
		return fmt.Errorf("backend image %s does not exist", j.BackendImage)
	}
	switch j.Backend {
	case BackendRobot, BackendSimulation, BackendLogReplay:
	default:
		return fmt.Errorf("unknown backend kind: %q", j.Backend)
	}
	return nil
}

// LoadFile merges a TOML config file into the job.
func LoadFile(path string, j *Job) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(j)
}

// UserConfig is the submission-system configuration shipped by the user
// in their payload (roboch.json).
type UserConfig struct {
	Repository       string `json:"repository" mapstructure:"repository"`
	Branch           string `json:"branch" mapstructure:"branch"`
	EpisodeLength    int    `json:"episode_length" mapstructure:"episode_length"`
	SingularityImage string `json:"singularity_image" mapstructure:"singularity_image"`
	GitDeployKey     string `json:"git_deploy_key" mapstructure:"git_deploy_key"`
}

// ApplyUserConfig reads the user's roboch.json and merges it into the job.
// payloadDir is the directory holding the user payload; relative image and
// key paths resolve against it.
func ApplyUserConfig(path, payloadDir string, j *Job) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read user config %s: %w", path, err)
	}
	var uc UserConfig
	if err := v.Unmarshal(&uc); err != nil {
		return fmt.Errorf("parse user config %s: %w", path, err)
	}
	if uc.Repository == "" {
		return fmt.Errorf("user config %s: repository is required", path)
	}
	j.Repository = uc.Repository
	if uc.Branch != "" {
		j.Branch = uc.Branch
	}
	if uc.EpisodeLength > 0 {
		j.EpisodeLength = uc.EpisodeLength
	}
	if uc.SingularityImage != "" {
		j.UserImage = filepath.Join(payloadDir, uc.SingularityImage)
		if _, err := os.Stat(j.UserImage); err != nil {
			return fmt.Errorf("user image %s does not exist", j.UserImage)
		}
	}
	if uc.GitDeployKey != "" {
		key := filepath.Join(payloadDir, uc.GitDeployKey)
		j.GitSSHCommand = fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=no", key)
	} else {
		j.GitSSHCommand = "ssh -o StrictHostKeyChecking=no"
	}
	return nil
}

var batchJobIDRe = regexp.MustCompile(`#([0-9]*)\.`)

// BatchJobID extracts the numeric job id from the batch system's $JOB_ID
// (formatted like "sched#12345.0").
func BatchJobID() (string, error) {
	raw := os.Getenv("JOB_ID")
	if raw == "" {
		return "", fmt.Errorf("$JOB_ID is not set")
	}
	m := batchJobIDRe.FindStringSubmatch(raw)
	if m == nil {
		return "", fmt.Errorf("failed to parse $JOB_ID: %q", raw)
	}
	return m[1], nil
}

// IsBatchSystem reports whether we run under the cluster batch system.
func IsBatchSystem() bool {
	return os.Getenv("BATCH_SYSTEM") == "HTCondor"
}
