// Package container builds and starts the singularity invocations for
// the three job roles. The command lines follow the backend's rosrun
// conventions; the supervisor only sees process handles.
package container

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/loykin/roborun/internal/config"
	"github.com/loykin/roborun/internal/logger"
	"github.com/loykin/roborun/internal/process"
	"github.com/loykin/roborun/internal/report"
)

// Launcher starts the per-role containers for one job. WorkspaceDir and
// Goal must be set before the user-code container is launched.
type Launcher struct {
	Job          config.Job
	WorkspaceDir string
	Goal         string
}

// Launch implements supervisor.Launcher.
func (l *Launcher) Launch(role process.Role) (*process.Handle, error) {
	var spec process.Spec
	switch role {
	case process.RoleDataBackend:
		spec = process.Spec{
			Role: role,
			Args: DataBackendArgs(l.Job),
			Log:  logger.Config{Dir: l.Job.OutputDir, Combined: true},
		}
	case process.RoleRobotBackend:
		spec = process.Spec{
			Role: role,
			Args: RobotBackendArgs(l.Job),
			Log:  logger.Config{Dir: l.Job.OutputDir, Combined: true},
		}
	case process.RoleUserCode:
		spec = process.Spec{
			Role: role,
			Args: UserCodeArgs(l.Job, l.WorkspaceDir, l.Goal),
			Log: logger.Config{
				StdoutPath: filepath.Join(l.Job.OutputDir, report.FileUserStdout),
				StderrPath: filepath.Join(l.Job.OutputDir, report.FileUserStderr),
			},
		}
	default:
		return nil, fmt.Errorf("unknown role: %s", role)
	}
	return process.Start(spec)
}

// DataBackendArgs builds the data backend invocation. The data node
// writes the robot and camera logs into the output directory.
func DataBackendArgs(cfg config.Job) []string {
	cameraFlag := "--cameras"
	if cfg.Task.NeedsObjectTracking() {
		cameraFlag = "--cameras-with-tracker"
	}
	rosrun := strings.Join([]string{
		"ros2 run robot_fingers trifinger_data_backend",
		cameraFlag,
		fmt.Sprintf("--robot-logfile /output/%s", report.FileRobotData),
		fmt.Sprintf("--camera-logfile /output/%s", report.FileCameraData),
		fmt.Sprintf("--max-number-of-actions %d", cfg.EpisodeLength),
	}, " ")

	binds := fmt.Sprintf("/dev,/etc/trifingerpro,%s:/output", cfg.OutputDir)
	return []string{
		cfg.SingularityBinary,
		"run", "--cleanenv", "--contain",
		"-B", binds,
		cfg.BackendImage,
		rosrun,
	}
}

// RobotBackendArgs builds the robot backend invocation for the
// configured backend kind (real robot, simulation or log replay).
func RobotBackendArgs(cfg config.Job) []string {
	switch cfg.Backend {
	case config.BackendRobot:
		return robotArgs(cfg)
	case config.BackendLogReplay:
		return logReplayArgs(cfg)
	default:
		return simulationArgs(cfg)
	}
}

func robotArgs(cfg config.Job) []string {
	cameraFlag := "--cameras"
	if cfg.Task.NeedsObjectTracking() {
		cameraFlag = "--cameras-with-tracker"
	}
	rosrun := strings.Join([]string{
		"ros2 run robot_fingers trifinger_robot_backend",
		cameraFlag,
		fmt.Sprintf("--first-action-timeout %d", int(cfg.FirstActionTimeout.Seconds())),
		fmt.Sprintf("--max-number-of-actions %d", cfg.EpisodeLength),
		"--fail-on-incomplete-run",
	}, " ")

	binds := "/dev,/etc/trifingerpro:/etc/trifingerpro:ro,/var/log/trifinger:/log"
	return []string{
		cfg.SingularityBinary,
		"run", "--cleanenv", "--contain",
		"-B", binds,
		cfg.BackendImage,
		rosrun,
	}
}

func simulationArgs(cfg config.Job) []string {
	parts := []string{
		"ros2 run robot_fingers pybullet_backend",
		"--cameras",
	}
	if cfg.SimRenderImages {
		parts = append(parts, "--render-images")
	}
	parts = append(parts,
		fmt.Sprintf("--object=%s", cfg.Task.ObjectType()),
		"--real-time-mode",
	)
	if cfg.SimVisualize {
		parts = append(parts, "--visualize")
	}
	parts = append(parts,
		fmt.Sprintf("--max-number-of-actions=%d", cfg.EpisodeLength),
		fmt.Sprintf("--first-action-timeout=%d", int(cfg.FirstActionTimeout.Seconds())),
	)

	args := []string{cfg.SingularityBinary, "run", "--cleanenv", "--contain"}
	if cfg.SingularityNV {
		args = append(args, "--nv")
	}
	args = append(args, "-B", "/dev", cfg.BackendImage, strings.Join(parts, " "))
	return args
}

func logReplayArgs(cfg config.Job) []string {
	rosrun := strings.Join([]string{
		"ros2 run robot_fingers log_replay_backend",
		fmt.Sprintf("--robot-log-file /output/%s", report.FileRobotData),
		fmt.Sprintf("--camera-log-file /output/%s", report.FileCameraData),
		fmt.Sprintf("--first-action-timeout %d", int(cfg.FirstActionTimeout.Seconds())),
	}, " ")
	binds := fmt.Sprintf("/dev,%s:/output", cfg.OutputDir)
	return []string{
		cfg.SingularityBinary,
		"run", "--cleanenv", "--contain",
		"-B", binds,
		cfg.BackendImage,
		rosrun,
	}
}

// UserCodeArgs builds the user-code invocation. The container gets no
// network, the workspace bound at /ws and its own output subdirectory;
// the goal is handed to the user's run script as its single argument.
func UserCodeArgs(cfg config.Job, wsDir, goal string) []string {
	userOut := filepath.Join(cfg.OutputDir, report.UserOutputDir)
	binds := []string{
		fmt.Sprintf("%s:/ws", wsDir),
		"/dev",
		"/etc/trifingerpro:/etc/trifingerpro:ro",
		fmt.Sprintf("%s:/output", userOut),
	}
	if cfg.UserDataDir != "" {
		binds = append(binds, fmt.Sprintf("%s:/userhome:ro", cfg.UserDataDir))
	}

	script := fmt.Sprintf(
		". /setup.bash; . /ws/install/local_setup.bash; /ws/src/usercode/run %s",
		shellQuote(goal),
	)

	return []string{
		cfg.SingularityBinary,
		"exec", "--cleanenv", "--contain",
		"--net", "--network", "none",
		"-B", strings.Join(binds, ","),
		cfg.UserImage,
		"bash", "-c", script,
	}
}

// shellQuote single-quotes s for safe embedding in a shell script.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
