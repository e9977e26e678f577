// Package workspace prepares the user code for execution: cloning the
// repository, building it inside the user container and sampling the
// task goal. These are the supervisor's external collaborators; failures
// here abort the job before any backend is started.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/loykin/roborun/internal/config"
	"github.com/loykin/roborun/internal/report"
)

// UserCodeDir is the subdirectory of the workspace source tree the user
// repository is cloned into.
const UserCodeDir = "usercode"

// Clone clones the user repository into dstDir/usercode and returns the
// checked-out revision.
func Clone(ctx context.Context, cfg config.Job, dstDir string) (string, error) {
	dest := filepath.Join(dstDir, UserCodeDir)

	// #nosec G204
	cmd := exec.CommandContext(ctx, "git", "clone", "--recurse-submodules",
		"-b", cfg.Branch, cfg.Repository, dest)
	if cfg.GitSSHCommand != "" {
		cmd.Env = append(os.Environ(), "GIT_SSH_COMMAND="+cfg.GitSSHCommand)
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to clone user repository: %s", buf.String())
	}

	// #nosec G204
	rev := exec.CommandContext(ctx, "git", "--git-dir", filepath.Join(dest, ".git"),
		"rev-parse", "HEAD")
	out, err := rev.Output()
	if err != nil {
		return "", fmt.Errorf("failed to read revision: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Build runs the containerised workspace build and stores its combined
// output as build_output.txt in the job output directory.
func Build(ctx context.Context, cfg config.Job, wsDir string) error {
	// #nosec G204
	cmd := exec.CommandContext(ctx,
		cfg.SingularityBinary,
		"exec", "--cleanenv", "--contain",
		"--net", "--network", "none",
		"-B", fmt.Sprintf("%s:/ws", wsDir),
		cfg.UserImage,
		"bash", "-c", ". /setup.bash; cd /ws; colcon build",
	)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	runErr := cmd.Run()

	outFile := filepath.Join(cfg.OutputDir, report.FileBuildOutput)
	if werr := os.WriteFile(outFile, buf.Bytes(), 0o600); werr != nil && runErr == nil {
		return werr
	}
	if runErr != nil {
		return fmt.Errorf("workspace build failed, see %s", report.FileBuildOutput)
	}
	return nil
}

// SampleGoal produces the JSON-encoded goal for the configured task. If
// the user repository ships a goal.json, the goal is derived from it;
// otherwise a random goal is sampled. Task NONE has no goal.
func SampleGoal(ctx context.Context, cfg config.Job, srcDir string) (string, error) {
	if cfg.Task == config.TaskNone {
		return "", nil
	}

	task := strings.ToLower(cfg.Task.String())
	goalFile := filepath.Join(srcDir, UserCodeDir, report.FileGoal)
	goalCmd := "sample_goal"
	if st, err := os.Stat(goalFile); err == nil && !st.IsDir() {
		goalCmd = fmt.Sprintf("goal_from_config %s", goalFile)
	}

	// #nosec G204
	cmd := exec.CommandContext(ctx,
		cfg.SingularityBinary,
		"run", "-eC",
		"-B", fmt.Sprintf("%s:%s:ro", srcDir, srcDir),
		cfg.BackendImage,
		fmt.Sprintf("python3 -m trifinger_simulation.tasks.%s %s", task, goalCmd),
	)
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("goal sampling failed: %s", ee.Stderr)
		}
		return "", fmt.Errorf("goal sampling failed: %w", err)
	}

	goal := strings.TrimSpace(string(out))
	if goal == "" {
		return "", fmt.Errorf("goal sampling produced no output")
	}
	return goal, nil
}
