// Package report persists the job's result artifacts into the output
// directory. The report file is written last so its existence marks the
// end of the run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/roborun/internal/process"
	"github.com/loykin/roborun/internal/supervisor"
)

// Collector writes result files for one job.
type Collector struct {
	OutputDir string
}

// EnsureUserOutputDir creates the subdirectory bound into the user-code
// container.
func (c Collector) EnsureUserOutputDir() error {
	return os.MkdirAll(filepath.Join(c.OutputDir, UserOutputDir), 0o750)
}

type goalInfo struct {
	Goal json.RawMessage `json:"goal"`
}

// StoreGoal writes the goal to goal.json. An empty goal (task NONE) is
// stored as null.
func (c Collector) StoreGoal(goal string) error {
	gi := goalInfo{}
	if goal != "" {
		if !json.Valid([]byte(goal)) {
			return fmt.Errorf("goal is not valid JSON: %q", goal)
		}
		gi.Goal = json.RawMessage(goal)
	} else {
		gi.Goal = json.RawMessage("null")
	}
	return c.writeJSON(FileGoal, gi)
}

type metaInfo struct {
	JobID       string `json:"job_id"`
	GitRevision string `json:"git_revision"`
	RobotName   string `json:"robot_name"`
	Timestamp   string `json:"timestamp"`
}

// StoreInfo records submission metadata (job id, revision, host).
func (c Collector) StoreInfo(jobID, gitRevision string) error {
	host, _ := os.Hostname()
	info := metaInfo{
		JobID:       jobID,
		GitRevision: gitRevision,
		RobotName:   host,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	return c.writeJSON(FileMetaInfo, info)
}

// Report is the machine-readable job outcome record.
type Report struct {
	JobID           string         `json:"job_id"`
	Status          string         `json:"status"`
	BackendError    bool           `json:"backend_error"`
	UserReturncode  *int           `json:"user_returncode,omitempty"`
	TriggerRole     string         `json:"trigger_role"`
	TriggerExitCode int            `json:"trigger_exit_code"`
	ExitCodes       map[string]int `json:"exit_codes"`
	DurationSeconds float64        `json:"duration_seconds"`
	ShutdownErrors  []string       `json:"shutdown_errors,omitempty"`
}

// StoreReport persists the outcome as report.json. It must be the last
// file written for the job.
func (c Collector) StoreReport(out *supervisor.Outcome) error {
	rep := Report{
		JobID:           out.JobID,
		Status:          string(out.Status),
		BackendError:    out.Status == supervisor.StatusBackendFailure,
		TriggerRole:     out.Trigger.String(),
		TriggerExitCode: out.TriggerExitCode,
		ExitCodes:       make(map[string]int, len(out.ExitCodes)),
		DurationSeconds: out.Duration.Seconds(),
		ShutdownErrors:  out.ShutdownErrors,
	}
	for role, code := range out.ExitCodes {
		rep.ExitCodes[role.String()] = code
	}
	if code, ok := out.ExitCodes[process.RoleUserCode]; ok {
		v := code
		rep.UserReturncode = &v
	}
	return c.writeJSON(FileReport, rep)
}

// StoreErrorReport records a failure that happened before or outside the
// supervised run (clone, build, spawn of the first backend).
func (c Collector) StoreErrorReport(jobErr error) error {
	msg := fmt.Sprintf("Submission failed with the following error:\n%v\n", jobErr)
	path := filepath.Join(c.OutputDir, FileErrorReport)
	return os.WriteFile(path, []byte(msg), 0o600)
}

func (c Collector) writeJSON(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.OutputDir, name), b, 0o600)
}
