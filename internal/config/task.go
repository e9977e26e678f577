package config

import (
	"fmt"
	"strings"
)

// Task selects which robot task a job executes. It affects goal sampling
// and whether object tracking is enabled on the cameras. Apart from NONE,
// names must match the corresponding task sub-package of the simulation
// tooling inside the backend image.
type Task int

const (
	TaskNone Task = iota
	TaskMoveCube
	TaskMoveCubeOnTrajectory
	TaskRearrangeDice
)

var taskNames = map[Task]string{
	TaskNone:                 "NONE",
	TaskMoveCube:             "MOVE_CUBE",
	TaskMoveCubeOnTrajectory: "MOVE_CUBE_ON_TRAJECTORY",
	TaskRearrangeDice:        "REARRANGE_DICE",
}

func (t Task) String() string {
	if n, ok := taskNames[t]; ok {
		return n
	}
	return fmt.Sprintf("task(%d)", int(t))
}

// TaskNames returns all valid task names for CLI help output.
func TaskNames() []string {
	return []string{"NONE", "MOVE_CUBE", "MOVE_CUBE_ON_TRAJECTORY", "REARRANGE_DICE"}
}

// ParseTask parses a task name (case-insensitive).
func ParseTask(s string) (Task, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if up == "" {
		return TaskNone, nil
	}
	for t, n := range taskNames {
		if n == up {
			return t, nil
		}
	}
	return TaskNone, fmt.Errorf("unknown task: %q", s)
}

// NeedsObjectTracking reports whether the task requires camera-based
// object tracking.
func (t Task) NeedsObjectTracking() bool {
	return t == TaskMoveCube || t == TaskMoveCubeOnTrajectory
}

// ObjectType returns the simulated object the backend should load.
func (t Task) ObjectType() string {
	switch t {
	case TaskMoveCube, TaskMoveCubeOnTrajectory:
		return "cube"
	case TaskRearrangeDice:
		return "dice"
	default:
		return "none"
	}
}
