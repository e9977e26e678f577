package probe

import (
	"errors"
	"os/exec"
	"strings"
)

// CommandCheck runs a command that should succeed once the backend is ready.
type CommandCheck struct{ Command string }

// buildShellAwareCommand constructs an *exec.Cmd for a probe command.
// Avoids invoking a shell unless obvious shell metacharacters are present.
func buildShellAwareCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

func (c CommandCheck) Ready() (bool, error) {
	cmd := buildShellAwareCommand(c.Command)
	cmd.Stdout = nil
	cmd.Stderr = nil
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		// non-zero exit code means not ready yet
		return false, nil
	}
	return false, err
}

func (c CommandCheck) Describe() string { return "cmd:" + c.Command }
