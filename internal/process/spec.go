package process

import (
	"os/exec"
	"strings"

	"github.com/loykin/roborun/internal/logger"
)

// Spec describes one containerized process of a job. Args takes
// precedence over Command; container invocations use Args to keep
// nested shell scripts out of another quoting layer.
type Spec struct {
	Role    Role          `json:"role"`
	Args    []string      `json:"args"`     // argv form, executed without a shell
	Command string        `json:"command"`  // command to start the process (shell form)
	WorkDir string        `json:"work_dir"` // optional working dir
	Env     []string      `json:"env"`      // optional extra env (KEY=VALUE)
	Log     logger.Config `json:"log"`      // stdio capture configuration
}

// BuildCommand constructs an *exec.Cmd for the spec. Args is used
// verbatim when present. For Command it avoids invoking a shell when not
// necessary, and it also respects an explicit shell invocation already
// present in the command string (e.g., "sh -c 'echo hi'"), avoiding
// double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	if len(s.Args) > 0 {
		// #nosec G204
		return exec.Command(s.Args[0], s.Args[1:]...)
	}
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	// If the command already explicitly uses a shell, honor it without adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
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

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// Strip one pair of wrapping quotes so the actual script reaches
			// the shell (outer quotes would inhibit redirection inside it).
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
