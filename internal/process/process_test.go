package process

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/roborun/internal/logger"
)

func TestStartAndExit(t *testing.T) {
	h, err := Start(Spec{Role: RoleUserCode, Command: "true"})
	require.NoError(t, err)

	res, err := h.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Code)

	st := h.Status()
	assert.Equal(t, StateExited, st.State)
	assert.Equal(t, RoleUserCode, st.Role)
	assert.False(t, st.StoppedAt.IsZero())
	assert.False(t, h.Alive())
}

func TestNonZeroExitCode(t *testing.T) {
	h, err := Start(Spec{Role: RoleDataBackend, Command: "sh -c 'exit 3'"})
	require.NoError(t, err)

	res, err := h.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Code)
	assert.Equal(t, StateExited, h.Status().State)
}

func TestSpawnError(t *testing.T) {
	_, err := Start(Spec{Role: RoleRobotBackend, Command: "/nonexistent/binary-xyz"})
	require.Error(t, err)
	var se *SpawnError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, RoleRobotBackend, se.Role)
}

func TestAliveWhileRunning(t *testing.T) {
	h, err := Start(Spec{Role: RoleUserCode, Command: "sleep 5"})
	require.NoError(t, err)
	defer func() { _ = h.Kill() }()

	assert.True(t, h.Alive())
}

func TestWaitTimeout(t *testing.T) {
	h, err := Start(Spec{Role: RoleUserCode, Command: "sleep 5"})
	require.NoError(t, err)
	defer func() { _ = h.Kill() }()

	_, err = h.Wait(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestStopGracefulTerm(t *testing.T) {
	h, err := Start(Spec{Role: RoleDataBackend, Command: "sleep 30"})
	require.NoError(t, err)

	require.NoError(t, h.Stop(5*time.Second))

	st := h.Status()
	assert.Equal(t, StateExited, st.State)
	assert.Equal(t, -1, st.ExitCode) // killed by signal
	assert.False(t, h.Alive())
}

func TestStopEscalatesToKill(t *testing.T) {
	// The child ignores SIGTERM so only SIGKILL can take it down.
	h, err := Start(Spec{
		Role:    RoleUserCode,
		Command: "sh -c 'trap \"\" TERM; while true; do sleep 1; done'",
	})
	require.NoError(t, err)

	require.NoError(t, h.Stop(200*time.Millisecond))
	assert.Equal(t, StateKilled, h.Status().State)
}

func TestStopIdempotent(t *testing.T) {
	h, err := Start(Spec{Role: RoleUserCode, Command: "sleep 30"})
	require.NoError(t, err)

	require.NoError(t, h.Stop(time.Second))
	require.NoError(t, h.Stop(time.Second))
	require.NoError(t, h.Kill())
}

func TestMarkTimedOutBeforeStop(t *testing.T) {
	h, err := Start(Spec{
		Role:    RoleUserCode,
		Command: "sh -c 'trap \"\" TERM; while true; do sleep 1; done'",
	})
	require.NoError(t, err)

	h.MarkTimedOut()
	require.NoError(t, h.Stop(100*time.Millisecond))
	assert.Equal(t, StateTimedOut, h.Status().State)
}

func TestStateTransitions(t *testing.T) {
	h, err := Start(Spec{Role: RoleRobotBackend, Command: "sleep 5"})
	require.NoError(t, err)
	defer func() { _ = h.Kill() }()

	assert.Equal(t, StateStarting, h.Status().State)
	h.MarkReady()
	assert.Equal(t, StateReady, h.Status().State)
	h.MarkRunning()
	assert.Equal(t, StateRunning, h.Status().State)

	// Marks after a terminal state must not resurrect the process.
	require.NoError(t, h.Kill())
	h.MarkReady()
	h.MarkRunning()
	assert.Equal(t, StateKilled, h.Status().State)
}

func TestProcessGroupKillsChildren(t *testing.T) {
	// The shell spawns a child; stopping the group must take both down.
	h, err := Start(Spec{Role: RoleUserCode, Command: "sh -c 'sleep 30 & wait'"})
	require.NoError(t, err)

	require.NoError(t, h.Stop(2*time.Second))
	assert.False(t, h.Alive())
}

func TestLogCapture(t *testing.T) {
	dir := t.TempDir()
	h, err := Start(Spec{
		Role:    RoleDataBackend,
		Command: "sh -c 'echo out-line; echo err-line >&2'",
		Log:     logger.Config{Dir: dir, Combined: true},
	})
	require.NoError(t, err)

	_, err = h.Wait(5 * time.Second)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "data_backend.log"))
}

func TestArgsBypassShellParsing(t *testing.T) {
	h, err := Start(Spec{
		Role: RoleUserCode,
		Args: []string{"sh", "-c", "exit 7"},
	})
	require.NoError(t, err)

	res, err := h.Wait(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Code)
}
