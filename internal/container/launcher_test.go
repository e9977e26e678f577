package container

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/roborun/internal/config"
)

func testJob() config.Job {
	j := config.Job{
		OutputDir:    "/data/out",
		BackendImage: "/images/backend.sif",
		Repository:   "https://example.com/user/code.git",
	}
	j.Normalize()
	return j
}

func TestDataBackendArgs(t *testing.T) {
	j := testJob()
	args := DataBackendArgs(j)

	assert.Equal(t, "singularity", args[0])
	assert.Contains(t, args, "/images/backend.sif")
	assert.Contains(t, args, "/dev,/etc/trifingerpro,/data/out:/output")

	rosrun := args[len(args)-1]
	assert.Contains(t, rosrun, "trifinger_data_backend")
	assert.Contains(t, rosrun, "--cameras")
	assert.NotContains(t, rosrun, "--cameras-with-tracker")
	assert.Contains(t, rosrun, "--robot-logfile /output/robot_data.dat")
	assert.Contains(t, rosrun, "--camera-logfile /output/camera_data.dat")
	assert.Contains(t, rosrun, "--max-number-of-actions 120000")
}

func TestDataBackendArgsObjectTracking(t *testing.T) {
	j := testJob()
	j.Task = config.TaskMoveCube
	rosrun := DataBackendArgs(j)[len(DataBackendArgs(j))-1]
	assert.Contains(t, rosrun, "--cameras-with-tracker")
}

func TestRobotBackendArgsRealRobot(t *testing.T) {
	j := testJob()
	j.Backend = config.BackendRobot
	args := RobotBackendArgs(j)

	rosrun := args[len(args)-1]
	assert.Contains(t, rosrun, "trifinger_robot_backend")
	assert.Contains(t, rosrun, "--fail-on-incomplete-run")
	assert.Contains(t, rosrun, "--first-action-timeout 120")
}

func TestRobotBackendArgsSimulation(t *testing.T) {
	j := testJob()
	j.Task = config.TaskRearrangeDice
	args := RobotBackendArgs(j)

	assert.NotContains(t, args, "--nv")
	rosrun := args[len(args)-1]
	assert.Contains(t, rosrun, "pybullet_backend")
	assert.Contains(t, rosrun, "--object=dice")
	assert.Contains(t, rosrun, "--real-time-mode")
	assert.NotContains(t, rosrun, "--visualize")
	assert.NotContains(t, rosrun, "--render-images")
}

func TestRobotBackendArgsSimulationToggles(t *testing.T) {
	j := testJob()
	j.SimVisualize = true
	j.SimRenderImages = true
	j.SingularityNV = true
	args := RobotBackendArgs(j)

	assert.Contains(t, args, "--nv")
	rosrun := args[len(args)-1]
	assert.Contains(t, rosrun, "--visualize")
	assert.Contains(t, rosrun, "--render-images")
}

func TestRobotBackendArgsLogReplay(t *testing.T) {
	j := testJob()
	j.Backend = config.BackendLogReplay
	args := RobotBackendArgs(j)

	rosrun := args[len(args)-1]
	assert.Contains(t, rosrun, "log_replay_backend")
	assert.Contains(t, rosrun, "--robot-log-file /output/robot_data.dat")
}

func TestUserCodeArgs(t *testing.T) {
	j := testJob()
	args := UserCodeArgs(j, "/tmp/ws", `{"difficulty": 1}`)

	require.Greater(t, len(args), 3)
	assert.Equal(t, "exec", args[1])
	assert.Contains(t, args, "--net")
	assert.Contains(t, args, "none")

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "/tmp/ws:/ws")
	assert.Contains(t, joined, "/data/out/user:/output")
	assert.NotContains(t, joined, "/userhome")

	script := args[len(args)-1]
	assert.Contains(t, script, "/ws/src/usercode/run")
	assert.Contains(t, script, `'{"difficulty": 1}'`)
}

func TestUserCodeArgsUserDataDir(t *testing.T) {
	j := testJob()
	j.UserDataDir = "/srv/userdata"
	joined := strings.Join(UserCodeArgs(j, "/tmp/ws", ""), " ")
	assert.Contains(t, joined, "/srv/userdata:/userhome:ro")
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'abc'`, shellQuote("abc"))
	assert.Equal(t, `'a'\''b'`, shellQuote("a'b"))
	assert.Equal(t, `''`, shellQuote(""))
}
