package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritersCombined(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir, Combined: true}

	outW, errW, err := c.Writers("data_backend")
	require.NoError(t, err)
	require.NotNil(t, outW)
	require.NotNil(t, errW)

	_, err = outW.Write([]byte("stdout line\n"))
	require.NoError(t, err)
	_, err = errW.Write([]byte("stderr line\n"))
	require.NoError(t, err)
	require.NoError(t, errW.Close())
	require.NoError(t, outW.Close())

	b, err := os.ReadFile(filepath.Join(dir, "data_backend.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "stdout line")
	assert.Contains(t, string(b), "stderr line")
}

func TestWritersSeparate(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}

	outW, errW, err := c.Writers("robot_backend")
	require.NoError(t, err)

	_, err = outW.Write([]byte("out\n"))
	require.NoError(t, err)
	_, err = errW.Write([]byte("err\n"))
	require.NoError(t, err)
	require.NoError(t, outW.Close())
	require.NoError(t, errW.Close())

	assert.FileExists(t, filepath.Join(dir, "robot_backend.stdout.log"))
	assert.FileExists(t, filepath.Join(dir, "robot_backend.stderr.log"))
}

func TestWritersExplicitPaths(t *testing.T) {
	dir := t.TempDir()
	c := Config{
		StdoutPath: filepath.Join(dir, "user_stdout.txt"),
		StderrPath: filepath.Join(dir, "user_stderr.txt"),
	}

	outW, errW, err := c.Writers("user_code")
	require.NoError(t, err)

	_, err = outW.Write([]byte("hello\n"))
	require.NoError(t, err)
	_, err = errW.Write([]byte("oops\n"))
	require.NoError(t, err)
	require.NoError(t, outW.Close())
	require.NoError(t, errW.Close())

	assert.FileExists(t, filepath.Join(dir, "user_stdout.txt"))
	assert.FileExists(t, filepath.Join(dir, "user_stderr.txt"))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	log := New(false)
	require.NotNil(t, log)
	assert.False(t, log.Enabled(ctx, slog.LevelDebug))

	log = New(true)
	assert.True(t, log.Enabled(ctx, slog.LevelDebug))
}
