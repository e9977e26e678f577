package roborun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/roborun/internal/probe"
	"github.com/loykin/roborun/internal/process"
	"github.com/loykin/roborun/internal/report"
)

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "backend.sif")
	require.NoError(t, os.WriteFile(img, []byte("sif"), 0o600))

	job := Job{
		OutputDir:    dir,
		BackendImage: img,
		// Repository missing.
	}
	out, err := Run(context.Background(), job)
	require.Error(t, err)
	assert.Nil(t, out)
}

func TestRunWritesErrorReportOnCloneFailure(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "backend.sif")
	require.NoError(t, os.WriteFile(img, []byte("sif"), 0o600))

	job := Job{
		OutputDir:    dir,
		BackendImage: img,
		Repository:   filepath.Join(dir, "no-such-repo"),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := Run(ctx, job)
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, report.FileErrorReport))
}

func TestProbePolicies(t *testing.T) {
	job := Job{OutputDir: "/data/out"}
	job.Normalize()

	policies, err := probePolicies(job)
	require.NoError(t, err)
	require.Len(t, policies, 2)

	for _, role := range []process.Role{process.RoleDataBackend, process.RoleRobotBackend} {
		p, ok := policies[role]
		require.True(t, ok, role.String())
		assert.Equal(t, job.ProbeInterval, p.Interval)
		assert.Equal(t, job.ReadyTimeout, p.Timeout)
		require.NotNil(t, p.Check)
	}
}

func TestProbePoliciesRejectsBadConfig(t *testing.T) {
	job := Job{OutputDir: "/data/out"}
	job.Normalize()
	job.DataProbe = probe.Config{Type: "port"} // addr missing

	_, err := probePolicies(job)
	assert.Error(t, err)
}
