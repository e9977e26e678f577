package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/roborun/internal/plan"
	"github.com/loykin/roborun/internal/supervisor"
)

func testSupervisor() *supervisor.Supervisor {
	return supervisor.New(supervisor.Config{
		JobID:  "test",
		Plan:   plan.Default(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewRouter(testSupervisor()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(NewRouter(testSupervisor()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		State     string         `json:"state"`
		Processes map[string]any `json:"processes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, string(supervisor.StateInit), body.State)
	assert.Empty(t, body.Processes)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewRouter(testSupervisor()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "go_goroutines")
}
