package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// Second registration is a no-op.
	require.NoError(t, Register(reg))

	IncJobStarted()
	ObserveJob("success", 12.5)
	IncProcessExit("user_code", 0)
	IncProcessExit("data_backend", -1)

	assert.Equal(t, float64(1), testutil.ToFloat64(jobsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(jobOutcomes.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(processExits.WithLabelValues("user_code", "0")))
	assert.Equal(t, float64(1), testutil.ToFloat64(processExits.WithLabelValues("data_backend", "-1")))
}

func TestHandlerServes(t *testing.T) {
	assert.NotNil(t, Handler())
}
