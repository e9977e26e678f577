package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	jobsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roborun",
			Subsystem: "job",
			Name:      "started_total",
			Help:      "Number of jobs the supervisor started.",
		},
	)
	jobOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roborun",
			Subsystem: "job",
			Name:      "outcomes_total",
			Help:      "Number of finished jobs by overall status.",
		}, []string{"status"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roborun",
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of finished jobs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"status"},
	)
	processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roborun",
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Number of supervised process exits by role and exit code.",
		}, []string{"role", "code"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{jobsStarted, jobOutcomes, jobDuration, processExits}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op if Register hasn't been called.

func IncJobStarted() {
	if regOK.Load() {
		jobsStarted.Inc()
	}
}

func ObserveJob(status string, seconds float64) {
	if regOK.Load() {
		jobOutcomes.WithLabelValues(status).Inc()
		jobDuration.WithLabelValues(status).Observe(seconds)
	}
}

func IncProcessExit(role string, code int) {
	if regOK.Load() {
		processExits.WithLabelValues(role, strconv.Itoa(code)).Inc()
	}
}
