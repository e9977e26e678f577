// Package server exposes a read-only HTTP surface for a running job.
// Endpoints:
//
//	GET /healthz   liveness check
//	GET /status    supervisor state and per-process statuses
//	GET /metrics   Prometheus metrics
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/roborun/internal/metrics"
	"github.com/loykin/roborun/internal/supervisor"
)

type Router struct {
	sup *supervisor.Supervisor
}

func NewRouter(sup *supervisor.Supervisor) *Router {
	return &Router{sup: sup}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", r.handleHealthz)
	g.GET("/status", r.handleStatus)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (r *Router) handleStatus(c *gin.Context) {
	statuses := r.sup.Snapshot()
	procs := make(map[string]any, len(statuses))
	for role, st := range statuses {
		procs[role.String()] = st
	}
	c.JSON(http.StatusOK, gin.H{
		"state":     string(r.sup.State()),
		"processes": procs,
	})
}

// NewServer starts a standalone HTTP server on addr using this router.
// Call Close on the returned server to stop it.
func NewServer(addr string, sup *supervisor.Supervisor) *http.Server {
	r := NewRouter(sup)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}
