// Package server exposes the latest resolution over HTTP and pushes every
// published update to WebSocket subscribers (status-bar clients).
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	log "github.com/quotapace/quotapace/internal/logging"
	"github.com/quotapace/quotapace/internal/resolve"
	"github.com/quotapace/quotapace/internal/schedule"
)

// Server wires the orchestrator and scheduler into a small JSON API.
type Server struct {
	orch  *resolve.Orchestrator
	sched *schedule.Scheduler
	hub   *Hub
	srv   *http.Server
}

func New(port int, orch *resolve.Orchestrator, sched *schedule.Scheduler, hub *Hub) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{orch: orch, sched: sched, hub: hub}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/v1/usage", s.handleUsage)
	router.POST("/v1/refresh", s.handleRefresh)
	router.GET("/v1/stream", s.handleStream)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           gzhttp.GzipHandler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) handleUsage(c *gin.Context) {
	res := s.orch.Current()
	if res == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no resolution yet"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleRefresh(c *gin.Context) {
	if !s.sched.Trigger(true) {
		c.JSON(http.StatusAccepted, gin.H{"status": "refresh already in flight"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh triggered"})
}

func (s *Server) handleStream(c *gin.Context) {
	if err := s.hub.Subscribe(c.Writer, c.Request, s.orch.Current()); err != nil {
		log.WithError(err).Debug("websocket subscribe failed")
	}
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.Infof("serving on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains connections and closes the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}
