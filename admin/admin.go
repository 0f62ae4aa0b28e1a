// Package admin serves spectrod's HTTP side door: health, Prometheus metrics
// and the shared session.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"spectro-rpc/observability"
	"spectro-rpc/session"
)

type Server struct {
	session    *session.Manager
	router     *gin.Engine
	started    time.Time
	logger     zerolog.Logger
	httpServer *http.Server
}

type sessionView struct {
	Selected int      `json:"selected"`
	Active   bool     `json:"active"`
	Devices  []string `json:"devices"`
}

func New(sess *session.Manager, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))

	s := &Server{
		session: sess,
		router:  r,
		started: time.Now(),
		logger:  logger,
	}
	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/session", func(c *gin.Context) {
		s.writeSession(c, http.StatusOK)
	})

	s.router.PUT("/session/:index", func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
			return
		}
		if err := s.session.Select(index); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrIndexOutOfRange) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		s.logger.Info().Int("index", index).Msg("device selected via admin")
		s.writeSession(c, http.StatusOK)
	})

	s.router.DELETE("/session", func(c *gin.Context) {
		s.session.Deselect()
		s.logger.Info().Msg("device deselected via admin")
		s.writeSession(c, http.StatusOK)
	})
}

func (s *Server) writeSession(c *gin.Context, status int) {
	devices, err := s.session.Devices()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	index, ok := s.session.Selected()
	c.JSON(status, sessionView{Selected: index, Active: ok, Devices: devices})
}

// Serve blocks serving HTTP on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("admin listening")
	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
