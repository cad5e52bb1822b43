package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fhmmla/oee-be/pkg/config"
	"github.com/fhmmla/oee-be/pkg/logging"
	"github.com/fhmmla/oee-be/pkg/monitoring"
)

// Config represents ops server configuration
type Config struct {
	Port         string
	ServiceName  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default ops server configuration
func DefaultConfig(serviceName, defaultPort string) Config {
	return Config{
		Port:         config.GetEnv("OPS_PORT", defaultPort),
		ServiceName:  serviceName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// SetupRouter creates a Gin router exposing /health and /metrics.
func SetupRouter(health *monitoring.HealthChecker, gatherer prometheus.Gatherer, logger logging.Logger) *gin.Engine {
	if config.GetEnv("GIN_MODE", "release") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", health.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}

// Server is the background ops HTTP server.
type Server struct {
	srv    *http.Server
	cfg    Config
	logger logging.Logger
}

// New creates an ops server around the given router.
func New(cfg Config, router *gin.Engine, logger logging.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Start launches the server in the background. It does not block.
func (s *Server) Start() {
	go func() {
		s.logger.WithFields(logging.Fields{
			"port":    s.cfg.Port,
			"service": s.cfg.ServiceName,
		}).Info("Starting ops HTTP server")

		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Ops server exited")
		}
	}()
}

// Shutdown drains the server within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("ops server forced to shutdown: %w", err)
	}
	return nil
}
