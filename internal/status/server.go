package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/1dr0z/elm-redux-devtools/internal/relay"
)

// StatsProvider is anything that can report relay stats. *relay.Relay does.
type StatsProvider interface {
	Stats() relay.Stats
}

// Server exposes the relay's liveness and counters over HTTP.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(addr, instanceID string, stats StatsProvider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/check-conn", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"message":     "relay is alive",
			"instance_id": instanceID,
		})
	})
	r.GET("/stats", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, stats.Stats())
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("status_server_started", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("status_server_stopping")
	return s.httpServer.Shutdown(ctx)
}
