package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/minqt/weight-sync/internal/config"
	"github.com/minqt/weight-sync/internal/logger"
	"github.com/minqt/weight-sync/internal/status"
	"github.com/minqt/weight-sync/internal/storage"
)

// Server is the read-only operator view: run status and value history. It
// never writes status; that belongs to the scheduler alone.
type Server struct {
	httpServer *http.Server
	repo       *storage.Repository
	status     *status.Store
	config     *config.Config
	logger     *logger.Logger
}

func NewServer(repo *storage.Repository, statusStore *status.Store, cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		repo:   repo,
		status: statusStore,
		config: cfg,
		logger: log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
