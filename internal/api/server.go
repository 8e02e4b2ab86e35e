// Package api exposes the task dispatcher over a local HTTP control surface.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"flipbook/internal/batch"
	"flipbook/internal/dispatch"
	"flipbook/internal/history"
)

// HistoryStore records finished runs. *history.Store implements it.
type HistoryStore interface {
	Record(ctx context.Context, out batch.Outcome) error
	List(ctx context.Context, limit int) ([]*history.Run, error)
	Get(ctx context.Context, id string) (*history.Run, error)
}

type ServerConfig struct {
	Addr       string
	Dispatcher *dispatch.Dispatcher
	History    HistoryStore // optional
	Logger     *slog.Logger
	StartTime  time.Time
	Version    string
}

type Server struct {
	httpServer *http.Server
	tasks      *registry
	logger     *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	tasks := newRegistry(cfg.History, cfg.Logger)
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(cfg, tasks),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		tasks:  tasks,
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then closes every running task.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	err := s.httpServer.Shutdown(ctx)
	if cerr := s.tasks.closeAll(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
