// Package api serves the status and control HTTP endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ble-pacer.klederson.com/internal/bluetooth"
	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/daemon"
	"ble-pacer.klederson.com/internal/scan"
)

// Backend is what the API drives. *daemon.Service implements it.
type Backend interface {
	Snapshot(ctx context.Context) (daemon.Snapshot, error)
	Sessions(ctx context.Context) ([]scan.SessionInfo, error)
	AddSession(ctx context.Context, sc config.SessionConfig) (scan.SessionInfo, error)
	RemoveSession(ctx context.Context, id string) error
	SetScreen(on bool) error
	TriggerMotion() error
	Devices() []bluetooth.Device
}

var _ Backend = (*daemon.Service)(nil)

// Server is the HTTP API server.
type Server struct {
	backend  Backend
	server   *http.Server
	router   *mux.Router
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, backend Backend, logger zerolog.Logger) *Server {
	s := &Server{
		backend: backend,
		router:  mux.NewRouter(),
		logger:  logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(loggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods("GET")
	v1.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	v1.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	v1.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")
	v1.HandleFunc("/screen/{state:on|off}", s.handleScreen).Methods("PUT")
	v1.HandleFunc("/motion/trigger", s.handleMotionTrigger).Methods("POST")
	v1.HandleFunc("/devices", s.handleDevices).Methods("GET")
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting API server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
