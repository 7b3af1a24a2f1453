// Package admin exposes the HTTP control surface: budget status and
// settings, code generation and redemption, and the foreground event feed
// that drives usage tracking.
package admin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/yanmasharski/kidlock-tv/internal/codes"
	"github.com/yanmasharski/kidlock-tv/internal/ledger"
	"github.com/yanmasharski/kidlock-tv/internal/monitor"
	"github.com/yanmasharski/kidlock-tv/internal/usagestats"
)

// Config holds the admin server configuration.
type Config struct {
	ListenAddr string
}

// Server represents the admin HTTP server.
type Server struct {
	config   Config
	ledger   *ledger.Ledger
	codes    *codes.Manager
	usage    *usagestats.Accountant
	recorder *usagestats.Recorder
	monitor  *monitor.Monitor
	server   *http.Server
	router   *mux.Router
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new admin server.
func NewServer(cfg Config, l *ledger.Ledger, cm *codes.Manager, usage *usagestats.Accountant, rec *usagestats.Recorder, mon *monitor.Monitor, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		config:   cfg,
		ledger:   l,
		codes:    cm,
		usage:    usage,
		recorder: rec,
		monitor:  mon,
		router:   router,
		logger:   logger.With().Str("component", "admin").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	// Public routes: the lock-screen input and the on-device event feed
	// run before anyone holds the PIN.
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/submit", s.handleSubmit).Methods("POST")
	s.router.HandleFunc("/api/events/foreground", s.handleForegroundEvent).Methods("POST")
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")

	// Authenticated routes
	authRouter := s.router.PathPrefix("/api").Subrouter()
	authRouter.Use(PinAuthMiddleware(s.ledger))

	authRouter.HandleFunc("/budget/limit", s.handleSetLimit).Methods("PUT")
	authRouter.HandleFunc("/budget/unlock-toggle", s.handleToggleUnlock).Methods("POST")
	authRouter.HandleFunc("/budget/blocking", s.handleSetBlocking).Methods("PUT")
	authRouter.HandleFunc("/budget/autostart", s.handleSetAutostart).Methods("PUT")
	authRouter.HandleFunc("/pin", s.handleSetPin).Methods("PUT")

	authRouter.HandleFunc("/codes", s.handleListCodes).Methods("GET")
	authRouter.HandleFunc("/codes", s.handleGenerateCodes).Methods("POST")
	authRouter.HandleFunc("/codes/redeem", s.handleRedeem).Methods("POST")
	authRouter.HandleFunc("/codes/{value}", s.handleDeleteCode).Methods("DELETE")

	authRouter.HandleFunc("/usage/today", s.handleTodayUsage).Methods("GET")
}

// Start starts the admin HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting admin server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated admin listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Admin server error")
		}
	}()

	return nil
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Stop gracefully stops the admin HTTP server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping admin server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}

	return nil
}

// Handler returns the underlying router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}
