// Package api exposes the wizards over HTTP: draft editing, step checks,
// confirmation screens, fund views and receipts.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fundwizard/pkg/executor"
	"fundwizard/pkg/funds"
	"fundwizard/pkg/invalidate"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/wizard"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds configuration for the API server.
type Config struct {
	// Address to listen on, e.g. ":8080".
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// WaitTimeout bounds how long POST .../confirm?wait=1 blocks.
	WaitTimeout time.Duration

	// AccountID scopes fund listings.
	AccountID string
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Address:      ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		WaitTimeout:  35 * time.Second,
	}
}

// Submitter finalizes drafts and serves their receipts.
// *executor.Executor satisfies it.
type Submitter interface {
	Submit(ctx context.Context, store executor.DraftStore) executor.Outcome
	Receipt(ctx context.Context, id string) (executor.Result, bool)
}

// Deps are the services the handlers drive.
type Deps struct {
	Wizards     *wizard.Manager
	Submitter   Submitter
	Catalog     *funds.Catalog
	Editor      *funds.Editor
	Invalidator *invalidate.Invalidator

	// Registry receives the HTTP metrics; Gatherer serves /metrics. Either may
	// be nil.
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
}

// Server is the HTTP surface.
type Server struct {
	deps    Deps
	config  Config
	screens *screens
	router  *mux.Router
	server  *http.Server
	logger  *logging.Logger
	started time.Time
}

// NewServer wires the routes.
func NewServer(deps Deps, config Config, logger *logging.Logger) (*Server, error) {
	if deps.Wizards == nil || deps.Submitter == nil {
		return nil, errors.New("api: wizards and submitter are required")
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = DefaultConfig().WaitTimeout
	}

	s := &Server{
		deps:    deps,
		config:  config,
		screens: newScreens(),
		router:  mux.NewRouter(),
		logger:  logging.OrGlobal(logger).Named("api"),
		started: time.Now(),
	}

	if deps.Registry != nil {
		m := newHTTPMetrics()
		if err := m.register(deps.Registry); err != nil {
			return nil, err
		}
		s.router.Use(m.middleware)
	}
	s.routes()

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.HandleFunc("/sessions/{session}", s.handleEndSession).Methods(http.MethodDelete)

	w := r.PathPrefix("/sessions/{session}").Subrouter()
	w.HandleFunc("/wizards/{kind}", s.handleBegin).Methods(http.MethodPost)
	w.HandleFunc("/wizards/{kind}/draft", s.handleGetDraft).Methods(http.MethodGet)
	w.HandleFunc("/wizards/{kind}/draft", s.handlePatchDraft).Methods(http.MethodPatch)
	w.HandleFunc("/wizards/{kind}/draft", s.handleAbandon).Methods(http.MethodDelete)
	w.HandleFunc("/wizards/{kind}/steps/{step}", s.handleCheckStep).Methods(http.MethodGet)
	w.HandleFunc("/wizards/{kind}/confirm", s.handleConfirm).Methods(http.MethodPost)

	r.HandleFunc("/screens/{id}", s.handleGetScreen).Methods(http.MethodGet)
	r.HandleFunc("/screens/{id}/retry", s.handleRetry).Methods(http.MethodPost)
	r.HandleFunc("/screens/{id}/home", s.handleHome).Methods(http.MethodPost)
	r.HandleFunc("/screens/{id}/receipt", s.handleViewReceipt).Methods(http.MethodPost)

	r.HandleFunc("/receipts/{id}", s.handleGetReceipt).Methods(http.MethodGet)

	if s.deps.Catalog != nil {
		r.HandleFunc("/home", s.handleHomeSummary).Methods(http.MethodGet)
		r.HandleFunc("/funds", s.handleListFunds).Methods(http.MethodGet)
		r.HandleFunc("/funds/{id}", s.handleGetFund).Methods(http.MethodGet)
		r.HandleFunc("/funds/{id}/history", s.handleFundHistory).Methods(http.MethodGet)
	}
	if s.deps.Editor != nil {
		r.HandleFunc("/funds/{id}/objective", s.handleSetObjective).Methods(http.MethodPut)
		r.HandleFunc("/funds/{id}/data", s.handleUpdateFundData).Methods(http.MethodPut)
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in a goroutine. Listen errors are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("listening", zap.String("addr", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// SweepScreens forgets resolved confirmation screens older than age.
func (s *Server) SweepScreens(age time.Duration) int {
	return s.screens.sweep(age)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"sessions": s.deps.Wizards.Sessions(),
		"screens":  s.screens.len(),
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
