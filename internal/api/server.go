// Package api implements the HTTP surface of the voice relay.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhyniox/voicerelay/internal/admission"
	"github.com/rhyniox/voicerelay/internal/buildinfo"
	"github.com/rhyniox/voicerelay/internal/config"
	"github.com/rhyniox/voicerelay/internal/history"
	"github.com/rhyniox/voicerelay/internal/metrics"
	"github.com/rhyniox/voicerelay/internal/sanitize"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Completer is the upstream completion dependency. Satisfied by
// completion.Client; tests substitute a stub.
type Completer interface {
	Ask(ctx context.Context, system, user string) (string, error)
}

// Server is the HTTP server. All mutable state (conversation log,
// throttle maps) is injected, never package-level.
type Server struct {
	address   string
	port      int
	gates     *admission.Controller
	validator *sanitize.Validator
	completer Completer
	log       *history.Log
	limits    config.LimitsConfig
	recentMax int
	timeout   time.Duration
	logger    *slog.Logger
	server    *http.Server
}

// NewServer creates the HTTP server around an already-wired pipeline.
func NewServer(cfg *config.Config, gates *admission.Controller, validator *sanitize.Validator, completer Completer, log *history.Log, logger *slog.Logger) *Server {
	return &Server{
		address:   cfg.Listen.Address,
		port:      cfg.Listen.Port,
		gates:     gates,
		validator: validator,
		completer: completer,
		log:       log,
		limits:    cfg.Limits,
		recentMax: cfg.History.RecentMax,
		timeout:   cfg.Completion.Timeout(),
		logger:    logger,
	}
}

// Start begins serving HTTP requests and blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler builds the route table with all middleware applied. Exposed
// separately from Start so tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /clear-history", s.handleClearHistory)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.withCORS(s.withLogging(mux))
}

// withLogging logs every request and records the request metrics.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		metrics.RequestCount.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(elapsed.Seconds())
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

// withCORS sets permissive cross-origin headers and answers preflight
// requests. The relay is called directly from browser speech frontends
// on arbitrary origins.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"message": "Voice relay is up and running!",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":  "OK",
		"message": "Server is running",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// historyItem is the wire shape for one /history entry. Timestamps are
// internal; callers only see the exchange text.
type historyItem struct {
	User string `json:"user"`
	AI   string `json:"ai"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.log.Recent(s.recentMax)
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{User: e.User, AI: e.AI})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"history": items}, s.logger)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.log.Clear()
	metrics.HistoryEntries.Set(0)
	s.logger.Info("conversation history cleared")

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"message": "Conversation history has been cleared.",
	}, s.logger)
}
