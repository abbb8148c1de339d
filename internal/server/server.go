// Package server implements the HTTP server that exposes the documentation
// question-answering pipeline as a small JSON API, along with liveness,
// readiness, and metrics endpoints.
// The server is started by the `docsqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaicode/docsqa-go/internal/logging"
	"github.com/chaicode/docsqa-go/internal/pipeline"
)

// New constructs a Server from the provided answer pipeline and config.
func New(qa answerer, cfg *Config) (*Server, error) {
	if qa == nil {
		return nil, fmt.Errorf("server: pipeline must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover two LLM round-trips plus a vector search.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = defaultRateWindow
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if cfg.APIKey == "" {
		log.Warn("DOCSQA_API_KEY not set — /api/question is unauthenticated")
	}

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		answerer: qa,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateWindow, log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/question",
		authMiddleware(cfg.APIKey,
			rl.middleware(
				s.instrument("question", http.HandlerFunc(s.handleQuestion)))))
	mux.Handle("GET /health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler returns the server's root HTTP handler. Exposed for tests that
// drive the full middleware chain through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleQuestion handles POST /api/question. The response envelope is always
// {"data": {"answer": ..., "relevant_links": [...]}} on success; pipeline
// failures surface as a 502 with a generic detail, never the raw provider
// error.
func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "invalid request body"})
		return
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "question is required"})
		return
	}

	answer, err := s.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		log.Error("pipeline failed", slog.Any("error", err))
		s.observeQuestion(outcomeError, start)
		writeJSON(w, http.StatusBadGateway, detailResponse{Detail: "upstream provider error, try again later"})
		return
	}

	if answer.RelevantLinks == nil {
		answer.RelevantLinks = []string{}
	}

	outcome := outcomeOK
	if answer.Answer == pipeline.RejectionMessage {
		outcome = outcomeRejected
	}
	s.observeQuestion(outcome, start)

	writeJSON(w, http.StatusOK, questionResponse{Data: answer})
}

// handleHealth handles GET /health for liveness checks. The body is fixed and
// independent of dependency state — readiness lives at /api/ready.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Server up !"})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
