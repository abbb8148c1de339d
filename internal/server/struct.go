package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chaicode/docsqa-go/internal/pipeline"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the number of requests allowed per client IP within each
	// RateWindow on POST /api/question. Defaults to 7 if zero.
	RateLimit int
	// RateWindow is the fixed rate-limit window. Defaults to 15 minutes if zero.
	RateWindow time.Duration
	// APIKey is the Bearer token required on POST /api/question.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry is the Prometheus registry for server metrics. If nil a fresh
	// registry is created; tests inject their own to stay hermetic.
	Registry *prometheus.Registry
}

// answerer is the interface handleQuestion calls to answer a question.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type answerer interface {
	// Answer runs the full question-answering pipeline for one question.
	Answer(ctx context.Context, question string) (*pipeline.StructuredAnswer, error)
}

// Server is the HTTP server that wraps the answer pipeline.
type Server struct {
	// answerer handles all /api/question requests.
	answerer answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// questionRequest is the JSON body for POST /api/question.
type questionRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// questionResponse is the JSON envelope for a successful answer.
type questionResponse struct {
	// Data is the structured answer produced by the pipeline.
	Data *pipeline.StructuredAnswer `json:"data"`
}

// detailResponse is the JSON body for client-visible errors (400, 429, 502).
type detailResponse struct {
	// Detail is the human-readable error description.
	Detail string `json:"detail"`
}
