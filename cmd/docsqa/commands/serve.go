package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/chaicode/docsqa-go/internal/logging"
	"github.com/chaicode/docsqa-go/internal/server"
	"github.com/chaicode/docsqa-go/internal/tracing"
)

// NewServeCmd constructs the `docsqa serve` command, which starts the HTTP
// question-answering server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docsqa HTTP server",
		Long: `Start the documentation question-answering HTTP server on localhost.

The server exposes POST /api/question for answering questions, GET /health
for liveness, GET /api/ready for dependency readiness, and GET /metrics for
Prometheus scraping. Requests are rate limited per client IP.

Examples:
  docsqa serve
  docsqa serve --port 9090
  MODEL_PROVIDER=openai docsqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			host, port = resolveBind(cmd, host, port)

			qa, store, closeStore, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeStore()

			rateWindow := 15 * time.Minute
			if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
				d, parseErr := time.ParseDuration(v)
				if parseErr != nil {
					log.Warn("invalid RATE_LIMIT_WINDOW, using default", slog.String("value", v), slog.Any("error", parseErr))
				} else {
					rateWindow = d
				}
			}

			srv, err := server.New(qa, &server.Config{
				Host:       host,
				Port:       port,
				Logger:     log,
				Pingers:    []server.Pinger{server.NewQdrantPinger(store.Client())},
				APIKey:     os.Getenv("DOCSQA_API_KEY"),
				RateLimit:  getEnvInt("RATE_LIMIT_REQUESTS", 0),
				RateWindow: rateWindow,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on")

	return cmd
}

// resolveBind applies the bind address precedence: an explicit flag wins,
// then SERVER_HOST/SERVER_PORT (set directly or layered in from the YAML
// config file), then the built-in defaults. Resolved at run time because the
// config loader only populates the env vars in PersistentPreRunE.
func resolveBind(cmd *cobra.Command, host string, port int) (string, int) {
	if !cmd.Flags().Changed("host") {
		host = getEnvOrDefault("SERVER_HOST", host)
	}
	if !cmd.Flags().Changed("port") {
		port = getEnvInt("SERVER_PORT", port)
	}
	return host, port
}
