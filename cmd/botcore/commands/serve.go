package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/botforge/botcore/internal/logging"
	"github.com/botforge/botcore/internal/server"
	"github.com/botforge/botcore/internal/tracing"
)

// NewServeCmd constructs the `botcore serve` command, which starts the HTTP
// API in front of the chat pipeline.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the botcore HTTP API",
		Long: `Start the botcore HTTP server on localhost.

The server exposes POST /api/chat for tenant conversations, plus health,
readiness, and Prometheus metrics endpoints. Protect the API with
BOTCORE_API_KEY in any non-local deployment.

Examples:
  botcore serve
  botcore serve --port 9090
  MODEL_PROVIDER=azure botcore serve`,
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

			rt, err := buildComposer(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.close()

			srv, err := server.New(rt.composer, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: rt.pingers(),
				APIKey:  os.Getenv("BOTCORE_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
