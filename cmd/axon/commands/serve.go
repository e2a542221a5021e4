package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/axon-agent/axon/internal/config"
	"github.com/axon-agent/axon/internal/logging"
	"github.com/axon-agent/axon/internal/preload"
	"github.com/axon-agent/axon/internal/server"
)

// NewServeCmd constructs the `axon serve` command, which starts the HTTP
// server exposing the memory and tool routing API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Axon HTTP server",
		Long: `Start the Axon HTTP server on localhost.

The server exposes a REST API for fact storage, hybrid recall, and tool
dispatch, plus health, readiness, and Prometheus metrics endpoints.

Examples:
  axon serve
  axon serve --port 7700
  EMBEDDING_PROVIDER=openai axon serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Flags win over AXON_HOST/AXON_PORT, which win over the
			// defaults. Resolved here rather than in the flag defaults so
			// values set via the YAML config layer are visible.
			host, port := listenAddr(host, port)

			log.Info("serve starting",
				slog.String("embedding_provider", config.EnvOrDefault("EMBEDDING_PROVIDER", "ollama")),
			)

			eng, pingers, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = eng.Close() }()

			// Seed facts before accepting traffic. AXON_PRELOAD_FILE names a
			// YAML file of facts written through the engine at startup.
			if path := os.Getenv("AXON_PRELOAD_FILE"); path != "" {
				if _, err := preload.LoadFile(ctx, eng, path, log); err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			}

			srv, err := server.New(eng, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("AXON_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: AXON_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: AXON_PORT or 7600)")

	return cmd
}

// listenAddr resolves the serve bind address: an explicit flag value wins,
// then the AXON_HOST/AXON_PORT environment (which the config file feeds),
// then the built-in defaults.
func listenAddr(flagHost string, flagPort int) (string, int) {
	host := flagHost
	if host == "" {
		host = config.EnvOrDefault("AXON_HOST", "127.0.0.1")
	}
	port := flagPort
	if port == 0 {
		port = config.EnvInt("AXON_PORT", 7600)
	}
	return host, port
}
