package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/sme-labs/sme-go/internal/engine"
	"github.com/sme-labs/sme-go/internal/logging"
	"github.com/sme-labs/sme-go/internal/notify"
	"github.com/sme-labs/sme-go/internal/provider"
	"github.com/sme-labs/sme-go/internal/routing"
	"github.com/sme-labs/sme-go/internal/server"
	sig "github.com/sme-labs/sme-go/internal/signal"
	"github.com/sme-labs/sme-go/internal/trace"
	"github.com/sme-labs/sme-go/internal/tracing"
)

// NewServeCmd constructs the `sme serve` command, which starts the HTTP
// server exposing the signal memory engine API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the signal memory engine HTTP server",
		Long: `Start the signal memory engine HTTP server on localhost.

The server exposes signal routing and persistence (POST /signal,
GET /drift/{user_id}), memory queries (POST /query, /multi_query, /score),
direct memory search (GET /memory/search), the decision trace log
(GET /memory_log), the agent registry (GET /agents),
and operational probes (/health, /ready, /metrics).

Examples:
  sme serve
  sme serve --port 9090
  MODEL_PROVIDER=gemini sme serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing. Opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			stores, err := buildMemoryStores(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer stores.close()

			// Open the signal event store. SME_DB_PATH overrides the default
			// path (~/.sme/signal.db). Set to "disabled" to run without one.
			var eventStore sig.Store
			dbPath := os.Getenv("SME_DB_PATH")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = sig.DefaultDBPath()
					if err != nil {
						log.Warn("signals: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					es, esErr := sig.Open(dbPath)
					if esErr != nil {
						return fmt.Errorf("serve: failed to open signal store: %w", esErr)
					}
					eventStore = es
					defer func() { _ = es.Close() }()
					log.Info("signals: store opened", slog.String("path", dbPath))
				}
			} else {
				log.Info("signals: disabled via SME_DB_PATH=disabled")
			}

			auditLog := routing.NewAuditLog(getEnvOrDefault("SME_ROUTER_LOG", "router_log.jsonl"))
			traceLog := trace.New(getEnvOrDefault("SME_TRACE_LOG", "trace.log"))

			var notifier notify.Notifier = notify.Noop{}
			if handoffURL := os.Getenv("SME_HANDOFF_URL"); handoffURL != "" {
				notifier = notify.NewWebhook(handoffURL)
				log.Info("escalation handoff enabled", slog.String("url", handoffURL))
			}

			eng, err := engine.New(&engine.Config{
				Chat:      chatModel,
				Backend:   providerCfg.Backend,
				Retriever: stores.retriever,
				Agents:    stores.agents,
				Trace:     traceLog,
				Notifier:  notifier,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise engine: %w", err)
			}

			pingers := []server.Pinger{
				server.NewQdrantPinger(stores.qdrant.Client()),
				server.NewLLMPinger(chatModel, string(providerCfg.Backend)),
			}

			// SME_HOST and SME_PORT (also settable via the config file)
			// provide the listen address when the flags are left at their
			// defaults.
			host, port = resolveListenAddr(cmd, host, port)

			srv, err := server.New(eng, &server.Config{
				Host:     host,
				Port:     port,
				Logger:   log,
				Pingers:  pingers,
				APIKey:   os.Getenv("SME_API_KEY"),
				Store:    eventStore,
				Audit:    auditLog,
				Traces:   traceLog,
				Notifier: notifier,
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
