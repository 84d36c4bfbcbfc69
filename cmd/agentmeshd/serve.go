package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nexus-contrib/agentmesh/internal/agentregistry"
	"github.com/nexus-contrib/agentmesh/internal/asyncagent"
	"github.com/nexus-contrib/agentmesh/internal/config"
	"github.com/nexus-contrib/agentmesh/internal/mailbox"
	"github.com/nexus-contrib/agentmesh/internal/modelclient"
	"github.com/nexus-contrib/agentmesh/internal/observability"
	"github.com/nexus-contrib/agentmesh/internal/prompts"
	"github.com/nexus-contrib/agentmesh/internal/rpc"
	"github.com/nexus-contrib/agentmesh/internal/session"
	"github.com/nexus-contrib/agentmesh/internal/sessionmgr"
	"github.com/nexus-contrib/agentmesh/internal/snapshot"
	"github.com/nexus-contrib/agentmesh/internal/structuredoutput"
	"github.com/nexus-contrib/agentmesh/internal/tools"
	"github.com/nexus-contrib/agentmesh/internal/tools/mail"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agentmeshd server",
		Long: `Start the agentmeshd server.

The server will:
1. Load configuration from the given file
2. Build the shared tool registry, mailbox, and prompt assembler
3. Initialize the configured LLM providers
4. Open the opt-in durable snapshot store, if configured
5. Serve the §6 JSON-RPC/WebSocket contract and, if enabled, a
   Prometheus /metrics endpoint

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentmesh.yaml", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := slog.Default()
	log.Info("configuration loaded", "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	metrics := observability.NewMetrics()

	registry := agentregistry.New(cfg.Agents, "")

	toolRegistry := tools.NewRegistry(log)
	toolRegistry.SetMetrics(metrics)
	box := mailbox.New()
	mail.Register(toolRegistry, box)

	promptAssembler := prompts.NewAssembler(log)
	defer promptAssembler.Close()

	providers, err := buildProviders()
	if err != nil {
		return fmt.Errorf("build model providers: %w", err)
	}

	var snapStore *snapshot.Store
	if cfg.Snapshot.Enabled {
		snapStore, err = snapshot.Open(cfg.Snapshot.DSN)
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
		defer snapStore.Close()
		log.Info("durable snapshotting enabled", "dsn", cfg.Snapshot.DSN)
	}

	agentDeps := func() session.Deps {
		deps := session.Deps{
			Registry:     registry,
			Tools:        toolRegistry,
			Mailbox:      box,
			Prompts:      promptAssembler,
			Providers:    providers,
			Workspace:    cfg.Session.Workspace,
			Log:          log,
			Metrics:      metrics,
			SchemaPolicy: structuredoutput.New(cfg.Session.ChannelSchemaEnabled),
		}
		if snapStore != nil {
			deps.Snapshots = snapStore
		}
		return deps
	}

	sessions := sessionmgr.New(log, metrics)
	async := asyncagent.New(log, metrics)

	server := rpc.NewServer(rpc.Deps{
		Sessions:  sessions,
		Async:     async,
		AgentDeps: agentDeps,
		Log:       log,
		Metrics:   metrics,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", server)
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info("agentmeshd listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutdown signal received, draining connections")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("agentmeshd stopped")
	return nil
}

func firstAgentID(agents []models.AgentConfig) string {
	for _, a := range agents {
		return a.ID
	}
	return ""
}

func buildProviders() (map[string]modelclient.Provider, error) {
	providers := make(map[string]modelclient.Provider)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers["anthropic"] = modelclient.NewAnthropicProvider(modelclient.AnthropicConfig{
			APIKey:       key,
			DefaultModel: envOrDefault("ANTHROPIC_DEFAULT_MODEL", "claude-sonnet-4-20250514"),
			MaxTokens:    4096,
		})
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers["openai"] = modelclient.NewOpenAIProvider(key, envOrDefault("OPENAI_DEFAULT_MODEL", "gpt-4o"))
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no model providers configured: set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}
	return providers, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
