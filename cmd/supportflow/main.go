// Command supportflow runs the customer-support agent service: an HTTP and
// WebSocket API over a tool-calling agent with knowledge retrieval, human
// approval for sensitive actions and per-session conversation memory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hupe1980/supportflow/agent"
	"github.com/hupe1980/supportflow/approval"
	"github.com/hupe1980/supportflow/config"
	"github.com/hupe1980/supportflow/knowledge"
	"github.com/hupe1980/supportflow/logging"
	"github.com/hupe1980/supportflow/memory"
	"github.com/hupe1980/supportflow/model"
	anthropicmodel "github.com/hupe1980/supportflow/model/anthropic"
	openaimodel "github.com/hupe1980/supportflow/model/openai"
	"github.com/hupe1980/supportflow/orchestrator"
	"github.com/hupe1980/supportflow/policy"
	"github.com/hupe1980/supportflow/server"
	"github.com/hupe1980/supportflow/support"
	"github.com/hupe1980/supportflow/tool"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "supportflow:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.Log.Format, logLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := support.NewStore(cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("open support store: %w", err)
	}
	defer store.Close()

	router, err := buildRouter(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build retrieval router: %w", err)
	}
	defer router.Close()
	seedKnowledge(ctx, router, logger)

	gateOpts := []approval.Option{approval.WithLogger(logger)}
	if cfg.Approval.TimeoutPolicy == "approve" {
		gateOpts = append(gateOpts, approval.WithTimeoutPolicy(approval.TimeoutApprove))
	}
	gate := approval.NewGate(gateOpts...)

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("compile tool policy: %w", err)
	}

	registry := tool.NewRegistry()
	registry.MustRegister(support.Tools(store, router)...)

	guard := model.NewGuard(buildModel(cfg), func(o *model.GuardOptions) {
		o.CallsPerMinute = cfg.Model.CallsPerMinute
		o.FailureThreshold = cfg.Model.FailureThreshold
		o.MaxRetries = cfg.Model.MaxRetries
		o.Logger = logger
	})

	mem := memory.New(func(o *memory.Options) {
		o.MaxTurns = cfg.Memory.MaxTurns
		o.CompactAfter = cfg.Memory.CompactAfter
		o.Logger = logger
	})

	loop := agent.NewLoop(guard, registry, gate, engine, mem, func(o *agent.Options) {
		o.Name = cfg.Agent.Name
		o.Instructions = cfg.Agent.Instructions
		o.MaxSteps = cfg.Agent.MaxSteps
		o.HistoryTurns = cfg.Agent.HistoryTurns
		o.ApprovalTimeout = cfg.Agent.ApprovalTimeout
		o.Logger = logger
	})

	orch := orchestrator.New(loop, router, gate, mem, guard, func(o *orchestrator.Options) {
		o.KnowledgeToolName = support.SearchKnowledgeToolName
		o.Logger = logger
	})

	srv := server.New(orch, func(o *server.Options) {
		o.Addr = cfg.Server.Addr
		o.Logger = logger
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildModel selects the provider adapter. The mock provider keeps the
// service runnable without API keys.
func buildModel(cfg *config.Config) model.Model {
	switch cfg.Model.Provider {
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
			o.Temperature = cfg.Model.Temperature
			o.APIKey = cfg.Model.APIKey
		})
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
			o.Temperature = cfg.Model.Temperature
			o.APIKey = cfg.Model.APIKey
		})
	default:
		return model.NewMockModel("mock-support")
	}
}

// buildRouter assembles the retrieval chain from configuration: postgres
// with pgvector when a DSN is set, then a remote retrieval service when a
// URL is set, with the local index as the built-in fallback.
func buildRouter(ctx context.Context, cfg *config.Config, logger logging.Logger) (*knowledge.Router, error) {
	var backends []knowledge.Backend
	if cfg.Knowledge.PostgresDSN != "" {
		embedder := openaimodel.NewEmbedder(func(o *openaimodel.EmbedderOptions) {
			o.APIKey = cfg.Knowledge.EmbedAPIKey
		})
		backends = append(backends, knowledge.NewPostgresBackend(cfg.Knowledge.PostgresDSN, embedder))
	}
	if cfg.Knowledge.RemoteURL != "" {
		backends = append(backends, knowledge.NewRemoteBackend(func(o *knowledge.RemoteOptions) {
			o.BaseURL = cfg.Knowledge.RemoteURL
			o.APIKey = cfg.Knowledge.RemoteAPIKey
		}))
	}

	return knowledge.NewRouter(ctx, func(o *knowledge.RouterOptions) {
		o.Backends = backends
		o.CacheSize = cfg.Knowledge.CacheSize
		o.Logger = logger
	})
}

// seedKnowledge indexes the starter policy documents so a fresh instance can
// answer common questions immediately. Failures are logged, not fatal.
func seedKnowledge(ctx context.Context, router *knowledge.Router, logger logging.Logger) {
	docs := []struct{ title, content string }{
		{
			title:   "Refund Policy",
			content: "Full refunds are available within 30 days of delivery for items in original condition. Refunds are issued to the original payment method within 5 business days of approval. Shipping costs are refunded only for defective items.",
		},
		{
			title:   "Shipping Information",
			content: "Standard shipping takes 3-5 business days. Express shipping takes 1-2 business days. Orders over $50 ship free. Tracking numbers are emailed once the order leaves the warehouse.",
		},
		{
			title:   "Warranty Coverage",
			content: "All electronics carry a 12 month manufacturer warranty covering defects in materials and workmanship. Accidental damage is not covered. Warranty claims require the original order id.",
		},
	}
	for _, d := range docs {
		if _, err := router.Index(ctx, d.title+"\n\n"+d.content, map[string]any{"title": d.title, "source": "seed"}); err != nil {
			logger.Warn("seed.index_failed", "title", d.title, "error", err.Error())
		}
	}
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
