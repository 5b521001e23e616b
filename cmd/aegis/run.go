package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mercator-hq/aegis/pkg/audit"
	"mercator-hq/aegis/pkg/config"
	"mercator-hq/aegis/pkg/gateway"
	"mercator-hq/aegis/pkg/hitl"
	"mercator-hq/aegis/pkg/policy"
	"mercator-hq/aegis/pkg/policy/builtin"
	"mercator-hq/aegis/pkg/router"
	"mercator-hq/aegis/pkg/server"
	"mercator-hq/aegis/pkg/telemetry/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the governance gateway",
	Long: `Start the Aegis gateway server.

Loads the configuration file, opens the audit and review stores,
builds the policy chain and model router, and serves the chat and
review APIs until interrupted.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := cfg.Logging.Level
	if verbose {
		logLevel = "debug"
	}
	logger, err := logging.Setup(logging.Config{
		Level:     logLevel,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	logger.Info("starting aegis", "version", Version, "config", cfgFile)

	// Audit pipeline. Everything downstream logs through this sink,
	// so it comes up first and goes down last.
	auditStore, err := audit.NewSQLiteStore(&audit.SQLiteConfig{
		Path:        cfg.Database.AuditPath,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer auditStore.Close()

	auditService := audit.NewService(auditStore, &audit.ServiceConfig{
		BufferSize:   cfg.Audit.BufferSize,
		WriteTimeout: cfg.Audit.WriteTimeout,
	})
	defer auditService.Shutdown()

	// Policy engine. The registry holds every module the config file
	// may activate; the config file itself carries the chain.
	registry := policy.NewRegistry()
	if err := registerPolicies(registry); err != nil {
		return fmt.Errorf("failed to register policy modules: %w", err)
	}

	engine, err := policy.NewEngine(registry, cfgFile, auditService)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	logger.Info("policy engine ready", "active_policies", engine.ActivePolicies())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Policies.HotReload {
		watcher := policy.NewWatcher(engine, cfgFile)
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Error("policy watcher stopped", "error", err)
			}
		}()
	}

	// Model router.
	providers := buildProviders(ctx, cfg, logger)
	if len(providers) == 0 {
		return fmt.Errorf("no model providers configured: set OPENAI_API_KEY, ANTHROPIC_API_KEY, or model_router.use_local_daemon")
	}
	modelRouter, err := router.NewRouter(router.Config{
		DefaultModel:  cfg.ModelRouter.DefaultModel,
		FallbackModel: cfg.ModelRouter.FallbackModel,
		MaxRetries:    cfg.ModelRouter.MaxRetries,
		Timeout:       cfg.ModelRouter.Timeout(),
	}, providers, auditService)
	if err != nil {
		return fmt.Errorf("failed to build model router: %w", err)
	}

	// Review queue.
	reviewRepo, err := hitl.NewSQLiteRepository(hitl.SQLiteRepositoryConfig{
		Path:        cfg.Database.ReviewPath,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open review store: %w", err)
	}
	defer reviewRepo.Close()

	reviewService := hitl.NewService(reviewRepo, hitl.ServiceConfig{
		DefaultPriority: cfg.HITL.DefaultPriority,
		ReviewTTL:       cfg.HITL.ReviewTTL,
	}, auditService)

	reaper := hitl.NewReaper(reviewRepo, hitl.ReaperConfig{
		Schedule: cfg.HITL.ReaperSchedule,
	})
	if err := reaper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start review reaper: %w", err)
	}
	defer reaper.Stop()

	orchestrator := gateway.NewOrchestrator(engine, modelRouter, reviewService, auditService, gateway.Config{
		BypassEnabled: cfg.HITL.BypassEnabled,
		BypassMaxAge:  cfg.HITL.BypassMaxAge,
	})

	srv := server.NewServer(server.Config{
		ListenAddress:   cfg.Server.ListenAddress,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		LockDuration:    cfg.HITL.LockDuration,
	}, orchestrator, reviewService)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("aegis stopped")
	return nil
}

// registerPolicies installs the built-in policy modules. Which of
// them run, and in what order, is decided by the config file.
func registerPolicies(registry *policy.Registry) error {
	modules := map[string]policy.Module{
		"pii_detection":   builtin.NewPIIPolicy("pii_detection"),
		"mnpi":            builtin.NewMNPIPolicy("mnpi"),
		"prompt_limits":   builtin.NewStaticPolicy("prompt_limits", policy.OutcomeAllow, ""),
		"always_allow":    builtin.NewStaticPolicy("always_allow", policy.OutcomeAllow, ""),
		"always_block":    builtin.NewStaticPolicy("always_block", policy.OutcomeBlock, "Blocked by policy"),
		"always_escalate": builtin.NewStaticPolicy("always_escalate", policy.OutcomeEscalate, "Escalated by policy"),
	}
	for name, module := range modules {
		if err := registry.Register(name, module); err != nil {
			return err
		}
	}
	return nil
}

// buildProviders assembles the provider list from the environment
// and config. The Ollama model list refresh is best effort; a dead
// daemon at startup should not keep the gateway down.
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) []router.Provider {
	var providers []router.Provider

	if cfg.ModelRouter.OpenAIAPIKey != "" {
		providers = append(providers, router.NewOpenAIProvider(router.OpenAIConfig{
			APIKey:  cfg.ModelRouter.OpenAIAPIKey,
			Timeout: cfg.ModelRouter.Timeout(),
		}))
		logger.Info("registered provider", "provider", "openai")
	}

	if cfg.ModelRouter.AnthropicAPIKey != "" {
		providers = append(providers, router.NewAnthropicProvider(router.AnthropicConfig{
			APIKey:  cfg.ModelRouter.AnthropicAPIKey,
			Timeout: cfg.ModelRouter.Timeout(),
		}))
		logger.Info("registered provider", "provider", "anthropic")
	}

	if cfg.ModelRouter.UseLocalDaemon {
		ollama := router.NewOllamaProvider(router.OllamaConfig{
			BaseURL: cfg.ModelRouter.LocalDaemonBaseURL,
			Timeout: cfg.ModelRouter.Timeout(),
		})
		if err := ollama.RefreshModels(ctx); err != nil {
			logger.Warn("could not list local daemon models", "error", err)
		}
		providers = append(providers, ollama)
		logger.Info("registered provider", "provider", "ollama")
	}

	return providers
}
