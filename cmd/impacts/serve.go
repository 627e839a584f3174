package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/pacificclimate/impacts/internal/activation"
	"github.com/pacificclimate/impacts/internal/api"
	"github.com/pacificclimate/impacts/internal/bus"
	"github.com/pacificclimate/impacts/internal/cache"
	"github.com/pacificclimate/impacts/internal/config"
	"github.com/pacificclimate/impacts/internal/observability"
	"github.com/pacificclimate/impacts/internal/repository"
	"github.com/pacificclimate/impacts/internal/rulebase"
	"github.com/pacificclimate/impacts/internal/rules"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the impacts HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting impacts",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"event_bus", cfg.EventBus.Type,
		"rulebase", cfg.Rulebase.Path,
		"rules_service", cfg.Activation.BaseURL,
	)

	if !cfg.Tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	metrics := observability.NewMetrics()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	eventBus, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer eventBus.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	store := rulebase.NewStore(cfg.Rulebase.Path,
		rulebase.WithRepository(repo),
		rulebase.WithMetrics(metrics),
		rulebase.WithLogger(logger),
	)
	if _, err := store.Reload(ctx); err != nil {
		return fmt.Errorf("load rulebase: %w", err)
	}
	rb, err := store.Current()
	if err != nil {
		return err
	}

	engine, err := rules.NewEngine()
	if err != nil {
		return fmt.Errorf("initialize condition engine: %w", err)
	}
	for _, skipped := range engine.Load(rb.Rules()) {
		slog.Warn("condition not compiled", "rule_id", skipped.RuleID, "reason", skipped.Reason)
	}
	slog.Info("condition engine initialized", "rules_count", engine.RulesCount())

	replicaID := uuid.NewString()
	replicator := rulebase.NewReplicator(store, eventBus, replicaID, func(rb *rulebase.Rulebase) {
		for _, skipped := range engine.Load(rb.Rules()) {
			slog.Warn("condition not compiled", "rule_id", skipped.RuleID, "reason", skipped.Reason)
		}
	})
	sub, err := replicator.Start(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to rulebase reloads: %w", err)
	}
	defer sub.Unsubscribe()
	slog.Info("following rulebase reloads", "replica_id", replicaID)

	client := activation.NewClient(cfg.Activation,
		activation.WithClientMetrics(metrics),
		activation.WithClientLogger(logger),
	)
	source := activation.NewSource(client,
		activation.WithCache(cacheImpl, cfg.Activation.CacheTTL),
		activation.WithDefaultEnsemble(cfg.Activation.Ensemble),
		activation.WithRepository(repo),
		activation.WithMetrics(metrics),
		activation.WithLogger(logger),
	)
	sessions := activation.NewSessions(source, 0, metrics, logger, nil)

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Store:      store,
		Engine:     engine,
		Activation: source,
		Sessions:   sessions,
		Replicator: replicator,
		Repository: repo,
		Cache:      cacheImpl,
		Bus:        eventBus,
		Metrics:    metrics,
	}, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("impacts is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"rules_count", rb.Len(),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("impacts shutdown complete")
	return nil
}
