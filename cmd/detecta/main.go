// Detecta - Fraud scoring for trade receivables.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/TozatoRodrigo/detecta-ia/internal/anomaly"
	"github.com/TozatoRodrigo/detecta-ia/internal/api"
	"github.com/TozatoRodrigo/detecta-ia/internal/audit"
	"github.com/TozatoRodrigo/detecta-ia/internal/baseline"
	"github.com/TozatoRodrigo/detecta-ia/internal/bus"
	"github.com/TozatoRodrigo/detecta-ia/internal/cache"
	"github.com/TozatoRodrigo/detecta-ia/internal/config"
	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/features"
	"github.com/TozatoRodrigo/detecta-ia/internal/metrics"
	"github.com/TozatoRodrigo/detecta-ia/internal/repository"
	"github.com/TozatoRodrigo/detecta-ia/internal/rules"
	"github.com/TozatoRodrigo/detecta-ia/internal/scoring"
	"github.com/TozatoRodrigo/detecta-ia/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize structured logger
	logger := slog.New(newLogHandler(cfg.Logging))
	slog.SetDefault(logger)

	slog.Info("starting detecta",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_path", cfg.Models.BasePath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Export connection pool metrics
	if sqlRepo, ok := repo.(*repository.SQLRepository); ok {
		go metrics.StartDBStatsCollector(ctx, sqlRepo.DB(), 15*time.Second)
	}

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine (builtin heuristics compile at construction)
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := loadCustomRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Anomaly Model Manager
	store, err := anomaly.NewFSStore(cfg.Models.BasePath)
	if err != nil {
		slog.Error("failed to initialize model store", "error", err)
		os.Exit(1)
	}
	models := anomaly.NewManager(store, time.Duration(cfg.Models.TrainTimeout)*time.Second, logger)
	slog.Info("model manager initialized", "base_path", cfg.Models.BasePath)

	// Initialize Feature Engineer with the drawer-history baseline
	engineer := features.NewEngineer(baseline.NewProvider(repo, cacheImpl, cfg.Cache.LocalTTL, logger), logger)

	// Initialize Audit Logger
	auditLog := audit.NewLogger(repo, busImpl, logger)

	// Initialize Scoring Orchestrator
	scorer := scoring.NewScorer(engineer, engine, models, scoring.Options{
		Repository: repo,
		EventBus:   busImpl,
		Audit:      auditLog,
		Logger:     logger,
	})

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("DETECTA_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, scorer, logger)

		var tenantIDs []string
		if envTenants := os.Getenv("DETECTA_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Options{
		Repository:         repo,
		Cache:              cacheImpl,
		EventBus:           busImpl,
		Engine:             engine,
		Scorer:             scorer,
		Models:             models,
		Engineer:           engineer,
		Audit:              auditLog,
		Version:            Version,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("detecta is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("detecta shutdown complete")
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// loadCustomRules loads tenant rules from the database into the engine.
// Builtin heuristics are always present; custom rules are added via POST /rules.
func loadCustomRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list custom rules from database", "error", err)
		return nil // Builtins still apply; custom rules can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading custom rules from database", "count", len(dbRules))
		return engine.ReloadRules(dbRules)
	}

	return nil
}

func newLogHandler(cfg domain.LoggingConfig) slog.Handler {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                 DETECTA")
	fmt.Println("       Fraud scoring for trade receivables")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                - Score a batch of receivables")
	fmt.Println("    POST /score/async          - Enqueue a batch for async scoring")
	fmt.Println("    GET  /batches/{id}         - Get a scored batch summary")
	fmt.Println("    GET  /results              - List scored receivables")
	fmt.Println("    GET  /stats                - Tenant scoring statistics")
	fmt.Println("    GET  /policy               - Get the tenant risk policy")
	fmt.Println("    PUT  /policy               - Update the tenant risk policy")
	fmt.Println("    GET  /models               - List trained models")
	fmt.Println("    POST /models/{kind}/train  - Train a model (global or local)")
	fmt.Println("    POST /models/persist       - Persist models to disk")
	fmt.Println("    POST /models/restore       - Restore models from disk")
	fmt.Println("    GET  /rules                - List detection rules")
	fmt.Println("    POST /rules                - Create a custom rule")
	fmt.Println("    POST /rules/reload         - Hot-reload custom rules")
	fmt.Println("    GET  /audit                - Tenant audit trail")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println("    GET  /metrics              - Prometheus metrics")
	fmt.Println()
}
