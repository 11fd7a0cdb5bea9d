package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"esign-orchestrator/api/rest/handlers"
	"esign-orchestrator/api/rest/routes"
	"esign-orchestrator/config"
	"esign-orchestrator/core/environment"
	"esign-orchestrator/core/gate"
	"esign-orchestrator/core/models"
	"esign-orchestrator/core/monitoring"
	"esign-orchestrator/core/orchestrator"
	"esign-orchestrator/core/provider"
	"esign-orchestrator/core/repository"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize preference store
	store, closeStore, err := cfg.OpenPreferenceStore()
	if err != nil {
		logger.Fatal("server.preferences.open_failed", zap.Error(err))
	}
	defer closeStore()

	resolver := environment.NewResolver(store, cfg.Endpoints(), cfg.Overrides(), logger)
	env, err := resolver.Resolve(context.Background())
	if err != nil {
		logger.Fatal("server.environment.resolve_failed", zap.Error(err))
	}
	logger.Info("server.environment",
		zap.String("target", string(env.Target)),
		zap.String("base_url", env.BaseURL),
	)

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	// Provider clients share one rate limiter across environments
	providerOpts := cfg.ProviderOptions(logger)
	newClient := func(env models.EnvironmentConfig) *provider.Client {
		return provider.New(env, providerOpts...)
	}

	// Production confirmations are answered over HTTP
	confirmer := gate.NewPendingConfirmer()
	orch := orchestrator.New(
		gate.New(resolver, confirmer, logger),
		func(env models.EnvironmentConfig) orchestrator.JobClient { return newClient(env) },
		nil,
		repository.NewEventRepository(),
		monitoring.NewCostTracker(),
		metrics,
		logger,
		cfg.Orchestration(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runMonitor := monitoring.NewRunMonitor(orch, metrics, logger, 30*time.Second, cfg.StallThreshold)
	go runMonitor.Start(ctx)

	r := mux.NewRouter()
	routes.SetupRoutes(r, routes.Handlers{
		Runs:        handlers.NewRunHandler(orch, confirmer, logger),
		Environment: handlers.NewEnvironmentHandler(resolver),
		Documents: handlers.NewDocumentHandler(resolver, func(env models.EnvironmentConfig) handlers.DocumentClient {
			return newClient(env)
		}, cfg.DocumentType),
		Dashboard: handlers.NewDashboardHandler(orch, resolver, cfg.StallThreshold),
	}, reg)

	// Start server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		logger.Info("server.starting", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server.listen_failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server.shutting_down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server.shutdown_failed", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("server.runs_shutdown_failed", zap.Error(err))
	}
	cancel()
	logger.Info("server.exited")
}
