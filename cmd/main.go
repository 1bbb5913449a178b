package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tenancy/internal/api"
	"tenancy/internal/auth"
	"tenancy/internal/config"
	"tenancy/internal/constraint"
	"tenancy/internal/consumer"
	"tenancy/internal/health"
	"tenancy/internal/messaging"
	"tenancy/internal/metrics"
	"tenancy/internal/orphan"
	"tenancy/internal/storage"
	"tenancy/internal/tenancy"
	"tenancy/internal/worker"
)

// @title Tenant-Isolation Integrity Engine
// @version 1.0
// @description Tenant context resolution, orphan detection/remediation and constraint migration
// @host localhost:8080
// @BasePath /
// @schemes http

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	// Init Metrics
	metrics.Init()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Load Configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	logger.Info("configuration loaded")

	// Setup JWT Secret
	auth.SetSecret(cfg.Auth.JWTSecret)

	mode, err := tenancy.ParseMode(cfg.Tenancy.EnforcementMode)
	if err != nil {
		logger.Fatal("invalid enforcement mode", zap.Error(err))
	}

	// Init PostgreSQL
	store, err := storage.NewStorage(cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to init db", zap.Error(err))
	}
	defer store.DB.Close()
	logger.Info("postgresql connected")

	// Warning tracker: durable table or bounded in-memory buffer
	var tracker health.Tracker
	var lister api.WarningLister
	if cfg.Tenancy.PersistWarnings {
		pg := health.NewPostgresTracker(store.DB, logger)
		tracker = pg
		lister = pg
	} else {
		tracker = health.NewMemoryTracker(cfg.Tenancy.WarningBufferSize)
	}

	enforcer := tenancy.NewEnforcer(mode, tracker, logger)
	resolver := tenancy.NewResolver(store)

	scanPool := worker.NewPool("table-scan", cfg.Tenancy.ScanWorkers, logger)
	scanPool.Start()

	detector := orphan.NewDetector(store.DB, scanPool, cfg.Tenancy.ScanSampleSize, logger)
	remediator := orphan.NewRemediator(store.DB, store, cfg.Tenancy.DefaultTenantSlug, cfg.Tenancy.ScanSampleSize, logger)
	migrator := constraint.NewMigrator(store.DB, store, logger)

	// Optional RabbitMQ ingest of warnings emitted by other app nodes
	var rabbitClient *messaging.RabbitClient
	var ingest *consumer.Consumer
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = messaging.NewRabbitClient(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer rabbitClient.Close()

		if err := rabbitClient.DeclareWarningQueue(); err != nil {
			logger.Fatal("failed to declare warning queue", zap.Error(err))
		}
		ingest, err = consumer.StartConsumer(rabbitClient.GetConnection(), tracker, logger)
		if err != nil {
			logger.Fatal("failed to start warning consumer", zap.Error(err))
		}
		logger.Info("rabbitmq connected")
	}

	// Init API
	apiHandler := api.NewAPI(resolver, enforcer, tracker, lister, detector, remediator, migrator, store, logger)
	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: apiHandler.Router(),
	}

	// Graceful Shutdown Setup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting API server", zap.String("addr", cfg.Listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done() // Wait for interrupt signal
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}

	if ingest != nil {
		ingest.Stop()
	}
	scanPool.Stop()

	logger.Info("graceful shutdown complete")
}
