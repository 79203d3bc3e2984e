package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lishushu94/provider-console/internal/audit"
	"github.com/lishushu94/provider-console/internal/console/handler"
	"github.com/lishushu94/provider-console/internal/console/server"
	"github.com/lishushu94/provider-console/internal/console/service"
	"github.com/lishushu94/provider-console/internal/infra"
	"github.com/lishushu94/provider-console/internal/infra/auth"
	"github.com/lishushu94/provider-console/internal/repository/postgres"
	"github.com/lishushu94/provider-console/internal/upstream"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Key material: private for signing, public for verification.
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("invalid private key", zap.Error(err))
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("invalid public key", zap.Error(err))
	}

	// Storage.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	repo, err := postgres.NewProviderRepo(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to create database pool", zap.Error(err))
	}
	if err := repo.Ping(ctx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	cancel()
	defer repo.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Audit trail: async batch writer into Postgres.
	auditRepo := postgres.NewAuditRepoFrom(repo)
	trail := audit.NewTrail(auditRepo, logger)
	trail.Start()
	defer trail.Stop()

	// Services.
	prober := upstream.NewProber(cfg.Gateway.ProbeTimeout)
	providerService := service.NewProviderService(repo, rdb, trail, prober, cfg.Gateway.ProbeTimeout, logger)
	authService := service.NewAuthService(repo, privateKey, cfg.Auth.TokenTTL)
	metricsService := service.NewMetricsService(repo, rdb, logger)
	auditService := service.NewAuditService(auditRepo, logger)

	// HTTP wiring.
	validator := auth.NewBaseValidator(publicKey)
	consoleServer := server.NewConsoleServer(
		cfg,
		logger,
		validator,
		handler.NewAuthHandler(authService),
		handler.NewProviderHandler(providerService),
		handler.NewDashboardHandler(metricsService),
		handler.NewAuditHandler(auditService),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("console API stopping...")

	// Five seconds for in-flight requests; the deferred trail.Stop drains
	// the audit buffer after the listener closes.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("console API exited properly")
}
