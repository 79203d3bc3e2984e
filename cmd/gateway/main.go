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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/gateway"
	"github.com/lishushu94/provider-console/internal/infra"
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

	// Background goroutines stop when appCtx is cancelled.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Operation state cache: warm from Postgres, track console signals.
	stateCache := gateway.NewOperationStateCache(repo, rdb, logger)
	if err := stateCache.Init(appCtx); err != nil {
		logger.Fatal("failed to init operation state cache", zap.Error(err))
	}
	go stateCache.StartListener(appCtx)

	// Metrics.
	reg := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":9090", mux); err != nil {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	// Usage recorder: minute buckets flushed to Postgres in batches.
	recorder := gateway.NewUsageRecorder(repo, logger, metrics, cfg.Gateway.UsageBufferSize, cfg.Gateway.UsageFlushInterval)
	recorder.Start()
	defer recorder.Stop()

	// Core pipeline.
	registry := gateway.NewConnectorRegistry(cfg.Gateway, metrics)
	if cfg.Gateway.MockUpstream {
		logger.Warn("mock upstream enabled: no real vendor calls will be made")
		registry.NewConnector = func(*domain.Provider) upstream.Connector {
			return &upstream.MockConnector{}
		}
	}
	core := gateway.NewCore(repo, stateCache, registry, recorder, metrics, logger)

	mux := http.NewServeMux()
	mux.Handle("/v1/chat/completions", gateway.TracingMiddleware(http.HandlerFunc(core.HandleChat)))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("gateway started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("gateway stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	// The deferred recorder.Stop flushes the last usage buckets after the
	// listener closes.
	logger.Info("gateway exited properly")
}
