// Package main provides the broker server: HTTP API, worker pool and the
// grading scheduler in one process.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlenz-dev/aibroker/internal/broker"
	"github.com/mlenz-dev/aibroker/internal/config"
	"github.com/mlenz-dev/aibroker/internal/grading"
	"github.com/mlenz-dev/aibroker/internal/metrics"
	"github.com/mlenz-dev/aibroker/internal/provider"
	"github.com/mlenz-dev/aibroker/internal/queue"
	"github.com/mlenz-dev/aibroker/internal/router"
	"github.com/mlenz-dev/aibroker/internal/server"
	"github.com/mlenz-dev/aibroker/internal/store"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	logger.Info("starting aibroker-server", "addr", cfg.ListenAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	storeClient, err := store.NewClient(ctx, store.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := storeClient.InitSchema(ctx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("AIBROKER_WIPE_DB") == "true" {
		if err := storeClient.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}
	cancel()
	defer func() {
		if err := storeClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	registry := provider.BuildRegistry(cfg.Providers, cfg.DefaultTimeout)
	if registry.Len() == 0 {
		logger.Warn("no usable providers configured, all requests will fail")
	} else {
		logger.Info("providers registered", "providers", registry.Names())
	}

	stats := metrics.NewCollector()
	rtr := router.New(registry, router.Config{
		RetryAttempts: cfg.RetryAttempts,
		Backoff:       cfg.RetryBackoff,
	}, stats)

	q := queue.NewDurable(storeClient, queue.Config{
		RedeliverLimit: cfg.RedeliverLimit,
		RedeliverDelay: cfg.RedeliverDelay,
	}, logger)
	defer q.Close()

	dispatcher := broker.NewDispatcher(rtr, q, broker.DispatchConfig{
		SyncTimeoutLimit: cfg.SyncTimeoutLimit,
		DeferredTimeout:  cfg.DeferredTimeout,
		LongQueue:        cfg.LongRunningQueue,
	}, stats, logger)
	poller := broker.NewPoller(storeClient, stats)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := broker.NewWorkerPool(rtr, q, storeClient, broker.WorkerConfig{
		Queues:      []string{cfg.DefaultQueue, cfg.LongRunningQueue},
		Concurrency: cfg.WorkerConcurrency,
		TimeLimit:   cfg.WorkerTimeLimit,
	}, stats, logger)
	pool.Start(runCtx)

	// Re-enqueue work left over from the previous run before accepting new
	// requests.
	if _, err := q.Resume(runCtx); err != nil {
		logger.Error("failed to resume incomplete jobs", "error", err)
	}

	gradingService := grading.NewService(dispatcher, storeClient, grading.Config{
		MaxContentLength: cfg.MaxContentLength,
	}, logger)
	checker := grading.NewChecker(gradingService, poller, storeClient, stats, logger)
	reaper := grading.NewReaper(storeClient, cfg.StaleAfter, stats, logger)

	scheduler, err := grading.NewScheduler(checker, reaper, cfg.GradingCheckInterval, cfg.ReaperInterval, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.New(server.Config{Addr: cfg.ListenAddr}, dispatcher, poller, registry, stats, logger)
	if err := srv.Run(runCtx); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down")
	pool.Wait()
}
