package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/framestudio/pipeline-core/internal/callback"
	"github.com/framestudio/pipeline-core/internal/config"
	"github.com/framestudio/pipeline-core/internal/job"
	"github.com/framestudio/pipeline-core/internal/metrics"
	"github.com/framestudio/pipeline-core/internal/pipelinesvc"
	"github.com/framestudio/pipeline-core/internal/processor"
	"github.com/framestudio/pipeline-core/internal/queue"
	"github.com/framestudio/pipeline-core/internal/stack"
	"github.com/framestudio/pipeline-core/internal/stacktemplates"
	"github.com/framestudio/pipeline-core/internal/worker"
	"github.com/framestudio/pipeline-core/processors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.Environment == "production" {
		logger, _ = zap.NewProduction()
	} else {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	logger.Info("starting pipeline-core worker",
		zap.String("environment", cfg.Environment),
		zap.Int("worker_concurrency", cfg.Worker.Concurrency))

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	repo := job.NewPostgresRepository(db, logger)

	registry := processor.NewRegistry(logger)
	processors.RegisterAll(registry, processors.Collaborators{
		Repo:   repo,
		Logger: logger,
	})

	runner := stack.NewRunner(registry)
	templates := buildStackTemplates()

	jobTimeout := cfg.JobTimeout()
	pipeline := pipelinesvc.New(
		registry,
		runner,
		templates,
		repo,
		nil, // managed object storage is an external collaborator wired in at deployment
		logger,
		os.TempDir(),
		cfg.TempDirName,
		jobTimeout,
		cfg.Job.DebugMode,
	)

	reg := prometheus.NewRegistry()
	mc := metrics.NewCollector(reg)

	dispatcher := callback.New(logger, cfg.Callback.CallbackTimeout(), cfg.Callback.MaxRetries, cfg.Callback.APIRetryDelayMs, mc)

	q := queue.New(rdb, queue.Options{
		Attempts:       cfg.Queue.JobAttempts,
		BaseBackoff:    cfg.Queue.BackoffDelay(),
		CompletedCount: cfg.Queue.CompletedCount,
		FailedCount:    cfg.Queue.FailedCount,
		CompletedAge:   time.Duration(cfg.Queue.CompletedAgeSeconds) * time.Second,
		FailedAge:      time.Duration(cfg.Queue.FailedAgeSeconds) * time.Second,
	}, logger)

	pool := worker.New(cfg.Worker.Concurrency, q, repo, pipeline, dispatcher, logger, mc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go q.RunReaper(ctx, time.Hour)

	httpSrv := buildHealthServer(reg)
	go func() {
		logger.Info("starting health/metrics server", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", zap.Error(err))
			cancel()
		}
	}()

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		logger.Info("starting worker pool")
		pool.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	logger.Info("starting graceful shutdown")
	cancel()

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := httpSrv.Shutdown(httpCtx); err != nil {
		logger.Error("health server shutdown failed", zap.Error(err))
	}

	// Drain in-flight jobs (the pool is the queue's only consumer), then
	// close the database and finally redis.
	<-poolDone
	if err := db.Close(); err != nil {
		logger.Error("database close failed", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		logger.Error("redis close failed", zap.Error(err))
	}

	logger.Info("pipeline-core worker shutdown complete")
}

// buildHealthServer exposes liveness/readiness probes and the Prometheus
// scrape endpoint; it never serves job traffic itself (the queue and worker
// pool are the sole job entry point).
func buildHealthServer(reg *prometheus.Registry) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return &http.Server{
		Addr:         ":8080",
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// buildStackTemplates registers the built-in stack templates: "minimal" (a
// passthrough stack with no frame extraction, used by jobs that only need a
// status/result round trip) and "classic" (the full extract -> score ->
// classify -> product -> commercial -> upload pipeline), plus the
// strategy-to-stack defaults.
func buildStackTemplates() *stacktemplates.Registry {
	reg := stacktemplates.NewRegistry("minimal")

	minimal := stack.CreateStack("minimal", "Minimal", []stack.Step{
		{ProcessorID: "complete-job"},
	})
	reg.Register(minimal)

	classic := stack.CreateStack("classic", "Classic", []stack.Step{
		{ProcessorID: "download"},
		{ProcessorID: "extract-frames"},
		{ProcessorID: "score-frames"},
		{ProcessorID: "filter-by-score", Options: processor.Options{
			"topKPercent": 0.1,
			"minFrames":   1,
			"maxFrames":   10,
		}},
		{ProcessorID: "classify"},
		{ProcessorID: "extract-product"},
		{ProcessorID: "photoroom-bg-remove"},
		{ProcessorID: "generate-commercial"},
		{ProcessorID: "upload-frames"},
		{ProcessorID: "complete-job"},
	})
	reg.Register(classic)

	reg.SetDefaultForStrategy("minimal", "minimal")
	reg.SetDefaultForStrategy("classic", "classic")
	reg.SetDefaultForStrategy("", "classic")

	return reg
}
