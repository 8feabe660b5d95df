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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/breaker"
	"github.com/leadscope/leadscope/internal/cache"
	"github.com/leadscope/leadscope/internal/config"
	amqpdelivery "github.com/leadscope/leadscope/internal/delivery/amqp"
	handler "github.com/leadscope/leadscope/internal/delivery/http"
	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/engine"
	"github.com/leadscope/leadscope/internal/enrich"
	"github.com/leadscope/leadscope/internal/pipeline"
	"github.com/leadscope/leadscope/internal/ratelimit"
	"github.com/leadscope/leadscope/internal/repository"
	pgrepo "github.com/leadscope/leadscope/internal/repository/postgres"
	redisrepo "github.com/leadscope/leadscope/internal/repository/redis"
	"github.com/leadscope/leadscope/internal/score"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting leadscope qualification service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	gin.SetMode(cfg.Server.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional PostgreSQL result archive
	var archive repository.ResultArchive
	if cfg.Database.URL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Fatal("Failed to ping PostgreSQL", zap.Error(err))
		}
		logger.Info("Connected to PostgreSQL")
		archive = pgrepo.NewResultArchive(dbPool)
	} else {
		logger.Warn("DATABASE_URL not set, result archiving disabled")
	}

	// Optional Redis dedup store
	var dedup repository.DedupStore
	if cfg.Redis.URL != "" {
		redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		rdb := goredis.NewClient(redisOpts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to ping Redis", zap.Error(err))
		}
		logger.Info("Connected to Redis")
		dedup = redisrepo.NewDedupStore(rdb)
	} else {
		logger.Warn("REDIS_URL not set, run deduplication disabled")
	}

	// Shared resilience primitives
	limiter := ratelimit.New()
	circuits := breaker.NewRegistry(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown, logger)

	fetcher := enrich.NewFetcher(enrich.Config{
		Timeout:          cfg.Fetch.Timeout,
		Attempts:         cfg.Fetch.Attempts,
		RetryDelay:       cfg.Fetch.RetryDelay,
		MinContentLength: cfg.Fetch.MinContentLength,
	}, circuits, limiter, cache.New[*domain.DomainContent](cfg.Cache.MaxEntries), logger)

	inference := score.NewHTTPClient(cfg.Inference.URL, cfg.Inference.APIKey, cfg.Inference.Timeout)
	scorer := score.NewScorer(score.Config{
		Attempts:  cfg.Score.Attempts,
		BaseDelay: cfg.Score.BaseDelay,
	}, inference,
		cache.New[*domain.ScoreResponse](cfg.Cache.MaxEntries),
		cache.New[*domain.ICPProfile](cfg.Cache.MaxEntries),
		limiter, logger)

	// Job engine and processors
	eng := engine.New(logger,
		engine.WithConcurrency(cfg.Engine.Concurrency),
		engine.WithMaxAttempts(cfg.Engine.MaxAttempts),
		engine.WithBackoff(engine.Backoff{
			Base:       cfg.Engine.BaseDelay,
			Max:        cfg.Engine.MaxDelay,
			Multiplier: cfg.Engine.Multiplier,
		}),
		engine.WithPollInterval(cfg.Engine.PollInterval),
		engine.WithRetention(cfg.Engine.Retention, cfg.Engine.CleanupInterval),
	)

	pipe := pipeline.New(fetcher, scorer, archive, dedup, cfg.Score.Fanout, logger)
	pipe.Register(eng)
	eng.Start(ctx)

	// Optional AMQP intake
	var consumer *amqpdelivery.Consumer
	if cfg.RabbitMQ.URL != "" {
		consumer, err = amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, eng, logger)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("AMQP consumer stopped", zap.Error(err))
			}
		}()
		logger.Info("Connected to RabbitMQ")
	} else {
		logger.Warn("RABBITMQ_URL not set, queue intake disabled")
	}

	// HTTP API
	router := handler.NewRouter(eng, limiter, logger, cfg.Server.BodyLimit)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Standalone Prometheus metrics server
	go func() {
		metricsAddr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics server listening", zap.String("addr", metricsAddr))
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down qualification service...")

	if consumer != nil {
		consumer.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	cancel()
	eng.Stop()

	logger.Info("Qualification service stopped")
}
