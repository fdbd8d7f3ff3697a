package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/user/events-agent/internal/adapter/api"
	"github.com/user/events-agent/internal/adapter/api/middleware"
	"github.com/user/events-agent/internal/adapter/extract"
	"github.com/user/events-agent/internal/adapter/mail"
	"github.com/user/events-agent/internal/adapter/metrics"
	"github.com/user/events-agent/internal/adapter/repository/postgres"
	redisrepo "github.com/user/events-agent/internal/adapter/repository/redis"
	"github.com/user/events-agent/internal/domain"
	"github.com/user/events-agent/internal/pkg/config"
	"github.com/user/events-agent/internal/pkg/logger"
	"github.com/user/events-agent/internal/usecase"

	_ "github.com/lib/pq" // Keep for postgres driver
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	m := metrics.NewPipelineMetrics()

	// --- Metrics Server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}
	go func() {
		log.Info("starting metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Event Store (optional: service stays live without it) ---
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open postgres connection", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		log.Warn("DATABASE_URL not set, persistence disabled")
	}

	eventRepo := postgres.NewEventRepository(db, log)
	if db != nil {
		bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := eventRepo.EnsureSchema(bootstrapCtx); err != nil {
			log.Warn("schema bootstrap failed, service stays live", "error", err)
		} else {
			log.Info("schema bootstrap ok, uniqueness constraint in place")
		}
		cancel()
	}

	// --- Seen Cache (optional) ---
	var seenCache domain.SeenCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("could not connect to redis, seen cache degraded", "error", err)
		}
		seenCache = redisrepo.NewSeenCache(redisClient, log, cfg.SeenCacheTTL)
		defer redisClient.Close()
	}

	// --- Collaborators ---
	mailSource := mail.NewGmail(mail.GmailOptions{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		RefreshToken: cfg.GmailRefreshToken,
		Query:        cfg.GmailQuery,
	}, log)

	extractor, err := extract.NewGemini(extract.GeminiOptions{
		APIKey:    cfg.GeminiAPIKey,
		Model:     cfg.GeminiModel,
		RateLimit: cfg.ExtractRateLimit,
	}, log)
	if err != nil {
		log.Error("failed to initialize extractor", "error", err)
		os.Exit(1)
	}

	// --- Use Cases ---
	importUseCase := usecase.NewImportRunUseCase(mailSource, extractor, eventRepo, seenCache, log, m, usecase.ImportRunOptions{
		MaxResults:  cfg.GmailMaxResults,
		MaxAttempts: cfg.ExtractMaxAttempts,
		BackoffBase: cfg.ExtractBackoffBase,
		MaxTextLen:  cfg.NotesMaxLen,
	})
	queryUseCase := usecase.NewQueryEventsUseCase(eventRepo, log)

	// --- API Server ---
	router := api.NewRouter(cfg.AdminToken, log, importUseCase, queryUseCase)
	apiServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      middleware.Logging(log)(router),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 120 * time.Second, // /run waits on external collaborators
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		log.Info("starting api server", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	log.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown failed", "error", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("api server shutdown failed", "error", err)
	}

	log.Info("servers shut down gracefully")
}
