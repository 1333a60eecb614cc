// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vinefeeder/envied/internal/api/middleware"
	"github.com/vinefeeder/envied/internal/cache"
	"github.com/vinefeeder/envied/internal/config"
	"github.com/vinefeeder/envied/internal/httpapi"
	"github.com/vinefeeder/envied/internal/jobqueue"
	xglog "github.com/vinefeeder/envied/internal/log"
	"github.com/vinefeeder/envied/internal/proxyresolve"
	"github.com/vinefeeder/envied/internal/service"
	"github.com/vinefeeder/envied/internal/session"
	"github.com/vinefeeder/envied/internal/telemetry"
	"github.com/vinefeeder/envied/internal/update"
	"github.com/vinefeeder/envied/internal/vault"
	"github.com/vinefeeder/envied/internal/worker"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "envied", Version: version})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: "envied", Version: version})

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting envied")

	tracerProvider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "envied",
		ServiceVersion: version,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "telemetry.init_failed").Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown error")
		}
	}()

	v, err := vault.Open(cfg.Vault.Dir, cfg.Vault.TTL)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "vault.open_failed").Msg("failed to open key vault")
	}
	defer v.Close()

	apiToken := strings.TrimSpace(os.Getenv("ENVIED_API_TOKEN"))
	if apiToken == "" {
		logger.Warn().Str("security", "weak").Msg("API token not configured (auth disabled). Set ENVIED_API_TOKEN for security.")
	} else {
		logger.Info().Msg("API token configured")
	}

	sessionKey := []byte(strings.TrimSpace(os.Getenv("ENVIED_SESSION_KEY")))
	if len(sessionKey) == 0 {
		sessionKey = []byte(cfg.Session.Issuer + "-dev-only-key")
		logger.Warn().Msg("ENVIED_SESSION_KEY not set; using a derived development key (do not use in production)")
	}
	sessionMgr := session.NewManager(cfg.Session.Issuer, cfg.Session.TTL, sessionKey)

	services := service.NewRegistry()
	registerBundledAdapters(services, sessionMgr)

	proxies := proxyresolve.NewRegistry()

	driver := worker.NewDriver(worker.Config{WorkerBinary: cfg.Worker.Binary, TempDir: cfg.Worker.TempDir})
	scheduler := jobqueue.New(cfg.Queue.MaxConcurrentDownloads, cfg.Queue.JobRetention, driver.Run)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Warn().Err(err).Str("path", cfg.DataDir).Msg("failed to create data directory")
	}
	historyPath := filepath.Join(cfg.DataDir, "job_history.db")
	history, err := jobqueue.OpenSQLiteHistory(historyPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", historyPath).Msg("job history store unavailable; completed jobs will not survive retention sweep")
	} else {
		scheduler.SetHistory(history)
		defer history.Close()
	}

	scheduler.Start(ctx)
	defer scheduler.Shutdown()

	metadataCache := newMetadataCache(cfg.Cache, logger)

	apiServer := &httpapi.Server{
		Services:  services,
		Scheduler: scheduler,
		Proxies:   proxies,
		DebugMode: cfg.API.DebugMode,
		Metadata:  metadataCache,
		History:   history,
	}

	router := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        cfg.API.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
	})

	router.Get("/health", update.Handler(version, nil, metadataCache))
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(httpapi.RequireToken(apiToken, false))
		apiServer.Mount(r)
	})

	srv := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.API.ListenAddr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Str("event", "api.listen_failed").Msg("API server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server exiting")
}

// registerBundledAdapters wires the adapters shipped with this binary.
// Out-of-tree service adapters register themselves from their own packages
// via blank import in a downstream build's main package.
func registerBundledAdapters(registry *service.Registry, sessions *session.Manager) {
	registry.Register("DEMO", service.NewDemoAdapterFactory(sessions))
}

// newMetadataCache builds the title/track metadata cache backend named by
// cfg.MetadataBackend, falling back to the in-process memory cache if Redis
// is configured but unreachable at startup.
func newMetadataCache(cfg config.CacheConfig, logger zerolog.Logger) cache.Cache {
	if cfg.MetadataBackend != "redis" {
		return cache.NewMemoryCache(time.Minute)
	}

	redisCache, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis metadata cache unavailable, falling back to memory cache")
		return cache.NewMemoryCache(time.Minute)
	}
	return redisCache
}
