package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Beni-V/text2sql/internal/api"
	"github.com/Beni-V/text2sql/internal/app"
	"github.com/Beni-V/text2sql/internal/auth"
	"github.com/Beni-V/text2sql/internal/config"
	"github.com/Beni-V/text2sql/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("text2sql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize text2sql service", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = application.Close() }()

	// A cold index is built lazily on the first rag question; startup only
	// publishes a persisted snapshot unless a rebuild is forced.
	warmCtx, cancelWarm := context.WithTimeout(ctx, cfg.Target.IntrospectionTimeout+cfg.Embedding.Timeout)
	if cfg.Index.ForceRefresh {
		if _, err := application.Service.RefreshSchema(warmCtx); err != nil {
			logger.Warn("forced schema index rebuild failed; continuing", slog.Any("error", err))
		}
	} else if err := application.Service.Warm(warmCtx, false); err != nil {
		logger.Warn("schema warm-up failed; continuing", slog.Any("error", err))
	}
	cancelWarm()

	readiness := []api.ReadinessCheck{api.CheckDatabase(application.DB)}
	if cfg.Index.Store == config.IndexStoreS3 {
		readiness = append(readiness, api.CheckObjectStoreConfig(cfg))
	}
	deps := api.Dependencies{
		Logger:            logger,
		Service:           application.Service,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("driver", cfg.Target.Driver),
			slog.String("mode", cfg.Retrieval.Mode),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
