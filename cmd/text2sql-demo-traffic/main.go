package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Beni-V/text2sql/internal/demo/traffic"
)

func main() {
	cfg, err := traffic.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo traffic config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	service, err := traffic.NewService(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to initialize demo traffic", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(
		"demo traffic started",
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("mode", cfg.Mode),
		slog.Bool("execute", cfg.Execute),
		slog.Duration("interval", cfg.Interval),
		slog.Int("max_questions", cfg.MaxQuestions),
	)

	err = service.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("demo traffic stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo traffic stopped")
}
