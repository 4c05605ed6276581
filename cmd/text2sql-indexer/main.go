package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Beni-V/text2sql/internal/app"
	"github.com/Beni-V/text2sql/internal/config"
	"github.com/Beni-V/text2sql/internal/observability"
)

func main() {
	force := flag.Bool("force", false, "re-embed the schema even when a snapshot for it exists")
	flag.Parse()

	cfg, err := config.LoadFromEnv("text2sql-indexer")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Index.Store == config.IndexStoreNone {
		fmt.Fprintf(os.Stderr, "TEXT2SQL_INDEX_STORE is %q; nothing would be persisted\n", cfg.Index.Store)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = application.Close() }()

	graph, err := application.Service.Schema(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schema load failed: %v\n", err)
		os.Exit(1)
	}

	index, _, err := application.Indexer.Ensure(ctx, graph.Schema, *force || cfg.Index.ForceRefresh)
	if err != nil {
		fmt.Fprintf(os.Stderr, "index build failed: %v\n", err)
		os.Exit(1)
	}
	info := index.Info()
	fmt.Printf("indexed schema %s: %d documents, %d dimensions, model %s, built %s\n",
		info.Fingerprint, info.Documents, info.Dimensions, info.Model, info.BuiltAt.Format(time.RFC3339))
}
