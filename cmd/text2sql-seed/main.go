package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Beni-V/text2sql/internal/config"
	"github.com/Beni-V/text2sql/internal/database"
	"github.com/Beni-V/text2sql/internal/demo/seed"
)

func main() {
	direction := flag.String("direction", "up", "seed direction: up|down|status")
	steps := flag.Int("steps", 0, "number of steps; 0 means all for up, 1 for down")
	flag.Parse()

	cfg, err := config.LoadFromEnv("text2sql-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Target.Driver == config.DriverDuckDB && cfg.Target.DSN == "" {
		fmt.Fprintln(os.Stderr, "TEXT2SQL_TARGET_DSN must name a duckdb file; an in-memory database would be discarded on exit")
		os.Exit(1)
	}
	runner, err := seed.NewRunner(cfg.Target.Driver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, database.FromTarget(cfg.Target))
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d seed step(s)\n", applied)
	case "down":
		reverted, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("reverted %d seed step(s)\n", reverted)
	case "status":
		versions, err := runner.Applied(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed status failed: %v\n", err)
			os.Exit(1)
		}
		all, err := runner.Steps()
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed status failed: %v\n", err)
			os.Exit(1)
		}
		applied := make(map[int64]bool, len(versions))
		for _, v := range versions {
			applied[v] = true
		}
		for _, step := range all {
			state := "pending"
			if applied[step.Version] {
				state = "applied"
			}
			fmt.Printf("%06d %-20s %s\n", step.Version, step.Name, state)
		}
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}
