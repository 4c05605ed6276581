// Package database opens the target database through database/sql.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/Beni-V/text2sql/internal/config"
	"github.com/Beni-V/text2sql/internal/errs"
)

const pingTimeout = 5 * time.Second

type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func FromTarget(target config.TargetConfig) Config {
	return Config{
		Driver:          target.Driver,
		DSN:             target.DSN,
		MaxOpenConns:    target.MaxOpenConns,
		MaxIdleConns:    target.MaxIdleConns,
		ConnMaxIdleTime: target.ConnMaxIdleTime,
		ConnMaxLifetime: target.ConnMaxLifetime,
	}
}

// Open connects and pings the database. An empty DSN is only accepted for
// DuckDB, where it opens an in-memory database.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	const op = "database.Open"
	switch cfg.Driver {
	case config.DriverPostgres, config.DriverMySQL, config.DriverSQLServer:
		if cfg.DSN == "" {
			return nil, errs.E(errs.KindConfiguration, op, "target dsn is required", nil)
		}
	case config.DriverDuckDB:
	default:
		return nil, errs.E(errs.KindConfiguration, op, fmt.Sprintf("unsupported target driver %q", cfg.Driver), nil)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Driver, err)
	}

	return db, nil
}
