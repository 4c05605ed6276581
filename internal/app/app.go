// Package app assembles the text2sql pipeline from configuration. The API
// server and the indexer share it so both build the index the same way.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Beni-V/text2sql/internal/catalog"
	"github.com/Beni-V/text2sql/internal/catalog/infoschema"
	"github.com/Beni-V/text2sql/internal/config"
	"github.com/Beni-V/text2sql/internal/database"
	"github.com/Beni-V/text2sql/internal/embedding"
	"github.com/Beni-V/text2sql/internal/errs"
	"github.com/Beni-V/text2sql/internal/nl2sql"
	"github.com/Beni-V/text2sql/internal/prompt"
	"github.com/Beni-V/text2sql/internal/query/sqldb"
	"github.com/Beni-V/text2sql/internal/retrieval"
	"github.com/Beni-V/text2sql/internal/schemadoc"
	"github.com/Beni-V/text2sql/internal/storage"
	"github.com/Beni-V/text2sql/internal/storage/local"
	s3store "github.com/Beni-V/text2sql/internal/storage/s3"
	"github.com/Beni-V/text2sql/internal/text2sql"
	"github.com/Beni-V/text2sql/internal/vectorindex"
)

type App struct {
	Config  config.Config
	DB      *sql.DB
	Dialect infoschema.Dialect
	Indexer *schemadoc.Indexer
	Service *text2sql.Service
}

type Option func(*options)

type options struct {
	generator nl2sql.Generator
	db        *sql.DB
}

// WithGenerator replaces the configured model client.
func WithGenerator(generator nl2sql.Generator) Option {
	return func(o *options) { o.generator = generator }
}

// WithDB uses an already open target database instead of dialing
// cfg.Target. Close still closes it.
func WithDB(db *sql.DB) Option {
	return func(o *options) { o.db = db }
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dialect, err := infoschema.DialectFor(cfg.Target.Driver)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "app.Build", "target driver", err)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	generator := o.generator
	if generator == nil {
		generator, err = newGenerator(cfg.AI)
		if err != nil {
			return nil, err
		}
	}

	snapshots, err := NewSnapshotStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db := o.db
	if db == nil {
		db, err = database.Open(ctx, database.FromTarget(cfg.Target))
		if err != nil {
			return nil, err
		}
	}

	loader := infoschema.New(db, dialect, infoschema.Options{
		QualifyTableNames: cfg.Target.QualifyTableNames,
		Timeout:           cfg.Target.IntrospectionTimeout,
	})
	store := &vectorindex.Store{}
	indexer := schemadoc.NewIndexer(embedder, store, snapshots, logger, schemadoc.Config{
		BatchSize:     cfg.Embedding.BatchSize,
		Concurrency:   cfg.Embedding.Concurrency,
		KeepSnapshots: cfg.Index.KeepSnapshots,
	})
	executor := sqldb.New(db, sqldb.Options{
		Timeout:  cfg.Target.QueryTimeout,
		MaxRows:  cfg.Target.MaxRows,
		ReadOnly: cfg.Target.ReadOnly,
	})

	service := text2sql.NewService(
		catalog.NewCache(loader),
		indexer,
		retrieval.New(embedder, store),
		generator,
		executor,
		logger,
		text2sql.ServiceConfig{
			DefaultMode: cfg.Retrieval.Mode,
			Loop: text2sql.LoopConfig{
				MaxAttempts: cfg.Retrieval.MaxAttempts,
				TopK:        cfg.Retrieval.TopK,
				RefineTopK:  cfg.Retrieval.RefineTopK,
				Prompt: prompt.Options{
					Dialect:          dialect.Name,
					ReadOnly:         cfg.Target.ReadOnly,
					AllowEmptySchema: cfg.Retrieval.AllowEmptySchema,
				},
			},
		},
	)

	return &App{
		Config:  cfg,
		DB:      db,
		Dialect: dialect,
		Indexer: indexer,
		Service: service,
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// NewSnapshotStore returns where built indexes are persisted, or nil when
// cfg.Index.Store is "none".
func NewSnapshotStore(ctx context.Context, cfg config.Config) (schemadoc.Snapshots, error) {
	var objects storage.ObjectStore
	switch cfg.Index.Store {
	case config.IndexStoreNone, "":
		return nil, nil
	case config.IndexStoreLocal:
		store, err := local.New(cfg.Index.LocalDir)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfiguration, "app.NewSnapshotStore", "local index store", err)
		}
		objects = store
	case config.IndexStoreS3:
		store, err := s3store.New(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfiguration, "app.NewSnapshotStore", "s3 index store", err)
		}
		objects = store
	default:
		return nil, errs.E(errs.KindConfiguration, "app.NewSnapshotStore", fmt.Sprintf("unknown index store %q", cfg.Index.Store), nil)
	}
	return vectorindex.NewSnapshotStore(objects, cfg.Index.Prefix), nil
}

func newGenerator(cfg config.AIConfig) (nl2sql.Generator, error) {
	if !cfg.Enabled {
		return nl2sql.GeneratorFunc(func(context.Context, string) (string, error) {
			return "", errs.E(errs.KindConfiguration, "app.generator", "SQL generation is disabled (TEXT2SQL_AI_ENABLED=false)", nil)
		}), nil
	}
	generator, err := nl2sql.NewOpenAIGenerator(nl2sql.OpenAIConfigFrom(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "app.newGenerator", "model client", err)
	}
	return generator, nil
}
