package schemadoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Beni-V/text2sql/internal/catalog"
	"github.com/Beni-V/text2sql/internal/embedding"
	"github.com/Beni-V/text2sql/internal/errs"
	"github.com/Beni-V/text2sql/internal/observability"
	"github.com/Beni-V/text2sql/internal/storage"
	"github.com/Beni-V/text2sql/internal/vectorindex"
)

type Config struct {
	BatchSize   int
	Concurrency int
	// KeepSnapshots bounds the persisted snapshots per embedding model.
	// Zero keeps all of them.
	KeepSnapshots int
}

// Snapshots persists built indexes. A nil Snapshots disables persistence.
type Snapshots interface {
	Save(ctx context.Context, index *vectorindex.Index) (string, error)
	Load(ctx context.Context, model, fingerprint string) (*vectorindex.Index, error)
}

// Pruner is implemented by snapshot stores that can drop stale snapshots.
type Pruner interface {
	Prune(ctx context.Context, model, current string, keep int) (int, error)
}

// Indexer embeds schema documents and publishes the resulting index.
type Indexer struct {
	embedder  embedding.Embedder
	store     *vectorindex.Store
	snapshots Snapshots
	logger    *slog.Logger
	cfg       Config

	mu sync.Mutex
}

func NewIndexer(embedder embedding.Embedder, store *vectorindex.Store, snapshots Snapshots, logger *slog.Logger, cfg Config) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{embedder: embedder, store: store, snapshots: snapshots, logger: logger, cfg: cfg}
}

func (i *Indexer) Store() *vectorindex.Store {
	return i.store
}

// Ensure makes the published index match graph. It returns the active index
// and whether a new one was published. With force set, the persisted
// snapshot is ignored and the documents are embedded again.
func (i *Indexer) Ensure(ctx context.Context, graph *catalog.Graph, force bool) (*vectorindex.Index, bool, error) {
	return i.EnsureCurrent(ctx, graph, force, nil)
}

// EnsureCurrent is Ensure for a graph that may be superseded while it is
// indexed. current reports whether graph is still the live schema; once it
// returns false the index for graph is still returned to the caller but is
// neither published nor persisted. A nil current means always live.
func (i *Indexer) EnsureCurrent(ctx context.Context, graph *catalog.Graph, force bool, current func() bool) (*vectorindex.Index, bool, error) {
	const op = "schemadoc.Ensure"
	i.mu.Lock()
	defer i.mu.Unlock()

	live := func() bool { return current == nil || current() }

	fingerprint := graph.Fingerprint()
	model := i.embedder.Model()
	if active := i.store.Load(); !force && active != nil && active.Fingerprint() == fingerprint && active.Model() == model {
		return active, false, nil
	}

	if !force && i.snapshots != nil {
		index, err := i.snapshots.Load(ctx, model, fingerprint)
		switch {
		case err == nil:
			if !live() {
				return index, false, nil
			}
			i.store.Swap(index)
			observability.ObserveIndexBuild("snapshot", index.Len())
			i.logger.Info("loaded schema index snapshot", "fingerprint", fingerprint, "model", model, "documents", index.Len())
			return index, true, nil
		case errors.Is(err, storage.ErrObjectNotFound):
		default:
			i.logger.Warn("schema index snapshot unreadable, rebuilding", "fingerprint", fingerprint, "error", err)
		}
	}

	docs := Build(graph)
	if len(docs) == 0 {
		return nil, false, errs.E(errs.KindRetrieval, op, "schema has no tables to index", nil)
	}
	vectors, err := i.embed(ctx, docs)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindRetrieval, op, "Failed to embed schema documents", err)
	}
	index, err := vectorindex.New(fingerprint, model, docs, vectors)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindRetrieval, op, "Failed to build schema index", err)
	}
	if !live() {
		i.logger.Info("schema changed while indexing, index not published", "fingerprint", fingerprint)
		return index, false, nil
	}
	i.store.Swap(index)
	observability.ObserveIndexBuild("embedded", index.Len())
	i.logger.Info("built schema index", "fingerprint", fingerprint, "model", model, "documents", index.Len())

	if i.snapshots != nil {
		if key, err := i.snapshots.Save(ctx, index); err != nil {
			i.logger.Warn("persist schema index snapshot failed", "fingerprint", fingerprint, "error", err)
		} else {
			i.logger.Debug("persisted schema index snapshot", "key", key)
			i.prune(ctx, model, fingerprint)
		}
	}
	return index, true, nil
}

func (i *Indexer) prune(ctx context.Context, model, fingerprint string) {
	pruner, ok := i.snapshots.(Pruner)
	if !ok || i.cfg.KeepSnapshots <= 0 {
		return
	}
	deleted, err := pruner.Prune(ctx, model, fingerprint, i.cfg.KeepSnapshots)
	if err != nil {
		i.logger.Warn("prune schema index snapshots failed", "model", model, "error", err)
		return
	}
	if deleted > 0 {
		i.logger.Info("pruned schema index snapshots", "model", model, "deleted", deleted)
	}
}

// LoadSnapshot publishes the persisted index for graph without embedding.
// It reports false when no snapshot exists.
func (i *Indexer) LoadSnapshot(ctx context.Context, graph *catalog.Graph) (bool, error) {
	if i.snapshots == nil {
		return false, nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	index, err := i.snapshots.Load(ctx, i.embedder.Model(), graph.Fingerprint())
	if errors.Is(err, storage.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.KindRetrieval, "schemadoc.LoadSnapshot", "Failed to load schema index snapshot", err)
	}
	i.store.Swap(index)
	observability.ObserveIndexBuild("snapshot", index.Len())
	return true, nil
}

func (i *Indexer) embed(ctx context.Context, docs []vectorindex.Document) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(i.cfg.Concurrency)
	for start := 0; start < len(docs); start += i.cfg.BatchSize {
		end := min(start+i.cfg.BatchSize, len(docs))
		group.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, doc := range docs[start:end] {
				texts = append(texts, doc.Text)
			}
			batch, err := i.embedder.Embed(groupCtx, texts)
			if err != nil {
				return err
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d documents", len(batch), len(texts))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
