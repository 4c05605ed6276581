package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/Beni-V/text2sql/internal/observability"
)

// Cache keeps the last loaded graph. The returned graph is shared between
// callers and must be treated as read-only; use Clone to modify it.
//
// Concurrent callers that find the cache empty may each trigger a load.
// Loads are side-effect free on the database, so the duplication is
// tolerated rather than serialized.
type Cache struct {
	loader Loader
	now    func() time.Time

	mu         sync.RWMutex
	graph      *Graph
	loadedAt   time.Time
	generation uint64
}

func NewCache(loader Loader) *Cache {
	return &Cache{loader: loader, now: time.Now}
}

func (c *Cache) Get(ctx context.Context) (*Graph, error) {
	graph, _, err := c.Snapshot(ctx)
	return graph, err
}

// Snapshot is Get that also returns the generation the graph belongs to. A
// graph is current for as long as Generation still returns that value.
func (c *Cache) Snapshot(ctx context.Context) (*Graph, uint64, error) {
	c.mu.RLock()
	graph := c.graph
	generation := c.generation
	c.mu.RUnlock()
	if graph != nil {
		return graph, generation, nil
	}
	graph, err := c.load(ctx, generation)
	if err != nil {
		return nil, 0, err
	}
	return graph, generation, nil
}

// Refresh drops the cached graph and loads it again.
func (c *Cache) Refresh(ctx context.Context) (*Graph, error) {
	return c.load(ctx, c.Invalidate())
}

// Invalidate drops the cached graph and returns the new generation. A load
// that started before the invalidation does not repopulate the cache.
func (c *Cache) Invalidate() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graph = nil
	c.loadedAt = time.Time{}
	c.generation++
	return c.generation
}

// Peek returns the cached graph without loading.
func (c *Cache) Peek() (*Graph, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph, c.loadedAt, c.graph != nil
}

func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *Cache) load(ctx context.Context, generation uint64) (*Graph, error) {
	graph, err := c.loader.Load(ctx)
	observability.ObserveSchemaLoad(err)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == generation && c.graph == nil {
		c.graph = graph
		c.loadedAt = c.now()
	}
	return graph, nil
}
