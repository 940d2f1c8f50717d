package warehouse

import (
	"context"
	"sync"
	"time"

	"github.com/datachat-ai/datachat/internal/observability"
)

// SchemaCache is a read-through TTL cache of table and column metadata.
// Table lookups and the prompt summary are served from the same entry, so
// the validator, corrector, and resolver do not re-query the store inside
// the TTL window. Loads and drops invalidate the entry immediately so no
// consumer sees tables that no longer exist.
type SchemaCache struct {
	mu        sync.RWMutex
	fetch     func(context.Context) ([]TableInfo, error)
	tables    []TableInfo
	loaded    bool
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewSchemaCache creates a cache with the given TTL over a metadata fetch
func NewSchemaCache(ttl time.Duration, fetch func(context.Context) ([]TableInfo, error)) *SchemaCache {
	return &SchemaCache{
		ttl:   ttl,
		fetch: fetch,
		now:   time.Now,
	}
}

// Tables returns the cached table metadata, refreshing it when the entry
// is missing or older than the TTL
func (c *SchemaCache) Tables(ctx context.Context) ([]TableInfo, error) {
	c.mu.RLock()
	if c.loaded && c.now().Sub(c.fetchedAt) < c.ttl {
		tables := c.tables
		c.mu.RUnlock()
		observability.GetGlobalMetrics().Inc(observability.MetricSchemaCacheHits, nil)
		return tables, nil
	}
	c.mu.RUnlock()

	observability.GetGlobalMetrics().Inc(observability.MetricSchemaCacheMisses, nil)

	tables, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tables = tables
	c.loaded = true
	c.fetchedAt = c.now()
	c.mu.Unlock()

	observability.GetGlobalMetrics().Inc(observability.MetricSchemaCacheRefresh, nil)
	return tables, nil
}

// ListTables returns the cached table names in schema order
func (c *SchemaCache) ListTables(ctx context.Context) ([]string, error) {
	tables, err := c.Tables(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Name)
	}
	return names, nil
}

// Summary renders the cached metadata as the prompt schema block
func (c *SchemaCache) Summary(ctx context.Context) (string, error) {
	tables, err := c.Tables(ctx)
	if err != nil {
		return "", err
	}
	return RenderSchemaSummary(tables), nil
}

// Invalidate clears the cached entry
func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	c.tables = nil
	c.loaded = false
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
