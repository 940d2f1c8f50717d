package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientsSchema() []TableInfo {
	return []TableInfo{{
		Name:    "clients",
		Columns: []Column{{Name: "id", Type: "INTEGER"}, {Name: "nom", Type: "VARCHAR"}},
	}}
}

func TestSchemaCacheServesCachedMetadata(t *testing.T) {
	calls := 0
	cache := NewSchemaCache(60*time.Second, func(ctx context.Context) ([]TableInfo, error) {
		calls++
		return clientsSchema(), nil
	})

	tables, err := cache.Tables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "clients", tables[0].Name)
	assert.Equal(t, []Column{{Name: "id", Type: "INTEGER"}, {Name: "nom", Type: "VARCHAR"}}, tables[0].Columns)

	tables, err = cache.Tables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, 1, calls)
}

func TestSchemaCacheSharesEntryAcrossViews(t *testing.T) {
	calls := 0
	cache := NewSchemaCache(60*time.Second, func(ctx context.Context) ([]TableInfo, error) {
		calls++
		return clientsSchema(), nil
	})

	names, err := cache.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"clients"}, names)

	summary, err := cache.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Table clients:\n  - id (INTEGER)\n  - nom (VARCHAR)\n", summary)

	assert.Equal(t, 1, calls, "names and summary come from the same entry")
}

func TestSchemaCacheExpiresAfterTTL(t *testing.T) {
	calls := 0
	cache := NewSchemaCache(60*time.Second, func(ctx context.Context) ([]TableInfo, error) {
		calls++
		return nil, nil
	})

	current := time.Now()
	cache.now = func() time.Time { return current }

	_, err := cache.Tables(context.Background())
	require.NoError(t, err)

	current = current.Add(59 * time.Second)
	_, err = cache.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	current = current.Add(2 * time.Second)
	_, err = cache.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSchemaCacheInvalidate(t *testing.T) {
	calls := 0
	cache := NewSchemaCache(60*time.Second, func(ctx context.Context) ([]TableInfo, error) {
		calls++
		return clientsSchema(), nil
	})

	_, err := cache.Tables(context.Background())
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSchemaCacheEmptySchemaStillCaches(t *testing.T) {
	calls := 0
	cache := NewSchemaCache(60*time.Second, func(ctx context.Context) ([]TableInfo, error) {
		calls++
		return nil, nil
	})

	summary, err := cache.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No tables loaded.", summary)

	_, err = cache.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "an empty warehouse is a valid cached state")
}

func TestSchemaCachePropagatesFetchErrors(t *testing.T) {
	cache := NewSchemaCache(time.Minute, func(ctx context.Context) ([]TableInfo, error) {
		return nil, assert.AnError
	})

	_, err := cache.Tables(context.Background())
	assert.Error(t, err)
}
