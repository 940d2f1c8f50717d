package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/datachat-ai/datachat/internal/observability"
	"github.com/datachat-ai/datachat/internal/warehouse"
)

// Embedder produces embeddings for dictionary documents
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SchemaSource lists and describes warehouse tables
type SchemaSource interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, name string) (*warehouse.TableInfo, error)
}

// Indexer builds the semantic dictionary: one document per table and one
// per column, embedded so user vocabulary can be matched to real schema
// identifiers.
type Indexer struct {
	source   SchemaSource
	index    Index
	embedder Embedder
	logger   *observability.Logger
}

// NewIndexer creates a schema dictionary indexer
func NewIndexer(source SchemaSource, index Index, embedder Embedder) *Indexer {
	return &Indexer{
		source:   source,
		index:    index,
		embedder: embedder,
		logger:   observability.NewLogger("indexer"),
	}
}

// ReindexTable rebuilds the dictionary entries for one table. Existing
// documents for the table are dropped first so renamed columns do not
// leave stale entries behind.
func (ix *Indexer) ReindexTable(ctx context.Context, table string) (int, error) {
	info, err := ix.source.DescribeTable(ctx, table)
	if err != nil {
		return 0, err
	}

	if err := ix.index.DeleteByTable(ctx, table); err != nil {
		return 0, err
	}

	count := 0

	names := make([]string, 0, len(info.Columns))
	for _, col := range info.Columns {
		names = append(names, col.Name)
	}
	tableDoc := Document{
		Content: fmt.Sprintf("Table %s avec les colonnes: %s", table, strings.Join(names, ", ")),
		Kind:    KindTable,
		Table:   table,
	}
	if err := ix.upsert(ctx, tableDoc); err != nil {
		return count, err
	}
	count++

	for _, col := range info.Columns {
		doc := Document{
			Content:  fmt.Sprintf("Colonne %s de la table %s, type %s", col.Name, table, col.Type),
			Kind:     KindColumn,
			Table:    table,
			Column:   col.Name,
			DataType: col.Type,
		}
		if err := ix.upsert(ctx, doc); err != nil {
			return count, err
		}
		count++
	}

	ix.logger.Info(ctx, "reindexed table", map[string]interface{}{
		"table":     table,
		"documents": count,
	})
	return count, nil
}

// ReindexAll rebuilds the dictionary for every warehouse table
func (ix *Indexer) ReindexAll(ctx context.Context) (int, error) {
	tables, err := ix.source.ListTables(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, table := range tables {
		n, err := ix.ReindexTable(ctx, table)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// RemoveTable drops a table's dictionary entries, used when the table
// itself is dropped
func (ix *Indexer) RemoveTable(ctx context.Context, table string) error {
	return ix.index.DeleteByTable(ctx, table)
}

func (ix *Indexer) upsert(ctx context.Context, doc Document) error {
	embedding, err := ix.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return err
	}
	if err := ix.index.Upsert(ctx, doc, embedding); err != nil {
		return err
	}
	observability.GetGlobalMetrics().Inc(observability.MetricIndexUpserts, nil)
	return nil
}
