package semantic

import (
	"context"
)

// Document kinds stored in the index
const (
	KindTable  = "table"
	KindColumn = "column"
)

// Index handles semantic search over schema documents
type Index interface {
	// Upsert stores a document with its embedding, replacing any existing
	// document with the same content for the same table
	Upsert(ctx context.Context, doc Document, embedding []float32) error

	// Search returns up to topK documents most similar to the embedding.
	// Kind filters by document kind; empty means no filter.
	Search(ctx context.Context, embedding []float32, kind string, topK int) ([]Match, error)

	// DeleteByTable removes all documents belonging to a table
	DeleteByTable(ctx context.Context, table string) error

	// Stats returns document counts grouped by kind
	Stats(ctx context.Context) (IndexStats, error)
}

// Document is a schema description indexed for semantic search
type Document struct {
	Content  string `json:"content"`  // searchable text, e.g. "column montant_ht in table factures, type VARCHAR"
	Kind     string `json:"kind"`     // table or column
	Table    string `json:"table"`    // owning table name
	Column   string `json:"column"`   // column name, empty for table documents
	DataType string `json:"data_type"` // column type, empty for table documents
}

// Match is a search result with its cosine similarity score
type Match struct {
	Document
	Similarity float64 `json:"similarity"`
}

// IndexStats summarizes index contents
type IndexStats struct {
	TotalDocuments int            `json:"total_documents"`
	ByKind         map[string]int `json:"by_kind"`
	Tables         []string       `json:"tables"`
}
