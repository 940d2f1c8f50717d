package semantic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// PostgresIndex implements the Index interface using PostgreSQL with pgvector
type PostgresIndex struct {
	db *sql.DB
}

// NewPostgresIndex creates a new pgvector-backed semantic index
func NewPostgresIndex(config PostgresConfig) (*PostgresIndex, error) {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresIndex{db: db}, nil
}

// NewPostgresIndexWithDB wraps an existing database handle, used in tests
func NewPostgresIndexWithDB(db *sql.DB) *PostgresIndex {
	return &PostgresIndex{db: db}
}

// Ping tests the database connection
func (pi *PostgresIndex) Ping(ctx context.Context) error {
	return pi.db.PingContext(ctx)
}

// Close closes the database connection
func (pi *PostgresIndex) Close() error {
	return pi.db.Close()
}

// Upsert stores a document with its embedding
func (pi *PostgresIndex) Upsert(ctx context.Context, doc Document, embedding []float32) error {
	vector := pgvector.NewVector(embedding)

	query := `
		INSERT INTO schema_documents (id, content, kind, table_name, column_name, data_type, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (table_name, kind, column_name) DO UPDATE SET
			content = EXCLUDED.content,
			data_type = EXCLUDED.data_type,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at
	`

	id := uuid.New().String()
	_, err := pi.db.ExecContext(ctx, query, id, doc.Content, doc.Kind, doc.Table, doc.Column, doc.DataType, vector, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert schema document: %w", err)
	}

	return nil
}

// Search returns up to topK documents most similar to the embedding
func (pi *PostgresIndex) Search(ctx context.Context, embedding []float32, kind string, topK int) ([]Match, error) {
	vector := pgvector.NewVector(embedding)

	query := `
		SELECT content, kind, table_name, column_name, data_type,
		       1 - (embedding <=> $1) as similarity
		FROM schema_documents
		WHERE ($2 = '' OR kind = $2)
		ORDER BY similarity DESC
		LIMIT $3
	`

	rows, err := pi.db.QueryContext(ctx, query, vector, kind, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search schema documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var column, dataType sql.NullString

		err := rows.Scan(&m.Content, &m.Kind, &m.Table, &column, &dataType, &m.Similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}

		if column.Valid {
			m.Column = column.String
		}
		if dataType.Valid {
			m.DataType = dataType.String
		}

		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}

	return matches, nil
}

// DeleteByTable removes all documents belonging to a table
func (pi *PostgresIndex) DeleteByTable(ctx context.Context, table string) error {
	_, err := pi.db.ExecContext(ctx, "DELETE FROM schema_documents WHERE table_name = $1", table)
	if err != nil {
		return fmt.Errorf("failed to delete documents for table %s: %w", table, err)
	}
	return nil
}

// Stats returns document counts grouped by kind
func (pi *PostgresIndex) Stats(ctx context.Context) (IndexStats, error) {
	stats := IndexStats{ByKind: make(map[string]int)}

	rows, err := pi.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM schema_documents GROUP BY kind")
	if err != nil {
		return stats, fmt.Errorf("failed to query document counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return stats, fmt.Errorf("failed to scan count row: %w", err)
		}
		stats.ByKind[kind] = count
		stats.TotalDocuments += count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("error iterating count rows: %w", err)
	}

	tableRows, err := pi.db.QueryContext(ctx, "SELECT DISTINCT table_name FROM schema_documents ORDER BY table_name")
	if err != nil {
		return stats, fmt.Errorf("failed to query indexed tables: %w", err)
	}
	defer tableRows.Close()

	for tableRows.Next() {
		var table string
		if err := tableRows.Scan(&table); err != nil {
			return stats, fmt.Errorf("failed to scan table row: %w", err)
		}
		stats.Tables = append(stats.Tables, table)
	}
	if err := tableRows.Err(); err != nil {
		return stats, fmt.Errorf("error iterating table rows: %w", err)
	}

	return stats, nil
}
