package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/datachat-ai/datachat/internal/errors"
)

// DefaultRowLimit caps result sets returned to the agent
const DefaultRowLimit = 1000

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	limitPattern      = regexp.MustCompile(`(?i)\blimit\s+\d+`)
)

// reservedNames cannot be used as table names
var reservedNames = map[string]bool{
	"select": true, "insert": true, "update": true, "delete": true,
	"drop": true, "create": true, "alter": true, "table": true,
	"from": true, "where": true, "join": true, "union": true,
}

// Column describes a single column of a warehouse table
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableInfo describes a warehouse table
type TableInfo struct {
	Name     string   `json:"name"`
	Columns  []Column `json:"columns"`
	RowCount int64    `json:"row_count"`
}

// Result holds the outcome of a query execution
type Result struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

// DuckDB wraps an embedded DuckDB database.
// All statement execution and introspection is serialized through a single
// mutex so concurrent conversations cannot interleave DDL and reads.
type DuckDB struct {
	db       *sql.DB
	mu       sync.Mutex
	rowLimit int
}

// Open opens a DuckDB database at the given path, creating parent directories
// as needed. An empty path opens an in-memory database.
func Open(path string, rowLimit int) (*DuckDB, error) {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.NewWarehouseError(err, "create data directory")
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.NewWarehouseError(err, "open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.NewWarehouseError(err, "ping database")
	}

	return &DuckDB{db: db, rowLimit: rowLimit}, nil
}

// Ping tests the database connection
func (w *DuckDB) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

// Close closes the database
func (w *DuckDB) Close() error {
	return w.db.Close()
}

// ValidateTableName checks that a name is a safe SQL identifier
func ValidateTableName(name string) error {
	if !identifierPattern.MatchString(name) {
		return errors.NewInvalidTableNameError(name)
	}
	if reservedNames[strings.ToLower(name)] {
		return errors.NewInvalidTableNameError(name)
	}
	return nil
}

// ListTables returns the names of all tables in the main schema
func (w *DuckDB) ListTables(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.listTablesLocked(ctx)
}

func (w *DuckDB) listTablesLocked(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, "SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name")
	if err != nil {
		return nil, errors.NewWarehouseError(err, "list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewWarehouseError(err, "scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewWarehouseError(err, "iterate tables")
	}

	return tables, nil
}

// DescribeTable returns column metadata and the row count for a table
func (w *DuckDB) DescribeTable(ctx context.Context, name string) (*TableInfo, error) {
	if err := ValidateTableName(name); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.db.QueryContext(ctx,
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' AND table_name = ? ORDER BY ordinal_position",
		name)
	if err != nil {
		return nil, errors.NewWarehouseError(err, "describe table")
	}
	defer rows.Close()

	info := &TableInfo{Name: name}
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, errors.NewWarehouseError(err, "scan column")
		}
		info.Columns = append(info.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewWarehouseError(err, "iterate columns")
	}

	if len(info.Columns) == 0 {
		return nil, errors.NewTableNotFoundError(name)
	}

	// Identifier is validated above, safe to interpolate
	if err := w.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", name)).Scan(&info.RowCount); err != nil {
		return nil, errors.NewWarehouseError(err, "count rows")
	}

	return info, nil
}

// Execute runs a SQL statement and returns its rows. Statements without an
// explicit LIMIT are wrapped in a limited subquery so oversized result sets
// never reach the model.
func (w *DuckDB) Execute(ctx context.Context, statement string) (*Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	capped := statement
	if !hasLimitClause(statement) && isSelect(statement) {
		capped = fmt.Sprintf("SELECT * FROM (%s) AS subq LIMIT %d", strings.TrimRight(strings.TrimSpace(statement), ";"), w.rowLimit+1)
	}

	rows, err := w.db.QueryContext(ctx, capped)
	if err != nil {
		return nil, errors.NewSQLExecutionError(err, statement)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.NewSQLExecutionError(err, statement)
	}

	result := &Result{Columns: columns}
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.NewSQLExecutionError(err, statement)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)

		if len(result.Rows) > w.rowLimit {
			result.Rows = result.Rows[:w.rowLimit]
			result.Truncated = true
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSQLExecutionError(err, statement)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// Exec runs a statement that returns no rows, e.g. DDL
func (w *DuckDB) Exec(ctx context.Context, statement string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.db.ExecContext(ctx, statement); err != nil {
		return errors.NewSQLExecutionError(err, statement)
	}
	return nil
}

// Explain asks the database to plan a statement without running it
func (w *DuckDB) Explain(ctx context.Context, statement string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.db.QueryContext(ctx, "EXPLAIN "+strings.TrimRight(strings.TrimSpace(statement), ";"))
	if err != nil {
		return errors.NewSQLExecutionError(err, statement)
	}
	rows.Close()
	return nil
}

// LoadCSV creates or replaces a table from a CSV file using type inference
func (w *DuckDB) LoadCSV(ctx context.Context, table, csvPath string) (int64, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(?, header=true)", table)
	if _, err := w.db.ExecContext(ctx, stmt, csvPath); err != nil {
		return 0, errors.NewCSVLoadError(err, table)
	}

	var count int64
	if err := w.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return 0, errors.NewWarehouseError(err, "count loaded rows")
	}

	return count, nil
}

// DropTable removes a table if it exists
func (w *DuckDB) DropTable(ctx context.Context, name string) error {
	if err := ValidateTableName(name); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
		return errors.NewWarehouseError(err, "drop table")
	}
	return nil
}

// Schema returns column metadata for every table in the main schema,
// ordered by table name and column position
func (w *DuckDB) Schema(ctx context.Context) ([]TableInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.db.QueryContext(ctx,
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position")
	if err != nil {
		return nil, errors.NewWarehouseError(err, "read schema")
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var table string
		var col Column
		if err := rows.Scan(&table, &col.Name, &col.Type); err != nil {
			return nil, errors.NewWarehouseError(err, "scan column")
		}
		if len(tables) == 0 || tables[len(tables)-1].Name != table {
			tables = append(tables, TableInfo{Name: table})
		}
		tables[len(tables)-1].Columns = append(tables[len(tables)-1].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewWarehouseError(err, "iterate schema")
	}

	return tables, nil
}

// RenderSchemaSummary formats table metadata as the text block prompts embed
func RenderSchemaSummary(tables []TableInfo) string {
	if len(tables) == 0 {
		return "No tables loaded."
	}

	var b strings.Builder
	for _, table := range tables {
		fmt.Fprintf(&b, "Table %s:\n", table.Name)
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  - %s (%s)\n", col.Name, col.Type)
		}
	}
	return b.String()
}

// SchemaSummary renders a text description of every table, used in prompts
func (w *DuckDB) SchemaSummary(ctx context.Context) (string, error) {
	tables, err := w.Schema(ctx)
	if err != nil {
		return "", err
	}
	return RenderSchemaSummary(tables), nil
}

// hasLimitClause reports whether a statement already carries a LIMIT
func hasLimitClause(statement string) bool {
	return limitPattern.MatchString(statement)
}

// isSelect reports whether a statement produces a result set
func isSelect(statement string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(statement))
	return strings.HasPrefix(trimmed, "select") || strings.HasPrefix(trimmed, "with")
}

// normalizeValue converts driver values to JSON-friendly types
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}
