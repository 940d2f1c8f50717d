// Package errors provides enhanced error types with helpful context and suggestions
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Turn processing errors
	ErrCodeIntentRouting       ErrorCode = "INTENT_ROUTING_FAILED"
	ErrCodeSQLGeneration       ErrorCode = "SQL_GENERATION_FAILED"
	ErrCodeCorrectionExhausted ErrorCode = "SQL_CORRECTION_EXHAUSTED"
	ErrCodeSQLExecution        ErrorCode = "SQL_EXECUTION_FAILED"
	ErrCodeChartGeneration     ErrorCode = "CHART_GENERATION_FAILED"
	ErrCodeInterpretation      ErrorCode = "RESULT_INTERPRETATION_FAILED"

	// Collaborator errors
	ErrCodeTextGeneration ErrorCode = "TEXT_GENERATION_FAILED"
	ErrCodeEmbedding      ErrorCode = "EMBEDDING_GENERATION_FAILED"
	ErrCodeSemanticIndex  ErrorCode = "SEMANTIC_INDEX_FAILED"
	ErrCodeWarehouse      ErrorCode = "WAREHOUSE_OPERATION_FAILED"
	ErrCodeTranscript     ErrorCode = "TRANSCRIPT_STORE_FAILED"

	// Schema and table errors
	ErrCodeInvalidTableName ErrorCode = "INVALID_TABLE_NAME"
	ErrCodeTableNotFound    ErrorCode = "TABLE_NOT_FOUND"
	ErrCodeCSVLoad          ErrorCode = "CSV_LOAD_FAILED"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"

	// Cache errors
	ErrCodeCacheRefresh ErrorCode = "SCHEMA_CACHE_REFRESH_FAILED"
)

// EnhancedError represents an error with additional context and helpful information
type EnhancedError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly error message with suggestions
func (e *EnhancedError) UserMessage() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString(fmt.Sprintf("\n\nDetails: %s", e.Details))
	}

	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion))
	}

	return sb.String()
}

// New creates a new EnhancedError
func New(code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with enhanced context
func Wrap(err error, code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *EnhancedError) WithDetails(details string) *EnhancedError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *EnhancedError) WithSuggestion(suggestion string) *EnhancedError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *EnhancedError) WithMetadata(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Common error constructors with pre-configured messages

// NewIntentRoutingError creates an error for intent routing failures
func NewIntentRoutingError(err error, utterance string) *EnhancedError {
	return Wrap(err, ErrCodeIntentRouting, "Failed to route the request").
		WithDetails(fmt.Sprintf("Could not determine what to do with: '%s'", utterance)).
		WithSuggestion("Try rephrasing your request. For example: 'total invoice amount per year' or 'describe the data'.")
}

// NewSQLGenerationError creates an error for SQL generation failures
func NewSQLGenerationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeSQLGeneration, "Failed to generate a SQL statement").
		WithDetails("The language model did not produce usable SQL for your question").
		WithSuggestion("Try simplifying your question or being more specific about the tables and columns you want.")
}

// NewCorrectionExhaustedError creates an error when the repair budget is spent
func NewCorrectionExhaustedError(lastError string, attempts int) *EnhancedError {
	return New(ErrCodeCorrectionExhausted, "Unable to repair the SQL statement").
		WithDetails(fmt.Sprintf("Gave up after %d correction attempts. Last error: %s", attempts, lastError)).
		WithSuggestion("Rephrase the question using the exact table and column names shown by 'describe the data'.").
		WithMetadata("attempts", attempts)
}

// NewSQLExecutionError creates an error for statement execution failures
func NewSQLExecutionError(err error, statement string) *EnhancedError {
	return Wrap(err, ErrCodeSQLExecution, "Failed to execute SQL statement").
		WithDetails("The analytics store rejected the statement at runtime").
		WithMetadata("statement", statement)
}

// NewChartGenerationError creates an error for chart generation failures
func NewChartGenerationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeChartGeneration, "Failed to generate chart configuration").
		WithDetails("The language model did not return a valid chart specification").
		WithSuggestion("Ask again and name a chart type, for example 'bar chart of amounts per supplier'.")
}

// NewTextGenerationError creates an error for text-generation collaborator failures
func NewTextGenerationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeTextGeneration, "Text generation service unavailable").
		WithDetails("The language model could not be reached or returned an error").
		WithSuggestion("This is typically a temporary issue. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewEmbeddingError creates an error for embedding generation failures
func NewEmbeddingError(err error) *EnhancedError {
	return Wrap(err, ErrCodeEmbedding, "Failed to generate text embedding").
		WithDetails("The embedding service was unable to process the text for semantic search").
		WithMetadata("retryable", true)
}

// NewSemanticIndexError creates an error for semantic index failures
func NewSemanticIndexError(err error, operation string) *EnhancedError {
	return Wrap(err, ErrCodeSemanticIndex, "Semantic index operation failed").
		WithDetails(fmt.Sprintf("Failed semantic index operation: %s", operation)).
		WithMetadata("retryable", true)
}

// NewWarehouseError creates an error for analytics-store failures
func NewWarehouseError(err error, operation string) *EnhancedError {
	return Wrap(err, ErrCodeWarehouse, "Analytics store operation failed").
		WithDetails(fmt.Sprintf("Failed warehouse operation: %s", operation)).
		WithMetadata("retryable", true)
}

// NewInvalidTableNameError creates an error for identifier allow-list violations
func NewInvalidTableNameError(name string) *EnhancedError {
	return New(ErrCodeInvalidTableName, "Invalid table name").
		WithDetails(fmt.Sprintf("'%s' is not an allowed table identifier", name)).
		WithSuggestion("Table names must start with a letter or underscore and contain only letters, digits, and underscores.")
}

// NewTableNotFoundError creates an error for missing tables
func NewTableNotFoundError(name string) *EnhancedError {
	return New(ErrCodeTableNotFound, "Table not found").
		WithDetails(fmt.Sprintf("No table named '%s' exists in the warehouse", name)).
		WithSuggestion("List the loaded tables with the tables endpoint, or load a CSV first.").
		WithMetadata("table", name)
}

// NewCSVLoadError creates an error for CSV ingestion failures
func NewCSVLoadError(err error, table string) *EnhancedError {
	return Wrap(err, ErrCodeCSVLoad, "Failed to load CSV file").
		WithDetails(fmt.Sprintf("The file could not be loaded into table '%s'", table)).
		WithSuggestion("Check that the file is valid CSV with a header row.")
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		WithSuggestion("Please check the API documentation for the expected format and try again.")
}
