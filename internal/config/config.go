package config

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Warehouse WarehouseConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Ollama    OllamaConfig
	Agent     AgentConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Mode         string // gin mode: debug, release, test
}

// WarehouseConfig holds DuckDB warehouse settings
type WarehouseConfig struct {
	Path              string // database file path, empty for in-memory
	UploadsDir        string // directory for uploaded CSV files
	RelationshipsPath string // JSON document declaring table relationships
}

// DatabaseConfig holds PostgreSQL settings for the semantic index
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString builds a PostgreSQL connection string
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// RedisConfig holds Redis settings for conversation transcripts
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Address returns the Redis address in host:port format
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// OllamaConfig holds settings for the local LLM runtime
type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Timeout    time.Duration
}

// AgentConfig holds agent orchestration settings
type AgentConfig struct {
	MaxSQLRetries    int           // correction attempts before giving up
	SchemaCacheTTL   time.Duration // schema summary cache lifetime
	RowLimit         int           // maximum rows returned per query
	ErrorDetailLimit int           // max chars of a database error fed back to the model
	TopK             int           // semantic search candidates per concept
}

// Loader loads configuration from secret providers
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a configuration loader with the given provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{provider: provider}
}

// NewDefaultLoader creates a loader with the standard provider chain:
// Kubernetes secrets, then mounted files, then environment variables
func NewDefaultLoader() *Loader {
	chain := NewChainProvider(
		NewK8sProvider(""),
		NewFileProvider("/var/secrets"),
		NewEnvProvider(),
	)
	return NewLoader(chain)
}

// Load builds the full configuration, applying defaults for missing values
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         l.getInt(ctx, "SERVER_PORT", 8080),
			Host:         l.getString(ctx, "SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  l.getDuration(ctx, "SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: l.getDuration(ctx, "SERVER_WRITE_TIMEOUT", 120*time.Second),
			Mode:         l.getString(ctx, "GIN_MODE", "release"),
		},
		Warehouse: WarehouseConfig{
			Path:              l.getString(ctx, "DUCKDB_PATH", "data/warehouse.db"),
			UploadsDir:        l.getString(ctx, "UPLOADS_DIR", "data/uploads"),
			RelationshipsPath: l.getString(ctx, "RELATIONSHIPS_PATH", "data/relationships.json"),
		},
		Database: DatabaseConfig{
			Host:     l.getString(ctx, "POSTGRES_HOST", "localhost"),
			Port:     l.getInt(ctx, "POSTGRES_PORT", 5432),
			User:     l.getString(ctx, "POSTGRES_USER", "datachat"),
			Password: l.getString(ctx, "POSTGRES_PASSWORD", ""),
			Database: l.getString(ctx, "POSTGRES_DB", "datachat"),
			SSLMode:  l.getString(ctx, "POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     l.getString(ctx, "REDIS_HOST", "localhost"),
			Port:     l.getInt(ctx, "REDIS_PORT", 6379),
			Password: l.getString(ctx, "REDIS_PASSWORD", ""),
			DB:       l.getInt(ctx, "REDIS_DB", 0),
		},
		Ollama: OllamaConfig{
			BaseURL:    l.getString(ctx, "OLLAMA_BASE_URL", "http://localhost:11434"),
			ChatModel:  l.getString(ctx, "OLLAMA_CHAT_MODEL", "qwen2.5-coder:14b"),
			EmbedModel: l.getString(ctx, "OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			Timeout:    l.getDuration(ctx, "OLLAMA_TIMEOUT", 120*time.Second),
		},
		Agent: AgentConfig{
			MaxSQLRetries:    l.getInt(ctx, "AGENT_MAX_SQL_RETRIES", 3),
			SchemaCacheTTL:   l.getDuration(ctx, "AGENT_SCHEMA_CACHE_TTL", 60*time.Second),
			RowLimit:         l.getInt(ctx, "AGENT_ROW_LIMIT", 1000),
			ErrorDetailLimit: l.getInt(ctx, "AGENT_ERROR_DETAIL_LIMIT", 300),
			TopK:             l.getInt(ctx, "AGENT_SEMANTIC_TOP_K", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
