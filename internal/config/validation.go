package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects multiple validation failures
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the full configuration for invalid values
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.Server.validate()...)
	errs = append(errs, c.Warehouse.validate()...)
	errs = append(errs, c.Database.validate()...)
	errs = append(errs, c.Redis.validate()...)
	errs = append(errs, c.Ollama.validate()...)
	errs = append(errs, c.Agent.validate()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s ServerConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, ValidationError{"server.port", "must be between 1 and 65535"})
	}
	if s.Mode != "debug" && s.Mode != "release" && s.Mode != "test" {
		errs = append(errs, ValidationError{"server.mode", "must be debug, release, or test"})
	}
	return errs
}

func (w WarehouseConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if w.UploadsDir == "" {
		errs = append(errs, ValidationError{"warehouse.uploads_dir", "must not be empty"})
	}
	return errs
}

func (d DatabaseConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if d.Host == "" {
		errs = append(errs, ValidationError{"database.host", "must not be empty"})
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, ValidationError{"database.port", "must be between 1 and 65535"})
	}
	if d.Database == "" {
		errs = append(errs, ValidationError{"database.name", "must not be empty"})
	}
	return errs
}

func (r RedisConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if r.Host == "" {
		errs = append(errs, ValidationError{"redis.host", "must not be empty"})
	}
	if r.Port < 1 || r.Port > 65535 {
		errs = append(errs, ValidationError{"redis.port", "must be between 1 and 65535"})
	}
	if r.DB < 0 {
		errs = append(errs, ValidationError{"redis.db", "must not be negative"})
	}
	return errs
}

func (o OllamaConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if o.BaseURL == "" {
		errs = append(errs, ValidationError{"ollama.base_url", "must not be empty"})
	}
	if !strings.HasPrefix(o.BaseURL, "http://") && !strings.HasPrefix(o.BaseURL, "https://") {
		errs = append(errs, ValidationError{"ollama.base_url", "must start with http:// or https://"})
	}
	if o.ChatModel == "" {
		errs = append(errs, ValidationError{"ollama.chat_model", "must not be empty"})
	}
	if o.EmbedModel == "" {
		errs = append(errs, ValidationError{"ollama.embed_model", "must not be empty"})
	}
	if o.Timeout <= 0 {
		errs = append(errs, ValidationError{"ollama.timeout", "must be positive"})
	}
	return errs
}

func (a AgentConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if a.MaxSQLRetries < 0 {
		errs = append(errs, ValidationError{"agent.max_sql_retries", "must not be negative"})
	}
	if a.SchemaCacheTTL <= 0 {
		errs = append(errs, ValidationError{"agent.schema_cache_ttl", "must be positive"})
	}
	if a.RowLimit < 1 {
		errs = append(errs, ValidationError{"agent.row_limit", "must be at least 1"})
	}
	if a.TopK < 1 {
		errs = append(errs, ValidationError{"agent.semantic_top_k", "must be at least 1"})
	}
	return errs
}
