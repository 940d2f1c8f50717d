package config

import (
	"context"
	"fmt"
	"os"
)

// EnvProvider retrieves secrets from environment variables
type EnvProvider struct{}

// NewEnvProvider creates a new environment variable provider
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// GetSecret retrieves a secret from environment variables
func (e *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", key)
	}
	return value, nil
}

// Name returns the provider name
func (e *EnvProvider) Name() string {
	return "environment"
}

// IsAvailable always returns true as environment variables are always accessible
func (e *EnvProvider) IsAvailable(ctx context.Context) bool {
	return true
}
