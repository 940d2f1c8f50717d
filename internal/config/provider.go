package config

import (
	"context"
	"fmt"
)

// SecretProvider resolves configuration secrets from one backing source
type SecretProvider interface {
	// GetSecret returns the value stored under key
	GetSecret(ctx context.Context, key string) (string, error)

	// Name identifies the provider in logs
	Name() string

	// IsAvailable reports whether the provider can serve lookups in this
	// environment
	IsAvailable(ctx context.Context) bool
}

// ChainProvider consults providers in order and returns the first
// non-empty value
type ChainProvider struct {
	providers []SecretProvider
}

// NewChainProvider builds a chain over the given providers
func NewChainProvider(providers ...SecretProvider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

// GetSecret walks the chain, skipping unavailable providers, until one
// returns a non-empty value
func (c *ChainProvider) GetSecret(ctx context.Context, key string) (string, error) {
	var lastErr error
	for _, provider := range c.providers {
		if !provider.IsAvailable(ctx) {
			continue
		}
		value, err := provider.GetSecret(ctx, key)
		if err == nil && value != "" {
			return value, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return "", fmt.Errorf("no provider resolved %q, last error: %w", key, lastErr)
	}
	return "", fmt.Errorf("no available provider for key %q", key)
}

// Name returns the chain provider name
func (c *ChainProvider) Name() string {
	return "chain"
}

// IsAvailable reports whether at least one chained provider is available
func (c *ChainProvider) IsAvailable(ctx context.Context) bool {
	for _, provider := range c.providers {
		if provider.IsAvailable(ctx) {
			return true
		}
	}
	return false
}
