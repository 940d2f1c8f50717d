package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider retrieves secrets from mounted files (e.g., Kubernetes secrets)
type FileProvider struct {
	basePath string
}

// NewFileProvider creates a new file-based secret provider
// basePath is typically "/var/secrets" for Kubernetes secret mounts
func NewFileProvider(basePath string) *FileProvider {
	return &FileProvider{
		basePath: basePath,
	}
}

// GetSecret reads a secret from a file
// Key "POSTGRES_PASSWORD" maps to file "postgres-password"
func (f *FileProvider) GetSecret(ctx context.Context, key string) (string, error) {
	filename := strings.ToLower(strings.ReplaceAll(key, "_", "-"))
	path := filepath.Join(f.basePath, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}

	return value, nil
}

// Name returns the provider name
func (f *FileProvider) Name() string {
	return "file"
}

// IsAvailable checks if the base path exists and is accessible
func (f *FileProvider) IsAvailable(ctx context.Context) bool {
	info, err := os.Stat(f.basePath)
	if err != nil {
		return false
	}
	return info.IsDir()
}
