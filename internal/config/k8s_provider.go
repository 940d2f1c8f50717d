package config

import (
	"context"
	"os"
)

// K8sProvider retrieves secrets from Kubernetes secret mounts
// This wraps FileProvider with Kubernetes-specific conventions
type K8sProvider struct {
	fileProvider *FileProvider
}

// NewK8sProvider creates a Kubernetes secret provider
// Secrets are expected to be mounted at /var/secrets by default
func NewK8sProvider(mountPath string) *K8sProvider {
	if mountPath == "" {
		mountPath = "/var/secrets"
	}
	return &K8sProvider{
		fileProvider: NewFileProvider(mountPath),
	}
}

// GetSecret retrieves a secret from Kubernetes secret mount
func (k *K8sProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return k.fileProvider.GetSecret(ctx, key)
}

// Name returns the provider name
func (k *K8sProvider) Name() string {
	return "kubernetes"
}

// IsAvailable checks if running in Kubernetes and secrets are mounted
func (k *K8sProvider) IsAvailable(ctx context.Context) bool {
	if _, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount/token"); err != nil {
		return false
	}
	return k.fileProvider.IsAvailable(ctx)
}
