// Package secrets contains the secret-vault access used by mcpruntime.
package secrets

import (
	"context"
	"fmt"
	"sync"
)

// Vault describes a type which can resolve a stored secret bundle into a
// flat key/value map. The surrounding application provides the production
// implementation.
type Vault interface {
	// GetSecretByID returns the key/value pairs of the bundle with the
	// given id. A missing bundle returns an error.
	GetSecretByID(ctx context.Context, id string) (map[string]string, error)
}

// InMemoryVault is a Vault backed by a map. It is used by tests and as the
// CLI fallback when no external vault is configured.
type InMemoryVault struct {
	mu      sync.RWMutex
	bundles map[string]map[string]string
}

// NewInMemoryVault creates an empty in-memory vault.
func NewInMemoryVault() *InMemoryVault {
	return &InMemoryVault{
		bundles: make(map[string]map[string]string),
	}
}

// SetBundle stores a bundle under the given id, replacing any prior value.
func (v *InMemoryVault) SetBundle(id string, values map[string]string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	copied := make(map[string]string, len(values))
	for k, val := range values {
		copied[k] = val
	}
	v.bundles[id] = copied
}

// GetSecretByID implements Vault.
func (v *InMemoryVault) GetSecretByID(_ context.Context, id string) (map[string]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	bundle, ok := v.bundles[id]
	if !ok {
		return nil, fmt.Errorf("secret bundle %s not found", id)
	}

	copied := make(map[string]string, len(bundle))
	for k, val := range bundle {
		copied[k] = val
	}
	return copied, nil
}
