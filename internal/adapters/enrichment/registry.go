package enrichment

import (
	"fmt"
	"sync"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
)

// ProviderNone disables enrichment.
const ProviderNone = "none"

// Factory builds a summarizer from settings.
type Factory func(Settings) (ports.Summarizer, error)

// Registry manages the registration and lookup of summarizer factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string // maintains registration order
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		order:     make([]string, 0),
	}
}

// Register adds a factory under name.
// If a factory with the same name already exists, it will be replaced.
func (r *Registry) Register(name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}
	if name == "" || name == ProviderNone {
		return fmt.Errorf("invalid provider name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = factory
	return nil
}

// List returns all registered provider names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Build creates the summarizer for provider. It returns nil, nil when enrichment
// is disabled or no API key is configured.
func (r *Registry) Build(provider string, settings Settings) (ports.Summarizer, error) {
	if provider == "" || provider == ProviderNone || settings.APIKey == "" {
		return nil, nil
	}

	r.mu.RLock()
	factory, ok := r.factories[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("enrichment provider not found: %s", provider)
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	return factory(settings)
}
