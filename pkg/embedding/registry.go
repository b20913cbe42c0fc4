package embedding

import (
	"sort"
	"sync"

	"docrag-be/pkg/apperror"
)

// Registry resolves a workspace's configured embedding algorithm name to a provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]EmbeddingProvider
}

func NewRegistry(providers ...EmbeddingProvider) *Registry {
	r := &Registry{providers: make(map[string]EmbeddingProvider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p EmbeddingProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (EmbeddingProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, apperror.WithMessage(apperror.ErrUnknownAlgorithm, "unknown embedding algorithm %q", name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
