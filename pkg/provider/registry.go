package provider

import (
	"fmt"
	"sort"
	"sync"

	"ai-genbot-gateway/internal/entity"
)

// Registry resolves a job to its adapter: by the provider the command named,
// otherwise by the default for the job's kind.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Provider
	defaults map[entity.GenerationKind]string
}

func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]Provider),
		defaults: make(map[entity.GenerationKind]string),
	}
}

// Register adds p and makes it the default for kinds.
func (r *Registry) Register(p Provider, kinds ...entity.GenerationKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[p.Name()] = p
	for _, k := range kinds {
		r.defaults[k] = p.Name()
	}
}

func (r *Registry) Resolve(kind entity.GenerationKind, name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaults[kind]
	}
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("no provider %q for kind %s", name, kind)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
