package source

import (
	"fmt"

	"viaductecho/internal/config"
	"viaductecho/internal/ports"
)

// Factory builds a source adapter from its config entry.
type Factory func(cfg config.SourceConfig) ports.Source

// Registry keeps a mapping from adapter kinds to their factories. The set of
// kinds is closed: adding a source means registering a new factory, not
// touching the pipeline.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds or replaces a factory for the given kind.
func (r *Registry) Register(kind string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[kind] = factory
}

// Build instantiates one adapter per configured source.
func (r *Registry) Build(cfgs []config.SourceConfig) ([]ports.Source, error) {
	sources := make([]ports.Source, 0, len(cfgs))
	for _, cfg := range cfgs {
		factory, ok := r.factories[cfg.Kind]
		if !ok {
			return nil, fmt.Errorf("source %s: kind %q is not registered", cfg.Name, cfg.Kind)
		}
		sources = append(sources, factory(cfg))
	}
	return sources, nil
}
