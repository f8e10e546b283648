package entity

import (
	"sort"
	"sync"
)

// Registry holds validated entity configs for the process lifetime.
// Configs are validated on the way in and treated as immutable once
// stored; Replace swaps the whole set atomically for config reloads.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*Config
}

func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]*Config)}
}

// Register validates and stores a config, replacing any previous
// config with the same entity name.
func (r *Registry) Register(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Entity] = cfg
	return nil
}

// Get looks up a config by entity name.
func (r *Registry) Get(entity string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[entity]
	return cfg, ok
}

// Names lists the registered entity names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All lists the registered configs ordered by entity name.
func (r *Registry) All() []*Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	configs := make([]*Config, 0, len(names))
	for _, name := range names {
		configs = append(configs, r.configs[name])
	}
	return configs
}

// Replace validates every config and swaps the registry content in one
// step. On any validation error the registry is left unchanged.
func (r *Registry) Replace(configs []*Config) error {
	next := make(map[string]*Config, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		next[cfg.Entity] = cfg
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = next
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.configs)
}
