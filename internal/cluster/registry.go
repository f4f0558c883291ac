package cluster

import (
	"context"
	"fmt"
	"sync"
)

// Registry manages cluster configurations with thread-safe access.
type Registry struct {
	clusters map[string]*ClusterConfig
	order    []string
	mu       sync.RWMutex
}

// NewRegistry creates a new cluster registry.
func NewRegistry() *Registry {
	return &Registry{
		clusters: make(map[string]*ClusterConfig),
	}
}

// Load validates and adds cluster configurations to the registry.
func (r *Registry) Load(clusters []ClusterConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range clusters {
		cluster := &clusters[i]
		if err := cluster.Validate(); err != nil {
			return err
		}
		if _, exists := r.clusters[cluster.Name]; exists {
			return fmt.Errorf("duplicate cluster name: %s", cluster.Name)
		}
		r.clusters[cluster.Name] = cluster
		r.order = append(r.order, cluster.Name)
	}
	return nil
}

// Get retrieves a cluster configuration by name.
// Returns nil if not found.
func (r *Registry) Get(name string) *ClusterConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clusters[name]
}

// List returns all cluster configurations in load order.
func (r *Registry) List() []*ClusterConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*ClusterConfig, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.clusters[name])
	}
	return result
}

// Names returns the registered cluster names in load order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// ListClusters returns Names. It lets a Registry list clusters wherever a
// state store would.
func (r *Registry) ListClusters(context.Context) ([]string, error) {
	return r.Names(), nil
}

// Target returns the address for a cluster name. Unregistered names are
// returned unchanged so ad-hoc clusters can still be reached directly.
func (r *Registry) Target(name string) string {
	if cfg := r.Get(name); cfg != nil {
		return cfg.Target()
	}
	return name
}

// Count returns the number of registered clusters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clusters)
}
