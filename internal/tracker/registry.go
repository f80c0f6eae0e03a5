package tracker

import (
	"fmt"
	"sort"
	"sync"
)

// Factory is a function that creates a new StateTracker instance.
type Factory func() StateTracker

// Registry manages registered tracker plugins. Adapters register themselves
// at init time and the registry provides access to them by name.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]Factory
}

var globalRegistry = &Registry{
	trackers: make(map[string]Factory),
}

// Register adds a tracker factory to the global registry.
// Typically called from adapter init() functions. The name should be
// lowercase (e.g. "jira", "pipeboard").
func Register(name string, factory Factory) {
	globalRegistry.Register(name, factory)
}

// List returns the names of all registered trackers.
func List() []string {
	return globalRegistry.List()
}

// New creates a new instance of the named tracker.
// Returns an error if no tracker with that name is registered.
func New(name string) (StateTracker, error) {
	return globalRegistry.New(name)
}

// Register adds a tracker factory to this registry.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers[name] = factory
}

// Get retrieves a tracker factory, or nil if unregistered.
func (r *Registry) Get(name string) Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trackers[name]
}

// List returns the names of all registered trackers, sorted alphabetically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.trackers))
	for name := range r.trackers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a new instance of the named tracker.
func (r *Registry) New(name string) (StateTracker, error) {
	factory := r.Get(name)
	if factory == nil {
		available := r.List()
		return nil, fmt.Errorf("unknown tracker %q (available: %v)", name, available)
	}
	return factory(), nil
}

// IsRegistered checks if a tracker with the given name is registered.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.trackers[name]
	return ok
}

// Clear removes all registered trackers. Used primarily for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers = make(map[string]Factory)
}
