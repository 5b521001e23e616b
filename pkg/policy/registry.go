package policy

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps policy names to modules.
//
// The registry is read-mostly: it is populated at startup and read by
// the engine on every configuration load. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]Module),
	}
}

// Register adds a module under the given name.
// It fails with InvalidNameError for empty or whitespace names and
// with DuplicateNameError when the name is already taken; duplicate
// registration is rejected rather than overwritten.
func (r *Registry) Register(name string, module Module) error {
	if strings.TrimSpace(name) == "" {
		return &InvalidNameError{Name: name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.policies[name]; exists {
		return &DuplicateNameError{Name: name}
	}
	r.policies[name] = module
	return nil
}

// Unregister removes a module. It fails with NotRegisteredError when
// the name is unknown.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.policies[name]; !exists {
		return &NotRegisteredError{Name: name}
	}
	delete(r.policies, name)
	return nil
}

// Get returns the module registered under name. Unknown names return
// (nil, false) rather than an error.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	module, ok := r.policies[name]
	return module, ok
}

// All returns a snapshot of the registered modules. The returned map
// does not reflect subsequent mutations.
func (r *Registry) All() map[string]Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Module, len(r.policies))
	for name, module := range r.policies {
		snapshot[name] = module
	}
	return snapshot
}

// Names returns the registered policy names, sorted. The returned
// slice is a copy.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered modules.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.policies)
}

// Clear removes all registered modules.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = make(map[string]Module)
}
