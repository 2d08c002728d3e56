package pluginapi

import (
	"fmt"
	"sync"

	"github.com/machinefabric/xformd/streamtype"
)

// RegistryError reports a registry operation failure, mirroring the
// teacher's CapHostRegistryError constructor style.
type RegistryError struct {
	Op      string
	Message string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("pluginapi: %s: %s", e.Op, e.Message)
}

func newDuplicatePluginError(name string) *RegistryError {
	return &RegistryError{Op: "Register", Message: fmt.Sprintf("plugin %q already registered", name)}
}

// MemRegistry is an in-memory Registry: a test double and the natural
// production implementation for an in-process daemon (the original loads
// plugins as dynamically-linked .so files; xformd's equivalent is a
// compiled-in registration call per plugin package).
type MemRegistry struct {
	mu      sync.RWMutex
	order   []string
	byName  map[string]*Plugin
}

// NewMemRegistry returns an empty registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{byName: make(map[string]*Plugin)}
}

// Register adds a plugin. Order of registration is preserved and governs
// the first-match scan FindPlugin performs.
func (r *MemRegistry) Register(p *Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[p.ShortName]; exists {
		return newDuplicatePluginError(p.ShortName)
	}
	r.byName[p.ShortName] = p
	r.order = append(r.order, p.ShortName)
	return nil
}

// Unregister removes a plugin by name.
func (r *MemRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; !exists {
		return false
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *MemRegistry) FindPlugin(concrete *streamtype.StreamType) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		p := r.byName[name]
		if p.Accepts(concrete) {
			return p, true
		}
	}
	return nil, false
}

func (r *MemRegistry) FindByName(name string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

func (r *MemRegistry) Plugins() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

var _ Registry = (*MemRegistry)(nil)
