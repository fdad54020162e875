package audit

import (
	"fmt"
	"sync"
)

// Registry holds audits keyed by id, remembering registration order.
type Registry struct {
	mu     sync.RWMutex
	audits map[string]Audit
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{audits: make(map[string]Audit)}
}

// Register adds a. Empty and duplicate ids are rejected.
func (r *Registry) Register(a Audit) error {
	if a == nil {
		return fmt.Errorf("audit registry: nil audit")
	}
	id := a.Meta().ID
	if id == "" {
		return fmt.Errorf("audit registry: audit id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.audits[id]; exists {
		return fmt.Errorf("audit registry: %q already registered", id)
	}
	r.audits[id] = a
	r.order = append(r.order, id)
	return nil
}

// MustRegister is Register for static setup; it panics on error.
func (r *Registry) MustRegister(a Audit) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(id string) (Audit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.audits[id]
	return a, ok
}

// All returns the audits in registration order.
func (r *Registry) All() []Audit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Audit, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.audits[id])
	}
	return out
}

// IDs returns audit ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Without returns a new registry excluding the given ids.
func (r *Registry) Without(ids ...string) *Registry {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := NewRegistry()
	for _, a := range r.All() {
		if drop[a.Meta().ID] {
			continue
		}
		out.MustRegister(a)
	}
	return out
}

// Builtin returns a registry with every audit this package ships.
func Builtin() *Registry {
	r := NewRegistry()
	for _, a := range []Audit{
		CarbonFootprint(),
		UsesCompression(),
		UsesHTTP2(),
		GreenServer(),
		ModernImages(),
		NoConsoleLogs(),
		FontSubsetting(),
		DarkMode(),
		PixelEfficiency(),
		ReactiveAnimations(),
		LazyLoading(),
	} {
		r.MustRegister(a)
	}
	return r
}
