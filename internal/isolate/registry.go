package isolate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrIsolateExists = errors.New("isolate: already registered")
	ErrIsolateNil    = errors.New("isolate: nil isolate")
	ErrInvalidID     = errors.New("isolate: invalid id")
)

// Registry is the process-wide isolate table. Lookup only returns live
// isolates: liveness is checked under the same lock that resolves the id,
// so a request racing with teardown sees "gone", never a half-collapsed
// isolate.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Isolate
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Isolate)}
}

func (r *Registry) Register(iso *Isolate) error {
	if iso == nil {
		return ErrIsolateNil
	}
	if strings.TrimSpace(iso.ID()) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[iso.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrIsolateExists, iso.ID())
	}
	r.items[iso.ID()] = iso
	return nil
}

// Lookup resolves id to a live isolate.
func (r *Registry) Lookup(id string) (*Isolate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	iso, ok := r.items[id]
	if !ok || !iso.Live() {
		return nil, false
	}
	return iso, true
}

// Remove drops id from the table; the isolate itself is collapsed by its
// owner, not by the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.items, id)
	r.mu.Unlock()
}

// List returns all registered isolates, live or not, ordered by id.
func (r *Registry) List() []*Isolate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Isolate, 0, len(r.items))
	for _, iso := range r.items {
		out = append(out, iso)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID() < out[b].ID() })
	return out
}
