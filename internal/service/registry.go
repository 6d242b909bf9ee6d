package service

import (
	"strings"
	"sync"
)

// Callback is an embedder-provided handler. userData is the opaque value
// supplied at registration, kept explicit for embedder interop.
type Callback func(method string, params map[string]string, userData any) (any, error)

type handlerEntry struct {
	name     string
	fn       Callback
	userData any
}

// EmbedderRegistry is one scope's list of external handlers. Registration
// prepends and lookup scans front to back, so the most recent
// registration of a duplicate name wins. The lock is shared by register
// and lookup, so hot registration is safe even though embedders normally
// register once at startup.
type EmbedderRegistry struct {
	mu      sync.RWMutex
	entries []handlerEntry
}

func NewEmbedderRegistry() *EmbedderRegistry {
	return &EmbedderRegistry{}
}

func (r *EmbedderRegistry) Register(name string, fn Callback, userData any) {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return
	}
	r.mu.Lock()
	r.entries = append([]handlerEntry{{name: name, fn: fn, userData: userData}}, r.entries...)
	r.mu.Unlock()
}

func (r *EmbedderRegistry) Find(name string) (handlerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.entries {
		if entry.name == name {
			return entry, true
		}
	}
	return handlerEntry{}, false
}

func (r *EmbedderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
