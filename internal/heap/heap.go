package heap

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrForeignObject = errors.New("heap: object not owned by this heap")
	ErrNilObject     = errors.New("heap: nil object")
)

// Object is one managed value. Placement is owned by the collector: a
// collection pass may move the object (new *Object handle) or reclaim it,
// so handles held outside the heap are only valid until the next pass
// unless they are forwarded through a visit hook.
type Object struct {
	class  string
	value  string
	fields map[string]*Object
}

func (o *Object) Class() string { return o.class }

func (o *Object) Value() string { return o.value }

func (o *Object) SetValue(v string) { o.value = v }

func (o *Object) Field(name string) (*Object, bool) {
	target, ok := o.fields[name]
	return target, ok
}

// FieldNames returns deterministic field ordering by name.
func (o *Object) FieldNames() []string {
	names := make([]string, 0, len(o.fields))
	for name := range o.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Heap owns every object allocated for one isolate, plus the named roots
// the collector traces from.
type Heap struct {
	mu      sync.Mutex
	objects map[*Object]struct{}
	roots   map[string]*Object
}

func New() *Heap {
	return &Heap{
		objects: make(map[*Object]struct{}),
		roots:   make(map[string]*Object),
	}
}

// Alloc creates a new object owned by this heap.
func (h *Heap) Alloc(class, value string) *Object {
	obj := &Object{
		class:  class,
		value:  value,
		fields: make(map[string]*Object),
	}
	h.mu.Lock()
	h.objects[obj] = struct{}{}
	h.mu.Unlock()
	return obj
}

// SetField points obj.name at target. Both must be owned by this heap.
func (h *Heap) SetField(obj *Object, name string, target *Object) error {
	if obj == nil || target == nil {
		return ErrNilObject
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.objects[obj]; !ok {
		return fmt.Errorf("%w: field holder", ErrForeignObject)
	}
	if _, ok := h.objects[target]; !ok {
		return fmt.Errorf("%w: field target %q", ErrForeignObject, name)
	}
	obj.fields[name] = target
	return nil
}

// SetRoot installs obj as a named root. Roots keep their referents alive
// across collection passes.
func (h *Heap) SetRoot(name string, obj *Object) error {
	if obj == nil {
		return ErrNilObject
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.objects[obj]; !ok {
		return fmt.Errorf("%w: root %q", ErrForeignObject, name)
	}
	h.roots[name] = obj
	return nil
}

func (h *Heap) Root(name string) (*Object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.roots[name]
	return obj, ok
}

// RootNames returns deterministic root ordering by name.
func (h *Heap) RootNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.roots))
	for name := range h.roots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size reports the number of objects currently owned, collected or not.
func (h *Heap) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// Classes returns the distinct classes of owned objects, sorted.
func (h *Heap) Classes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	for obj := range h.objects {
		seen[obj.class] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for class := range seen {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}
