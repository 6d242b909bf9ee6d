package heap

// CollectStats summarizes one collection pass.
type CollectStats struct {
	Live      int
	Reclaimed int
}

// ForwardFunc maps a pre-collection handle to its post-collection handle.
// The second return is false when the referent was reclaimed.
type ForwardFunc func(old *Object) (*Object, bool)

// VisitHook is a side table's entry point into the collection pass. The
// hook must rewrite or drop every handle it holds using forward before
// returning; handles not forwarded are invalid once Collect returns.
type VisitHook func(forward ForwardFunc)

// Collect runs one mark/evacuate pass: objects reachable from roots are
// moved to fresh handles, everything else is reclaimed. Hooks run after
// evacuation, while the heap lock is still held, so no allocation or
// resolution can interleave with handle forwarding.
//
// The caller is expected to hold the owning isolate's safepoint; Collect
// itself only guarantees exclusion against other Heap operations.
func (h *Heap) Collect(hooks ...VisitHook) CollectStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Mark.
	live := make(map[*Object]struct{})
	var mark func(obj *Object)
	mark = func(obj *Object) {
		if _, ok := live[obj]; ok {
			return
		}
		live[obj] = struct{}{}
		for _, target := range obj.fields {
			mark(target)
		}
	}
	for _, root := range h.roots {
		mark(root)
	}

	// Evacuate live objects to fresh handles.
	forwarding := make(map[*Object]*Object, len(live))
	for old := range live {
		forwarding[old] = &Object{
			class:  old.class,
			value:  old.value,
			fields: make(map[string]*Object, len(old.fields)),
		}
	}
	for old, moved := range forwarding {
		for name, target := range old.fields {
			moved.fields[name] = forwarding[target]
		}
	}

	reclaimed := len(h.objects) - len(live)
	h.objects = make(map[*Object]struct{}, len(forwarding))
	for _, moved := range forwarding {
		h.objects[moved] = struct{}{}
	}
	for name, root := range h.roots {
		h.roots[name] = forwarding[root]
	}

	forward := func(old *Object) (*Object, bool) {
		moved, ok := forwarding[old]
		return moved, ok
	}
	for _, hook := range hooks {
		hook(forward)
	}

	return CollectStats{Live: len(live), Reclaimed: reclaimed}
}
