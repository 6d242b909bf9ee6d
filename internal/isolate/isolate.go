package isolate

import (
	"sync"
	"sync/atomic"

	"github.com/danmuck/isoctl/internal/heap"
	"github.com/danmuck/isoctl/internal/identity"
)

// State tracks isolate teardown. Requests resolve against live isolates
// only; everything else reads as collected at the service boundary.
type State int32

const (
	StateRunning State = iota
	StateCollapsing
	StateCollapsed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCollapsing:
		return "collapsing"
	case StateCollapsed:
		return "collapsed"
	default:
		return "unknown"
	}
}

// Library is a named grouping of heap roots, the unit the introspection
// surface reports as a loaded library.
type Library struct {
	Name  string
	Roots []string
}

// Isolate is one independently scheduled execution context: its own heap,
// its own id ring, its own zone. Cross-isolate traffic goes through the
// service layer, never through shared memory.
type Isolate struct {
	id   string
	name string

	// safepoint quiesces the mutator while the collector traces and
	// relocates. Collect is the only taker besides teardown.
	safepoint sync.Mutex

	state atomic.Int32

	heap      *heap.Heap
	ring      *identity.Ring
	zone      *identity.RingZone
	libMu     sync.Mutex
	libraries []Library
}

func New(id, name string, ringCapacity int, policy identity.Policy) *Isolate {
	ring := identity.NewRing(ringCapacity)
	return &Isolate{
		id:   id,
		name: name,
		heap: heap.New(),
		ring: ring,
		zone: identity.NewRingZone(ring, policy),
	}
}

func (i *Isolate) ID() string { return i.id }

func (i *Isolate) Name() string { return i.name }

func (i *Isolate) Heap() *heap.Heap { return i.heap }

func (i *Isolate) Ring() *identity.Ring { return i.ring }

// Zone returns the isolate's active identity zone.
func (i *Isolate) Zone() *identity.RingZone { return i.zone }

func (i *Isolate) AddLibrary(lib Library) {
	i.libMu.Lock()
	i.libraries = append(i.libraries, lib)
	i.libMu.Unlock()
}

func (i *Isolate) Libraries() []Library {
	i.libMu.Lock()
	defer i.libMu.Unlock()
	out := make([]Library, len(i.libraries))
	copy(out, i.libraries)
	return out
}

func (i *Isolate) State() State {
	return State(i.state.Load())
}

func (i *Isolate) Live() bool {
	return i.State() == StateRunning
}

// Collect runs one collection pass at a safepoint. The ring's visit hook
// runs inside the pass, so id resolution never observes a half-forwarded
// table.
func (i *Isolate) Collect() heap.CollectStats {
	i.safepoint.Lock()
	defer i.safepoint.Unlock()
	return i.heap.Collect(i.ring.VisitForCollection)
}

// Run executes fn as mutator work: excluded from collection passes, so
// heap walks and id allocation never observe a half-forwarded table.
func (i *Isolate) Run(fn func()) {
	i.safepoint.Lock()
	defer i.safepoint.Unlock()
	fn()
}

// Collapse tears the isolate down. Requests racing with teardown lose:
// once collapsing, lookups fail and the dispatcher answers collected.
func (i *Isolate) Collapse() {
	if !i.state.CompareAndSwap(int32(StateRunning), int32(StateCollapsing)) {
		return
	}
	i.safepoint.Lock()
	i.state.Store(int32(StateCollapsed))
	i.safepoint.Unlock()
}
