package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/isoctl/internal/heap"
)

var (
	ErrNotFound  = errors.New("identity: id not found")
	ErrInvalidID = errors.New("identity: invalid id")
	ErrNilRef    = errors.New("identity: nil object reference")
)

// Policy selects what Allocate does when the ring is full.
type Policy int

const (
	// RecycleOldest overwrites the least-recently-allocated slot. Ids
	// eventually invalidate; memory stays bounded.
	RecycleOldest Policy = iota
	// KeepUntilExpired pins slots until the client releases them. Used
	// while a debugger holds an id open across collections.
	KeepUntilExpired
)

func (p Policy) String() string {
	switch p {
	case RecycleOldest:
		return "recycle-oldest"
	case KeepUntilExpired:
		return "keep-until-expired"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(raw string) (Policy, error) {
	switch strings.TrimSpace(raw) {
	case "", "recycle-oldest":
		return RecycleOldest, nil
	case "keep-until-expired":
		return KeepUntilExpired, nil
	default:
		return RecycleOldest, fmt.Errorf("identity: unknown policy %q", raw)
	}
}

type slot struct {
	gen    uint64
	ref    *heap.Object
	pinned bool
}

// Ring is a fixed-capacity table of weak object mappings. Ids are strings
// of the form "<index>/<generation>"; the generation is monotonic per
// index, so a recycled slot never resolves to its previous occupant.
//
// Entries are weak: the ring is not a collector root. A collection pass
// forwards or clears every entry through VisitForCollection, which holds
// the ring lock for the whole pass so no Allocate/Resolve/Release can
// interleave with it.
type Ring struct {
	mu     sync.Mutex
	slots  []slot
	cursor int
}

const DefaultCapacity = 32

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{slots: make([]slot, capacity)}
}

// Allocate inserts a weak mapping for ref and returns a fresh id. It
// never fails: when the ring is full it evicts per policy. The same ref
// allocated twice yields two distinct ids; slot identity, not pointer
// equality, is object identity here.
func (r *Ring) Allocate(ref *heap.Object, policy Policy) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.cursor
	if policy == KeepUntilExpired {
		// Skip pinned live slots; if every slot is pinned the oldest
		// one is evicted anyway, since Allocate must not fail.
		for probed := 0; probed < len(r.slots); probed++ {
			candidate := (r.cursor + probed) % len(r.slots)
			if !r.slots[candidate].pinned || r.slots[candidate].ref == nil {
				idx = candidate
				break
			}
		}
	}

	s := &r.slots[idx]
	s.gen++
	s.ref = ref
	s.pinned = policy == KeepUntilExpired
	r.cursor = (idx + 1) % len(r.slots)
	return formatID(idx, s.gen)
}

// Resolve returns the current reference for id. ErrNotFound covers a
// generation mismatch and a slot cleared by the collector; ErrInvalidID
// covers a malformed id string. Both read as "collected" at the service
// boundary.
func (r *Ring) Resolve(id string) (*heap.Object, error) {
	idx, gen, err := parseID(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx >= len(r.slots) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s := r.slots[idx]
	if s.gen != gen || s.ref == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.ref, nil
}

// Release invalidates id early. Idempotent; ids that are malformed,
// stale, or already released are ignored.
func (r *Ring) Release(id string) {
	idx, gen, err := parseID(id)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx >= len(r.slots) {
		return
	}
	s := &r.slots[idx]
	if s.gen != gen {
		return
	}
	s.ref = nil
	s.pinned = false
}

// VisitForCollection is the collector's entry point. For every occupied
// slot, forward either supplies the post-collection handle or reports the
// referent reclaimed, in which case the slot is cleared (the generation
// stays, so the id now resolves as collected). The ring lock is held for
// the entire pass.
//
// A live slot forwarded to nil is a hosting-runtime bug, not bad input,
// and panics.
func (r *Ring) VisitForCollection(forward heap.ForwardFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		s := &r.slots[i]
		if s.ref == nil {
			continue
		}
		moved, live := forward(s.ref)
		if !live {
			s.ref = nil
			s.pinned = false
			continue
		}
		if moved == nil {
			panic(fmt.Sprintf("identity: slot %d forwarded live referent to nil", i))
		}
		s.ref = moved
	}
}

func (r *Ring) Capacity() int {
	return len(r.slots)
}

// Live reports how many slots currently hold a reference.
func (r *Ring) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := 0
	for i := range r.slots {
		if r.slots[i].ref != nil {
			live++
		}
	}
	return live
}

func formatID(idx int, gen uint64) string {
	return strconv.Itoa(idx) + "/" + strconv.FormatUint(gen, 10)
}

func parseID(id string) (int, uint64, error) {
	slash := strings.IndexByte(id, '/')
	if slash <= 0 || slash == len(id)-1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	idx, err := strconv.Atoi(id[:slash])
	if err != nil || idx < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	gen, err := strconv.ParseUint(id[slash+1:], 10, 64)
	if err != nil || gen == 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return idx, gen, nil
}
