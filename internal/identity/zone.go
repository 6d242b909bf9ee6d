package identity

import (
	"sync"

	"github.com/danmuck/isoctl/internal/heap"
)

// Zone is a scoped authority for minting and resolving object ids. Ids
// are zone-scoped, never global: the same object can carry different ids
// in different zones.
type Zone interface {
	GetID(ref *heap.Object) (string, error)
	Resolve(id string) (*heap.Object, error)
}

// RingZone is the production Zone, backed by a Ring plus a per-zone
// allocation policy. Several zones may share one ring.
type RingZone struct {
	mu     sync.Mutex
	ring   *Ring
	policy Policy
}

func NewRingZone(ring *Ring, policy Policy) *RingZone {
	return &RingZone{ring: ring, policy: policy}
}

func (z *RingZone) GetID(ref *heap.Object) (string, error) {
	if ref == nil {
		return "", ErrNilRef
	}
	z.mu.Lock()
	policy := z.policy
	z.mu.Unlock()
	return z.ring.Allocate(ref, policy), nil
}

func (z *RingZone) Resolve(id string) (*heap.Object, error) {
	return z.ring.Resolve(id)
}

// Release forwards an explicit early invalidation to the backing ring.
func (z *RingZone) Release(id string) {
	z.ring.Release(id)
}

func (z *RingZone) Ring() *Ring {
	return z.ring
}

func (z *RingZone) Policy() Policy {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.policy
}

// SetPolicy reconfigures the zone for subsequent allocations; ids already
// minted keep their original retention.
func (z *RingZone) SetPolicy(p Policy) {
	z.mu.Lock()
	z.policy = p
	z.mu.Unlock()
}
