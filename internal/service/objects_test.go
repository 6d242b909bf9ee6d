package service

import (
	"errors"
	"testing"

	"github.com/danmuck/isoctl/internal/heap"
	"github.com/danmuck/isoctl/internal/identity"
	"github.com/danmuck/isoctl/internal/testutil/testlog"
)

// failZone satisfies identity.Zone and always fails, for resolver-failure
// paths.
type failZone struct{}

var errZoneDown = errors.New("zone down")

func (failZone) GetID(_ *heap.Object) (string, error) { return "", errZoneDown }

func (failZone) Resolve(_ string) (*heap.Object, error) { return nil, errZoneDown }

func TestDescribeObjectZoneFailure(t *testing.T) {
	testlog.Start(t)
	h := heap.New()
	obj := h.Alloc("String", "x")

	if _, err := describeObject(failZone{}, obj); !errors.Is(err, errZoneDown) {
		t.Fatalf("err = %v", err)
	}
}

func TestDescribeObjectAsFieldIDFailure(t *testing.T) {
	testlog.Start(t)
	h := heap.New()
	obj := h.Alloc("Config", "cfg")
	child := h.Alloc("Int", "1")
	if err := h.SetField(obj, "n", child); err != nil {
		t.Fatalf("set field: %v", err)
	}

	// The self id is already minted; minting field ids still goes through
	// the zone and its failure surfaces.
	if _, err := describeObjectAs(failZone{}, "0/1", obj); !errors.Is(err, errZoneDown) {
		t.Fatalf("err = %v", err)
	}
}

func TestDescribeObjectMintsResolvableIds(t *testing.T) {
	testlog.Start(t)
	h := heap.New()
	obj := h.Alloc("Config", "cfg")
	child := h.Alloc("Int", "1")
	if err := h.SetField(obj, "n", child); err != nil {
		t.Fatalf("set field: %v", err)
	}
	zone := identity.NewRingZone(identity.NewRing(8), identity.RecycleOldest)

	summary, err := describeObject(zone, obj)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if got, err := zone.Resolve(summary.ID); err != nil || got != obj {
		t.Fatalf("self id resolve = %v, %v", got, err)
	}
	if got, err := zone.Resolve(summary.Fields["n"]); err != nil || got != child {
		t.Fatalf("field id resolve = %v, %v", got, err)
	}
}
