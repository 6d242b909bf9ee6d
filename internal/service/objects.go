package service

import (
	"github.com/danmuck/isoctl/internal/heap"
	"github.com/danmuck/isoctl/internal/identity"
	"github.com/danmuck/isoctl/internal/isolate"
)

type objectSummary struct {
	ID     string            `json:"id"`
	Class  string            `json:"class"`
	Value  string            `json:"value,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// describeObject builds the introspection view of ref, minting a fresh id
// for it through zone.
func describeObject(zone identity.Zone, ref *heap.Object) (objectSummary, error) {
	id, err := zone.GetID(ref)
	if err != nil {
		return objectSummary{}, err
	}
	return describeObjectAs(zone, id, ref)
}

// describeObjectAs builds the view of ref keyed by an id the client
// already holds. Field targets get fresh ids so the client can follow
// edges without another round trip.
func describeObjectAs(zone identity.Zone, id string, ref *heap.Object) (objectSummary, error) {
	summary := objectSummary{
		ID:    id,
		Class: ref.Class(),
		Value: ref.Value(),
	}
	names := ref.FieldNames()
	if len(names) > 0 {
		summary.Fields = make(map[string]string, len(names))
		for _, name := range names {
			target, ok := ref.Field(name)
			if !ok {
				continue
			}
			targetID, err := zone.GetID(target)
			if err != nil {
				return objectSummary{}, err
			}
			summary.Fields[name] = targetID
		}
	}
	return summary, nil
}

type graphNode struct {
	Node  int            `json:"node"`
	Class string         `json:"class"`
	Value string         `json:"value,omitempty"`
	Refs  map[string]int `json:"refs,omitempty"`
}

type graphSnapshot struct {
	Roots map[string]int `json:"roots"`
	Nodes []graphNode    `json:"nodes"`
}

// snapshotGraph walks the isolate's heap from its roots. Nodes are keyed
// by snapshot-scoped indices rather than ring ids: a full graph dump
// would otherwise churn every slot out of the ring.
func snapshotGraph(iso *isolate.Isolate) graphSnapshot {
	snap := graphSnapshot{Roots: make(map[string]int)}
	index := make(map[*heap.Object]int)

	var visit func(ref *heap.Object) int
	visit = func(ref *heap.Object) int {
		if n, ok := index[ref]; ok {
			return n
		}
		n := len(snap.Nodes)
		index[ref] = n
		snap.Nodes = append(snap.Nodes, graphNode{
			Node:  n,
			Class: ref.Class(),
			Value: ref.Value(),
		})
		names := ref.FieldNames()
		if len(names) > 0 {
			refs := make(map[string]int, len(names))
			for _, name := range names {
				target, ok := ref.Field(name)
				if !ok {
					continue
				}
				refs[name] = visit(target)
			}
			snap.Nodes[n].Refs = refs
		}
		return n
	}

	h := iso.Heap()
	for _, name := range h.RootNames() {
		root, ok := h.Root(name)
		if !ok {
			continue
		}
		snap.Roots[name] = visit(root)
	}
	return snap
}
