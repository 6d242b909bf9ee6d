package service

import (
	"fmt"
	"strconv"

	"github.com/danmuck/isoctl/internal/heap"
	"github.com/danmuck/isoctl/internal/isolate"
	"github.com/danmuck/isoctl/internal/protocol"
)

// builtinFunc is one compiled-in handler. iso is nil at root scope.
type builtinFunc func(d *Dispatcher, iso *isolate.Isolate, req protocol.Request) (any, error)

// Built-in method tables. Builtins shadow embedder registrations of the
// same name within their scope; the two scopes never see each other's
// methods.
var (
	rootBuiltins = map[string]builtinFunc{
		"getVersion":   builtinGetVersion,
		"listIsolates": builtinListIsolates,
		"echo":         builtinRootEcho,
	}

	isolateBuiltins = map[string]builtinFunc{
		"getObject":    builtinGetObject,
		"getClassList": builtinGetClassList,
		"getLibraries": builtinGetLibraries,
		"prefetchIds":  builtinPrefetchIds,
		"releaseId":    builtinReleaseID,
		"echo":         builtinIsolateEcho,
	}
)

func builtinGetVersion(d *Dispatcher, _ *isolate.Isolate, _ protocol.Request) (any, error) {
	return map[string]string{
		"service":  "isoctl",
		"version":  d.version,
		"protocol": "1.0",
	}, nil
}

type isolateSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	HeapSize int    `json:"heapSize"`
	RingLive int    `json:"ringLive"`
}

func builtinListIsolates(d *Dispatcher, _ *isolate.Isolate, _ protocol.Request) (any, error) {
	isolates := d.isolates.List()
	out := make([]isolateSummary, 0, len(isolates))
	for _, iso := range isolates {
		out = append(out, isolateSummary{
			ID:       iso.ID(),
			Name:     iso.Name(),
			State:    iso.State().String(),
			HeapSize: iso.Heap().Size(),
			RingLive: iso.Ring().Live(),
		})
	}
	return map[string]any{"isolates": out}, nil
}

func builtinRootEcho(d *Dispatcher, _ *isolate.Isolate, req protocol.Request) (any, error) {
	text := req.Param("text")
	d.notifier.PublishEcho(nil, text)
	return map[string]string{"text": text}, nil
}

func builtinIsolateEcho(d *Dispatcher, iso *isolate.Isolate, req protocol.Request) (any, error) {
	text := req.Param("text")
	d.notifier.PublishEcho(iso, text)
	return map[string]string{"text": text}, nil
}

func builtinGetObject(_ *Dispatcher, iso *isolate.Isolate, req protocol.Request) (any, error) {
	id := req.Param("objectId")
	ref, err := iso.Zone().Resolve(id)
	if err != nil {
		return nil, err
	}
	return describeObjectAs(iso.Zone(), id, ref)
}

func builtinGetClassList(_ *Dispatcher, iso *isolate.Isolate, _ protocol.Request) (any, error) {
	return map[string]any{"classes": iso.Heap().Classes()}, nil
}

type librarySummary struct {
	Name  string            `json:"name"`
	Roots map[string]string `json:"roots"`
}

func builtinGetLibraries(_ *Dispatcher, iso *isolate.Isolate, _ protocol.Request) (any, error) {
	h := iso.Heap()
	libs := iso.Libraries()
	out := make([]librarySummary, 0, len(libs))
	for _, lib := range libs {
		summary := librarySummary{Name: lib.Name, Roots: make(map[string]string, len(lib.Roots))}
		for _, rootName := range lib.Roots {
			root, ok := h.Root(rootName)
			if !ok {
				continue
			}
			id, err := iso.Zone().GetID(root)
			if err != nil {
				return nil, err
			}
			summary.Roots[rootName] = id
		}
		out = append(out, summary)
	}
	return map[string]any{"libraries": out}, nil
}

const defaultPrefetchLimit = 16

// builtinPrefetchIds mints ids for a batch of objects reachable from one
// root, so a client can follow a structure without a resolve round trip
// per edge.
func builtinPrefetchIds(_ *Dispatcher, iso *isolate.Isolate, req protocol.Request) (any, error) {
	rootName := req.Param("root")
	root, ok := iso.Heap().Root(rootName)
	if !ok {
		return nil, fmt.Errorf("unknown root %q", rootName)
	}

	limit := defaultPrefetchLimit
	if raw := req.Param("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid limit %q", raw)
		}
		limit = parsed
	}

	seen := make(map[*heap.Object]struct{})
	ids := make(map[string]string)
	frontier := []struct {
		path string
		ref  *heap.Object
	}{{path: rootName, ref: root}}

	for len(frontier) > 0 && len(ids) < limit {
		next := frontier[0]
		frontier = frontier[1:]
		if _, ok := seen[next.ref]; ok {
			continue
		}
		seen[next.ref] = struct{}{}
		id, err := iso.Zone().GetID(next.ref)
		if err != nil {
			return nil, err
		}
		ids[next.path] = id
		for _, name := range next.ref.FieldNames() {
			target, ok := next.ref.Field(name)
			if !ok {
				continue
			}
			frontier = append(frontier, struct {
				path string
				ref  *heap.Object
			}{path: next.path + "." + name, ref: target})
		}
	}
	return map[string]any{"ids": ids}, nil
}

func builtinReleaseID(_ *Dispatcher, iso *isolate.Isolate, req protocol.Request) (any, error) {
	id := req.Param("objectId")
	iso.Ring().Release(id)
	return map[string]string{"released": id}, nil
}
