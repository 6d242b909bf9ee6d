package service

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/isoctl/internal/identity"
	"github.com/danmuck/isoctl/internal/isolate"
	"github.com/danmuck/isoctl/internal/protocol"
	"github.com/danmuck/isoctl/internal/testutil/testlog"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *isolate.Isolate) {
	t.Helper()
	reg := isolate.NewRegistry()
	iso := isolate.New("iso-test", "tester", 8, identity.RecycleOldest)

	h := iso.Heap()
	cfg := h.Alloc("Config", "root config")
	name := h.Alloc("String", "demo")
	if err := h.SetField(cfg, "name", name); err != nil {
		t.Fatalf("set field: %v", err)
	}
	if err := h.SetRoot("main.config", cfg); err != nil {
		t.Fatalf("set root: %v", err)
	}
	iso.AddLibrary(isolate.Library{Name: "core", Roots: []string{"main.config"}})

	if err := reg.Register(iso); err != nil {
		t.Fatalf("register: %v", err)
	}
	notifier := NewNotifier(DefaultQueueDepth)
	d := NewDispatcher(Config{Version: "test"}, reg, notifier, zerolog.Nop())
	return d, iso
}

func decodeResult(t *testing.T, resp protocol.Response, out any) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("error response: %v", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestRootBuiltins(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	resp := d.HandleRootRequest(protocol.Request{Method: "getVersion", ID: json.RawMessage(`1`)})
	var version map[string]string
	decodeResult(t, resp, &version)
	if version["version"] != "test" {
		t.Fatalf("version = %+v", version)
	}
	if string(resp.ID) != "1" {
		t.Fatalf("id = %s", resp.ID)
	}

	resp = d.HandleRootRequest(protocol.Request{Method: "listIsolates"})
	var list struct {
		Isolates []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"isolates"`
	}
	decodeResult(t, resp, &list)
	if len(list.Isolates) != 1 || list.Isolates[0].ID != "iso-test" {
		t.Fatalf("isolates = %+v", list.Isolates)
	}
	if list.Isolates[0].State != "running" {
		t.Fatalf("state = %q", list.Isolates[0].State)
	}
}

func TestMethodNotFound(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	resp := d.HandleRootRequest(protocol.Request{Method: "noSuchMethod"})
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("response = %+v", resp)
	}
}

func TestScopesAreDisjoint(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	// Isolate builtins are invisible at root scope and vice versa.
	resp := d.HandleRootRequest(protocol.Request{Method: "getClassList"})
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("root saw isolate builtin: %+v", resp)
	}
	resp = d.HandleIsolateRequest("iso-test", protocol.Request{Method: "listIsolates"})
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("isolate saw root builtin: %+v", resp)
	}

	d.RegisterRootCallback("scoped", func(_ string, _ map[string]string, _ any) (any, error) {
		return "root-only", nil
	}, nil)
	resp = d.HandleIsolateRequest("iso-test", protocol.Request{Method: "scoped"})
	if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("isolate scope saw root registration: %+v", resp)
	}
}

func TestUnknownIsolateReadsCollected(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	resp := d.HandleIsolateRequest("iso-missing", protocol.Request{Method: "echo"})
	if resp.Error == nil || resp.Error.Code != protocol.CodeContextUnreachable {
		t.Fatalf("response = %+v", resp)
	}
}

func TestCollapsedIsolateReadsCollected(t *testing.T) {
	testlog.Start(t)
	d, iso := newTestDispatcher(t)

	iso.Collapse()
	resp := d.HandleIsolateRequest("iso-test", protocol.Request{Method: "echo"})
	if resp.Error == nil || resp.Error.Code != protocol.CodeContextUnreachable {
		t.Fatalf("response = %+v", resp)
	}
}

func TestGetObjectRoundTrip(t *testing.T) {
	testlog.Start(t)
	d, iso := newTestDispatcher(t)

	cfg, _ := iso.Heap().Root("main.config")
	var id string
	var err error
	iso.Run(func() { id, err = iso.Zone().GetID(cfg) })
	if err != nil {
		t.Fatalf("get id: %v", err)
	}

	resp := d.HandleIsolateRequest("iso-test", protocol.Request{
		Method: "getObject",
		Params: map[string]string{"objectId": id},
	})
	var summary struct {
		ID     string            `json:"id"`
		Class  string            `json:"class"`
		Fields map[string]string `json:"fields"`
	}
	decodeResult(t, resp, &summary)
	if summary.ID != id || summary.Class != "Config" {
		t.Fatalf("summary = %+v", summary)
	}
	fieldID, ok := summary.Fields["name"]
	if !ok {
		t.Fatalf("field id missing: %+v", summary)
	}

	// Field targets come back with resolvable ids of their own.
	resp = d.HandleIsolateRequest("iso-test", protocol.Request{
		Method: "getObject",
		Params: map[string]string{"objectId": fieldID},
	})
	var field struct {
		Class string `json:"class"`
		Value string `json:"value"`
	}
	decodeResult(t, resp, &field)
	if field.Class != "String" || field.Value != "demo" {
		t.Fatalf("field = %+v", field)
	}
}

func TestGetObjectInvalidID(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	resp := d.HandleIsolateRequest("iso-test", protocol.Request{
		Method: "getObject",
		Params: map[string]string{"objectId": "not-an-id"},
	})
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidID {
		t.Fatalf("response = %+v", resp)
	}
}

func TestGetObjectReleasedReadsCollected(t *testing.T) {
	testlog.Start(t)
	d, iso := newTestDispatcher(t)

	cfg, _ := iso.Heap().Root("main.config")
	var id string
	iso.Run(func() { id, _ = iso.Zone().GetID(cfg) })
	iso.Run(func() { iso.Ring().Release(id) })

	resp := d.HandleIsolateRequest("iso-test", protocol.Request{
		Method: "getObject",
		Params: map[string]string{"objectId": id},
	})
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidID {
		t.Fatalf("response = %+v", resp)
	}
	if !strings.Contains(resp.Error.Message, "collected") {
		t.Fatalf("message = %q", resp.Error.Message)
	}
}

func TestReleaseIDBuiltin(t *testing.T) {
	testlog.Start(t)
	d, iso := newTestDispatcher(t)

	cfg, _ := iso.Heap().Root("main.config")
	var id string
	iso.Run(func() { id, _ = iso.Zone().GetID(cfg) })

	resp := d.HandleIsolateRequest("iso-test", protocol.Request{
		Method: "releaseId",
		Params: map[string]string{"objectId": id},
	})
	var released map[string]string
	decodeResult(t, resp, &released)
	if released["released"] != id {
		t.Fatalf("released = %+v", released)
	}
	// Releasing again, or releasing garbage, still succeeds.
	for _, target := range []string{id, "junk"} {
		resp = d.HandleIsolateRequest("iso-test", protocol.Request{
			Method: "releaseId",
			Params: map[string]string{"objectId": target},
		})
		if resp.Error != nil {
			t.Fatalf("release %q: %v", target, resp.Error)
		}
	}
}

func TestPrefetchIds(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	resp := d.HandleIsolateRequest("iso-test", protocol.Request{
		Method: "prefetchIds",
		Params: map[string]string{"root": "main.config", "limit": "4"},
	})
	var out struct {
		Ids map[string]string `json:"ids"`
	}
	decodeResult(t, resp, &out)
	if len(out.Ids) != 2 {
		t.Fatalf("ids = %+v", out.Ids)
	}
	if _, ok := out.Ids["main.config"]; !ok {
		t.Fatalf("root path missing: %+v", out.Ids)
	}
	if _, ok := out.Ids["main.config.name"]; !ok {
		t.Fatalf("field path missing: %+v", out.Ids)
	}

	resp = d.HandleIsolateRequest("iso-test", protocol.Request{
		Method: "prefetchIds",
		Params: map[string]string{"root": "no.such.root"},
	})
	if resp.Error == nil || resp.Error.Code != protocol.CodeHandlerFailure {
		t.Fatalf("unknown root: %+v", resp)
	}
}

func TestGetLibraries(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	resp := d.HandleIsolateRequest("iso-test", protocol.Request{Method: "getLibraries"})
	var out struct {
		Libraries []struct {
			Name  string            `json:"name"`
			Roots map[string]string `json:"roots"`
		} `json:"libraries"`
	}
	decodeResult(t, resp, &out)
	if len(out.Libraries) != 1 || out.Libraries[0].Name != "core" {
		t.Fatalf("libraries = %+v", out.Libraries)
	}
	if _, ok := out.Libraries[0].Roots["main.config"]; !ok {
		t.Fatalf("root id missing: %+v", out.Libraries[0])
	}
}

func TestEmbedderCallbackReceivesIsolateParam(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	d.RegisterIsolateCallback("embedder.probe", func(method string, params map[string]string, userData any) (any, error) {
		return map[string]string{
			"method":  method,
			"isolate": params["isolate"],
			"extra":   params["extra"],
			"user":    userData.(string),
		}, nil
	}, "opaque")

	resp := d.HandleIsolateRequest("iso-test", protocol.Request{
		Method: "embedder.probe",
		Params: map[string]string{"extra": "x"},
	})
	var out map[string]string
	decodeResult(t, resp, &out)
	if out["isolate"] != "iso-test" || out["user"] != "opaque" || out["extra"] != "x" {
		t.Fatalf("out = %+v", out)
	}
}

func TestBuiltinsShadowEmbedderRegistrations(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	d.RegisterRootCallback("getVersion", func(_ string, _ map[string]string, _ any) (any, error) {
		return map[string]string{"version": "shadowed"}, nil
	}, nil)
	resp := d.HandleRootRequest(protocol.Request{Method: "getVersion"})
	var version map[string]string
	decodeResult(t, resp, &version)
	if version["version"] != "test" {
		t.Fatalf("builtin did not win: %+v", version)
	}
}

func TestPanickingHandlerAnswersErrorResponse(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	d.RegisterRootCallback("explode", func(_ string, _ map[string]string, _ any) (any, error) {
		panic("boom")
	}, nil)
	resp := d.HandleRootRequest(protocol.Request{Method: "explode", ID: json.RawMessage(`9`)})
	if resp.Error == nil || resp.Error.Code != protocol.CodeHandlerFailure {
		t.Fatalf("response = %+v", resp)
	}
	if string(resp.ID) != "9" {
		t.Fatalf("id = %s", resp.ID)
	}

	// The dispatcher survives and keeps answering.
	resp = d.HandleRootRequest(protocol.Request{Method: "getVersion"})
	if resp.Error != nil {
		t.Fatalf("dispatch after panic: %v", resp.Error)
	}
}

func TestInvalidRequestRejected(t *testing.T) {
	testlog.Start(t)
	d, _ := newTestDispatcher(t)

	resp := d.HandleRootRequest(protocol.Request{})
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
		t.Fatalf("response = %+v", resp)
	}
	resp = d.HandleIsolateRequest("iso-test", protocol.Request{})
	if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
		t.Fatalf("response = %+v", resp)
	}
}
