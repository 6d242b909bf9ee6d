package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/isoctl/internal/identity"
	"github.com/danmuck/isoctl/internal/isolate"
	"github.com/danmuck/isoctl/internal/observability"
	"github.com/danmuck/isoctl/internal/protocol"
)

const (
	scopeRoot    = "root"
	scopeIsolate = "isolate"

	outcomeOK             = "ok"
	outcomeMethodNotFound = "method_not_found"
	outcomeCollected      = "collected"
	outcomeInvalidID      = "invalid_id"
	outcomeHandlerFailure = "handler_failure"
)

// Config carries dispatcher-level settings.
type Config struct {
	Version string
	// RootRingCapacity sizes the root zone's ring; zero means the
	// identity default.
	RootRingCapacity int
	RootPolicy       identity.Policy
}

// Dispatcher routes requests to built-in handlers first, then to the
// scope's embedder registry. Root and isolate namespaces are disjoint:
// both scopes keep their own builtin table and embedder registry, and the
// isolate-scope registry is shared by every isolate, as embedders
// register process-wide.
type Dispatcher struct {
	version  string
	isolates *isolate.Registry
	notifier *Notifier

	rootRegistry    *EmbedderRegistry
	isolateRegistry *EmbedderRegistry

	rootZone *identity.RingZone

	log zerolog.Logger
}

func NewDispatcher(cfg Config, isolates *isolate.Registry, notifier *Notifier, logger zerolog.Logger) *Dispatcher {
	rootRing := identity.NewRing(cfg.RootRingCapacity)
	return &Dispatcher{
		version:         cfg.Version,
		isolates:        isolates,
		notifier:        notifier,
		rootRegistry:    NewEmbedderRegistry(),
		isolateRegistry: NewEmbedderRegistry(),
		rootZone:        identity.NewRingZone(rootRing, cfg.RootPolicy),
		log:             logger,
	}
}

// RegisterRootCallback is the embedder seam for root-scope handlers.
func (d *Dispatcher) RegisterRootCallback(name string, fn Callback, userData any) {
	d.rootRegistry.Register(name, fn, userData)
}

// RegisterIsolateCallback is the embedder seam for isolate-scope handlers.
func (d *Dispatcher) RegisterIsolateCallback(name string, fn Callback, userData any) {
	d.isolateRegistry.Register(name, fn, userData)
}

// Notifier returns the event notifier this dispatcher publishes through.
func (d *Dispatcher) Notifier() *Notifier {
	return d.notifier
}

// RootZone returns the root scope's identity zone.
func (d *Dispatcher) RootZone() *identity.RingZone {
	return d.rootZone
}

// HandleRootRequest handles a request not directed at any isolate.
func (d *Dispatcher) HandleRootRequest(req protocol.Request) protocol.Response {
	if err := req.Validate(); err != nil {
		return protocol.ErrorResponse(req.ID, protocol.CodeInvalidRequest, err.Error())
	}
	return d.dispatch(scopeRoot, nil, req)
}

// HandleIsolateRequest handles a request directed at one isolate. A
// target that is unknown or tearing down answers collected; liveness is
// resolved once, and a loss to a concurrent teardown is an error
// response, never a fault.
func (d *Dispatcher) HandleIsolateRequest(isolateID string, req protocol.Request) protocol.Response {
	if err := req.Validate(); err != nil {
		return protocol.ErrorResponse(req.ID, protocol.CodeInvalidRequest, err.Error())
	}
	iso, ok := d.isolates.Lookup(isolateID)
	if !ok {
		observability.RecordServiceRequest(scopeIsolate, req.Method, outcomeCollected, 0)
		return protocol.ErrorResponse(req.ID, protocol.CodeContextUnreachable,
			fmt.Sprintf("isolate %q collected or unknown", isolateID))
	}
	resp := d.dispatch(scopeIsolate, iso, req)
	observability.SetRingLive(iso.ID(), iso.Ring().Live())
	return resp
}

func (d *Dispatcher) dispatch(scope string, iso *isolate.Isolate, req protocol.Request) protocol.Response {
	start := time.Now()
	resp, outcome := d.invoke(scope, iso, req)
	observability.RecordServiceRequest(scope, req.Method, outcome, time.Since(start))

	evt := d.log.Debug().
		Str("scope", scope).
		Str("method", req.Method).
		Str("outcome", outcome)
	if iso != nil {
		evt = evt.Str("isolate", iso.ID())
	}
	evt.Msg("request dispatched")
	return resp
}

// invoke resolves and runs one handler. The response is staged as a value
// and only returned whole, and a panicking handler is recovered here: the
// transport never sees a crash or a partial response.
func (d *Dispatcher) invoke(scope string, iso *isolate.Isolate, req protocol.Request) (resp protocol.Response, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("scope", scope).
				Str("method", req.Method).
				Any("panic", r).
				Msg("handler panicked")
			resp = protocol.ErrorResponse(req.ID, protocol.CodeHandlerFailure,
				fmt.Sprintf("handler %q failed: %v", req.Method, r))
			outcome = outcomeHandlerFailure
		}
	}()

	builtins, registry := rootBuiltins, d.rootRegistry
	if scope == scopeIsolate {
		builtins, registry = isolateBuiltins, d.isolateRegistry
	}

	if fn, ok := builtins[req.Method]; ok {
		var result any
		var err error
		if iso != nil {
			iso.Run(func() { result, err = fn(d, iso, req) })
		} else {
			result, err = fn(d, nil, req)
		}
		if err != nil {
			return d.errorResponse(req, err)
		}
		return protocol.ResultResponse(req.ID, result), outcomeOK
	}

	if entry, ok := registry.Find(req.Method); ok {
		params := req.Params
		if iso != nil {
			// Isolate-scope callbacks learn their target through the
			// reserved "isolate" param.
			params = make(map[string]string, len(req.Params)+1)
			for k, v := range req.Params {
				params[k] = v
			}
			params["isolate"] = iso.ID()
		}
		result, err := entry.fn(req.Method, params, entry.userData)
		if err != nil {
			return d.errorResponse(req, err)
		}
		return protocol.ResultResponse(req.ID, result), outcomeOK
	}

	return protocol.ErrorResponse(req.ID, protocol.CodeMethodNotFound,
		fmt.Sprintf("method %q not found", req.Method)), outcomeMethodNotFound
}

func (d *Dispatcher) errorResponse(req protocol.Request, err error) (protocol.Response, string) {
	switch {
	case errors.Is(err, identity.ErrInvalidID):
		return protocol.ErrorResponse(req.ID, protocol.CodeInvalidID, err.Error()), outcomeInvalidID
	case errors.Is(err, identity.ErrNotFound):
		// Generation mismatch and reclaimed referents both read as
		// collected to the client.
		return protocol.ErrorResponse(req.ID, protocol.CodeInvalidID,
			fmt.Sprintf("collected: %v", err)), outcomeCollected
	default:
		return protocol.ErrorResponse(req.ID, protocol.CodeHandlerFailure,
			fmt.Sprintf("handler %q failed: %v", req.Method, err)), outcomeHandlerFailure
	}
}
