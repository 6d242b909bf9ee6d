package service

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/isoctl/internal/heap"
	"github.com/danmuck/isoctl/internal/isolate"
	"github.com/danmuck/isoctl/internal/observability"
	"github.com/danmuck/isoctl/internal/protocol"
)

// RootScope is the Notifier scope key for process-global events.
const RootScope = ""

const DefaultQueueDepth = 64

// EventSink receives serialized events for one attached observer. Send
// errors detach the sink.
type EventSink interface {
	Send(ev protocol.Event) error
}

// Notifier fans events out to whichever scopes have observers attached.
// Delivery is fire-and-forget: per-sink queues preserve publish order per
// scope, a full queue drops the event, and nothing is ever retried.
type Notifier struct {
	mu    sync.RWMutex
	sinks map[string][]*sinkWorker
	depth int

	// payloadsBuilt counts payload constructions, so tests can verify
	// the quiet path does no work.
	payloadsBuilt atomic.Uint64
}

func NewNotifier(queueDepth int) *Notifier {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Notifier{
		sinks: make(map[string][]*sinkWorker),
		depth: queueDepth,
	}
}

// Attach subscribes sink to one scope (RootScope or an isolate id) and
// returns its detach func. Detach is idempotent.
func (n *Notifier) Attach(scope string, sink EventSink) func() {
	w := newSinkWorker(sink, n.depth)
	n.mu.Lock()
	n.sinks[scope] = append(n.sinks[scope], w)
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			workers := n.sinks[scope]
			for i, candidate := range workers {
				if candidate == w {
					n.sinks[scope] = append(workers[:i], workers[i+1:]...)
					break
				}
			}
			if len(n.sinks[scope]) == 0 {
				delete(n.sinks, scope)
			}
			n.mu.Unlock()
			w.close()
		})
	}
}

// NeedsEvents reports whether anyone is observing scope. Publishers check
// this before constructing any payload.
func (n *Notifier) NeedsEvents(scope string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.sinks[scope]) > 0
}

// PayloadsBuilt reports how many event payloads were ever constructed.
func (n *Notifier) PayloadsBuilt() uint64 {
	return n.payloadsBuilt.Load()
}

// PublishEcho streams a text echo event. A nil isolate targets root scope.
func (n *Notifier) PublishEcho(iso *isolate.Isolate, text string) {
	scope := RootScope
	if iso != nil {
		scope = iso.ID()
	}
	if !n.NeedsEvents(scope) {
		observability.RecordServiceEvent(protocol.EventEcho, false)
		return
	}
	n.payloadsBuilt.Add(1)
	n.publish(scope, protocol.EventEcho, map[string]string{"text": text})
}

// PublishInspect streams an object-inspect event. The payload names the
// inspectee through the isolate's active zone, so the same object can
// carry different ids in different streams.
func (n *Notifier) PublishInspect(iso *isolate.Isolate, ref *heap.Object) {
	if iso == nil || ref == nil {
		return
	}
	scope := iso.ID()
	if !n.NeedsEvents(scope) {
		observability.RecordServiceEvent(protocol.EventInspect, false)
		return
	}
	n.payloadsBuilt.Add(1)
	var summary objectSummary
	var err error
	iso.Run(func() { summary, err = describeObject(iso.Zone(), ref) })
	if err != nil {
		log.Warn().Err(err).Str("isolate", scope).Msg("inspect event dropped")
		return
	}
	n.publish(scope, protocol.EventInspect, summary)
}

// PublishGraph streams a heap graph snapshot for iso.
func (n *Notifier) PublishGraph(iso *isolate.Isolate) {
	if iso == nil {
		return
	}
	scope := iso.ID()
	if !n.NeedsEvents(scope) {
		observability.RecordServiceEvent(protocol.EventGraph, false)
		return
	}
	n.payloadsBuilt.Add(1)
	var snap graphSnapshot
	iso.Run(func() { snap = snapshotGraph(iso) })
	n.publish(scope, protocol.EventGraph, snap)
}

func (n *Notifier) publish(scope, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("event payload not serializable")
		return
	}
	ev := protocol.Event{Event: kind, Isolate: scope, Data: data}

	n.mu.RLock()
	workers := make([]*sinkWorker, len(n.sinks[scope]))
	copy(workers, n.sinks[scope])
	n.mu.RUnlock()

	for _, w := range workers {
		w.enqueue(ev)
	}
	observability.RecordServiceEvent(kind, true)
}

// sinkWorker serializes delivery to one sink. Events queue in publish
// order; the worker goroutine drains them so a slow observer never blocks
// the publishing isolate.
type sinkWorker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *queue.Queue
	depth   int
	closed  bool
	sink    EventSink
}

func newSinkWorker(sink EventSink, depth int) *sinkWorker {
	w := &sinkWorker{
		pending: queue.New(),
		depth:   depth,
		sink:    sink,
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

func (w *sinkWorker) enqueue(ev protocol.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.pending.Length() >= w.depth {
		// Fire-and-forget: a slow observer loses events, it does not
		// build backlog.
		log.Debug().Str("kind", ev.Event).Msg("event dropped, sink backlog full")
		return
	}
	w.pending.Add(ev)
	w.cond.Signal()
}

func (w *sinkWorker) close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Signal()
	w.mu.Unlock()
}

func (w *sinkWorker) run() {
	for {
		w.mu.Lock()
		for w.pending.Length() == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.pending.Length() == 0 && w.closed {
			w.mu.Unlock()
			return
		}
		ev := w.pending.Remove().(protocol.Event)
		w.mu.Unlock()

		if err := w.sink.Send(ev); err != nil {
			log.Debug().Err(err).Str("kind", ev.Event).Msg("event sink failed, closing")
			w.close()
			return
		}
	}
}
