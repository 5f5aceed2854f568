// Package sinks implements the closed set of observability destinations
// a TransactionContext can route events to — stdout, database, pubsub,
// and span — plus the Router that fans a single event out to whichever
// sinks its event-type class is configured for.
package sinks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/luthien-proxy/luthien/internal/txn"
)

// Sink is one observability destination. Implementations must not block
// the caller on real sink I/O for longer than best-effort allows; a sink
// failure is logged and dropped, never propagated to the transaction.
type Sink interface {
	// Name identifies this sink in the routing table and in failure logs.
	Name() string

	// Record handles one enriched event. Router never inspects a returned
	// error beyond passing it to the OnSinkError callback.
	Record(ctx context.Context, event txn.Event) error
}

// sinkQueueCapacity bounds how many not-yet-recorded events a single
// sink's worker will buffer before Route starts dropping for that sink.
const sinkQueueCapacity = 256

// errSinkQueueFull is reported through OnSinkError when a sink's worker
// can't keep up and its queue is full; the event is dropped for that
// sink only, same as any other sink-local failure.
var errSinkQueueFull = errors.New("sink queue full, event dropped")

// queuedEvent pairs an event with the context it was recorded under —
// detached from the caller's cancellation (see Route) but still carrying
// values such as the active trace span SpanSink needs.
type queuedEvent struct {
	ctx   context.Context
	event txn.Event
}

// sinkWorker owns one sink's queue and the single goroutine that drains
// it, so delivery to that sink happens strictly in the order Route
// enqueued it.
type sinkWorker struct {
	sink  Sink
	queue chan queuedEvent
}

// Router fans an event out to the sinks configured for its event-type
// class, falling back to Default for classes with no specific entry. It
// implements txn.Router. Each sink runs its own background worker so
// Route itself never awaits sink I/O.
type Router struct {
	workers map[string]*sinkWorker
	routes  map[string][]string // event-type-class -> sink names
	Default []string            // sink names used for unrecognized classes

	mu            sync.Mutex
	onSinkError   func(sinkName string, event txn.Event, err error)
	observeFanout func(start time.Time)

	wg sync.WaitGroup
}

var _ txn.Router = (*Router)(nil)

// NewRouter builds a Router over the given sinks (keyed by Sink.Name()),
// an explicit event-type-class -> sink-name routing table, and a default
// sink list for classes absent from the table. One background worker is
// started per sink.
func NewRouter(sinkList []Sink, routes map[string][]string, defaultSinks []string) *Router {
	r := &Router{
		workers: make(map[string]*sinkWorker, len(sinkList)),
		routes:  routes,
		Default: defaultSinks,
	}
	for _, s := range sinkList {
		w := &sinkWorker{sink: s, queue: make(chan queuedEvent, sinkQueueCapacity)}
		r.workers[s.Name()] = w
		r.wg.Add(1)
		go r.runWorker(w)
	}
	return r
}

// OnSinkError installs a callback invoked whenever a sink's Record
// returns an error, or a sink's queue is full, for tests and for wiring
// into metrics. It replaces any previously installed callback.
func (r *Router) OnSinkError(fn func(sinkName string, event txn.Event, err error)) {
	r.mu.Lock()
	r.onSinkError = fn
	r.mu.Unlock()
}

// ObserveFanout installs a callback invoked once per Route call with the
// call's start time, for wiring into metrics.Registry.ObserveFanout.
func (r *Router) ObserveFanout(fn func(start time.Time)) {
	r.mu.Lock()
	r.observeFanout = fn
	r.mu.Unlock()
}

// Route enqueues event onto every sink configured for event.Type's class,
// or Default if none is configured, and returns without waiting for any
// sink's Record to run. Event-type classes are matched by exact dotted-
// name prefix up to the first dot (e.g. "policy" for
// "policy.content_blocked", "transaction" for
// "transaction.streaming_response_recorded").
//
// Route is fire-and-forget and non-blocking from the caller's
// perspective: the event is handed to each matched sink's own worker
// goroutine, which performs the actual (possibly slow) Record call. A
// slow or failing sink never blocks or fails the others, and Route
// itself never returns an error. The context handed to each worker is
// detached from ctx's cancellation (context.WithoutCancel) so a sink's
// I/O isn't aborted just because the request that triggered it has
// already finished, while values such as the active trace span still
// propagate through for SpanSink.
func (r *Router) Route(ctx context.Context, event txn.Event) {
	start := time.Now()
	r.mu.Lock()
	observe := r.observeFanout
	r.mu.Unlock()
	if observe != nil {
		defer observe(start)
	}

	names, ok := r.routes[eventClass(event.Type)]
	if !ok {
		names = r.Default
	}

	qe := queuedEvent{ctx: context.WithoutCancel(ctx), event: event}
	for _, name := range names {
		w, ok := r.workers[name]
		if !ok {
			continue
		}
		select {
		case w.queue <- qe:
		default:
			r.reportError(name, event, errSinkQueueFull)
		}
	}
}

// runWorker drains w.queue until Close shuts it down, calling Record for
// each event in arrival order.
func (r *Router) runWorker(w *sinkWorker) {
	defer r.wg.Done()
	for qe := range w.queue {
		if err := w.sink.Record(qe.ctx, qe.event); err != nil {
			r.reportError(w.sink.Name(), qe.event, err)
		}
	}
}

func (r *Router) reportError(sinkName string, event txn.Event, err error) {
	r.mu.Lock()
	fn := r.onSinkError
	r.mu.Unlock()
	if fn != nil {
		fn(sinkName, event, err)
	}
}

// Close closes every sink's queue, lets each worker drain whatever it
// still has queued, and waits for every worker to exit. Route must not be
// called after Close (it would send on a closed queue). Tests use this to
// observe a Router's fan-out deterministically rather than polling.
func (r *Router) Close() {
	for _, w := range r.workers {
		close(w.queue)
	}
	r.wg.Wait()
}

func eventClass(eventType string) string {
	for i, c := range eventType {
		if c == '.' {
			return eventType[:i]
		}
	}
	return eventType
}
