// Package txn provides the per-call TransactionContext: identity, a
// policy-private scratchpad, and the record() entry point that fans
// events out to observability sinks.
package txn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// ID uniquely identifies one call through the pipeline, surfaced to logs
// and spans.
type ID string

// Event is a structured observability record. Fields carries
// event-specific data; Type is a dotted name such as
// "policy.content_blocked" or "transaction.streaming_response_recorded".
type Event struct {
	Type          string
	TransactionID ID
	TraceID       string
	SpanID        string
	Timestamp     time.Time
	Fields        map[string]any
}

// NewEvent builds an Event with the given type and fields; Context.Record
// enriches it with transaction/trace/span identity and a timestamp before
// routing it.
func NewEvent(eventType string, fields map[string]any) Event {
	return Event{Type: eventType, Fields: fields}
}

// Router fans an enriched Event out to zero or more sinks by event-type
// class. Implemented by sinks.Router; declared here to avoid an import
// cycle between txn and sinks.
type Router interface {
	Route(ctx context.Context, event Event)
}

// Context is the per-call envelope for one transaction. It is owned
// exclusively by the orchestrator for the lifetime of one call; hooks
// never run concurrently within a transaction, so the scratchpad needs no
// locking for that access pattern — the mutex below only protects against
// another goroutine (such as the gateway reading tool_calls_blocked for
// its metrics) reading it concurrently with a hook write.
type Context struct {
	ID      ID
	TraceID string
	SpanID  string

	router Router

	mu         sync.Mutex
	scratchpad map[string]any
}

// New creates a TransactionContext bound to router. If ctx carries an
// active span, its trace/span IDs are captured; otherwise a fresh
// transaction ID alone identifies the call.
func New(ctx context.Context, router Router) *Context {
	tc := &Context{
		ID:         ID(uuid.NewString()),
		router:     router,
		scratchpad: make(map[string]any),
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		tc.TraceID = sc.TraceID().String()
		tc.SpanID = sc.SpanID().String()
	}

	return tc
}

// Record enriches event with this transaction's identity and a timestamp,
// then routes it. Record is non-blocking from the caller's perspective —
// Router implementations must not perform sink I/O synchronously on this
// call.
func (c *Context) Record(ctx context.Context, event Event) {
	event.TransactionID = c.ID
	event.TraceID = c.TraceID
	event.SpanID = c.SpanID
	event.Timestamp = time.Now()
	c.router.Route(ctx, event)
}

// Get reads a scratchpad value. ok is false if the key was never set.
func (c *Context) Get(key string) (value any, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok = c.scratchpad[key]
	return value, ok
}

// Set writes a scratchpad value, overwriting any prior value for key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scratchpad[key] = value
}

// Increment adds delta to the integer stored at key (treating an absent or
// non-int value as zero) and returns the new total. Used by sample
// policies for per-transaction counters such as tool_calls_blocked.
func (c *Context) Increment(key string, delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, _ := c.scratchpad[key].(int)
	current += delta
	c.scratchpad[key] = current
	return current
}

// Snapshot returns a shallow copy of the scratchpad. Mutating the returned
// map does not affect the transaction's scratchpad.
func (c *Context) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.scratchpad))
	for k, v := range c.scratchpad {
		out[k] = v
	}
	return out
}
