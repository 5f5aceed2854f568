package sinks

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/luthien-proxy/luthien/internal/txn"
)

// SpanSink attaches each event as an event on the active trace span
// (trace.SpanFromContext), using best-effort set semantics: if ctx
// carries no active span, the call is a no-op rather than an error.
type SpanSink struct{}

var _ Sink = (*SpanSink)(nil)

// NewSpanSink builds a SpanSink. It carries no state of its own — the
// span to attach to always comes from ctx.
func NewSpanSink() *SpanSink { return &SpanSink{} }

func (s *SpanSink) Name() string { return "span" }

func (s *SpanSink) Record(ctx context.Context, event txn.Event) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, len(event.Fields)+1)
	attrs = append(attrs, attribute.String("transaction_id", string(event.TransactionID)))
	for k, v := range event.Fields {
		attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	span.AddEvent(event.Type, trace.WithAttributes(attrs...))
	return nil
}
