package sinks

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-proxy/luthien/internal/txn"
)

func TestSpanSinkNoopWithoutActiveSpan(t *testing.T) {
	sink := NewSpanSink()
	assert.Equal(t, "span", sink.Name())

	err := sink.Record(context.Background(), txn.Event{Type: "policy.x", TransactionID: "txn-1"})
	assert.NoError(t, err)
}

func TestSpanSinkAddsEventToActiveSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("sinks-test")

	ctx, span := tracer.Start(context.Background(), "test-span")

	sink := NewSpanSink()
	err := sink.Record(ctx, txn.Event{
		Type:          "policy.content_blocked",
		TransactionID: "txn-7",
		Fields:        map[string]any{"reason": "pii"},
	})
	require.NoError(t, err)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)

	events := ended[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "policy.content_blocked", events[0].Name)

	attrs := make(map[string]string, len(events[0].Attributes))
	for _, kv := range events[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "txn-7", attrs["transaction_id"])
	assert.Equal(t, "pii", attrs["reason"])
}
