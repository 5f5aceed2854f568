// Package telemetry wires the process-wide otel TracerProvider that
// internal/sinks' span sink and internal/txn's trace/span ID capture
// both depend on. Nothing in this module starts a span, so those two
// only see one when a caller's context already carries it.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// slogExporter logs each finished span as a structured line, standing in
// for a real OTLP collector in environments that don't run one.
type slogExporter struct {
	logger *slog.Logger
}

func (e slogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		e.logger.Info("span",
			"name", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()),
		)
	}
	return nil
}

func (slogExporter) Shutdown(context.Context) error { return nil }

// NewTracerProvider builds and installs a process-wide TracerProvider
// backed by slogExporter, returning a shutdown func callers should defer.
func NewTracerProvider() (shutdown func(context.Context) error) {
	exporter := slogExporter{logger: slog.Default().With("component", "telemetry")}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
