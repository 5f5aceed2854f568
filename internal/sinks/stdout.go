package sinks

import (
	"context"
	"log/slog"

	"github.com/luthien-proxy/luthien/internal/txn"
)

// StdoutSink writes one structured JSON line per event via slog, for
// consumption by a log shipper (e.g. Loki). It never returns an error:
// slog's JSON handler does its own best-effort write and swallowing a
// broken stdout is exactly the "log shippers degrade gracefully"
// behavior this sink wants.
type StdoutSink struct {
	logger *slog.Logger
}

var _ Sink = (*StdoutSink)(nil)

// NewStdoutSink builds a StdoutSink backed by logger. Callers typically
// pass a logger scoped with .With("component", "sinks.stdout").
func NewStdoutSink(logger *slog.Logger) *StdoutSink {
	return &StdoutSink{logger: logger}
}

func (s *StdoutSink) Name() string { return "stdout" }

func (s *StdoutSink) Record(_ context.Context, event txn.Event) error {
	s.logger.Info(event.Type,
		"transaction_id", string(event.TransactionID),
		"trace_id", event.TraceID,
		"span_id", event.SpanID,
		"timestamp", event.Timestamp,
		"fields", event.Fields,
	)
	return nil
}
