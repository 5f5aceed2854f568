package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/luthien-proxy/luthien/internal/txn"
)

// PubsubSink publishes each event to a Redis channel for a live-updating
// admin UI to subscribe to. Publish is fire-and-forget: go-redis's Publish
// call itself is synchronous over the wire, but a failure here is just
// logged by the Router's error callback, never surfaced to the
// transaction (spec's sink-failure semantics apply uniformly).
type PubsubSink struct {
	client  *redis.Client
	channel string
}

var _ Sink = (*PubsubSink)(nil)

// NewPubsubSink builds a PubsubSink that publishes to channel over
// client. client is caller-owned — tests typically point it at a
// miniredis instance.
func NewPubsubSink(client *redis.Client, channel string) *PubsubSink {
	return &PubsubSink{client: client, channel: channel}
}

func (s *PubsubSink) Name() string { return "pubsub" }

func (s *PubsubSink) Record(ctx context.Context, event txn.Event) error {
	payload, err := json.Marshal(eventEnvelope{
		Type:          event.Type,
		TransactionID: string(event.TransactionID),
		TraceID:       event.TraceID,
		SpanID:        event.SpanID,
		Timestamp:     event.Timestamp.UnixMilli(),
		Fields:        event.Fields,
	})
	if err != nil {
		return fmt.Errorf("pubsub sink: marshaling event: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("pubsub sink: publishing to %s: %w", s.channel, err)
	}
	return nil
}

type eventEnvelope struct {
	Type          string         `json:"type"`
	TransactionID string         `json:"transaction_id"`
	TraceID       string         `json:"trace_id,omitempty"`
	SpanID        string         `json:"span_id,omitempty"`
	Timestamp     int64          `json:"timestamp_ms"`
	Fields        map[string]any `json:"fields,omitempty"`
}
