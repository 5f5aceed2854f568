package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-proxy/luthien/internal/txn"
)

func newMiniredisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPubsubSinkPublishesEnvelope(t *testing.T) {
	client := newMiniredisClient(t)
	defer client.Close()

	sink := NewPubsubSink(client, "luthien-events")
	assert.Equal(t, "pubsub", sink.Name())

	sub := client.Subscribe(context.Background(), "luthien-events")
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	done := make(chan *redis.Message, 1)
	go func() {
		msg, err := sub.ReceiveMessage(context.Background())
		if err == nil {
			done <- msg
		}
	}()

	require.NoError(t, sink.Record(context.Background(), txn.Event{
		Type:          "transaction.request_recorded",
		TransactionID: "txn-9",
		Timestamp:     time.Now(),
		Fields:        map[string]any{"model": "gpt-4"},
	}))

	select {
	case msg := <-done:
		assert.Contains(t, msg.Payload, "transaction.request_recorded")
		assert.Contains(t, msg.Payload, "txn-9")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestPubsubSinkErrorsOnClosedClient(t *testing.T) {
	client := newMiniredisClient(t)
	require.NoError(t, client.Close())

	sink := NewPubsubSink(client, "luthien-events")
	err := sink.Record(context.Background(), txn.Event{Type: "x", TransactionID: "1", Timestamp: time.Now()})
	assert.Error(t, err)
}
