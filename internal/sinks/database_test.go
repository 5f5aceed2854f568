package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-proxy/luthien/internal/txn"
)

func TestDatabaseSinkRecordsAndPersists(t *testing.T) {
	sink, err := OpenDatabaseSink(":memory:")
	require.NoError(t, err)
	defer sink.Close()

	assert.Equal(t, "database", sink.Name())

	event := txn.Event{
		Type:          "transaction.request_recorded",
		TransactionID: "txn-42",
		TraceID:       "trace-1",
		SpanID:        "span-1",
		Timestamp:     time.Now(),
		Fields:        map[string]any{"model": "claude-3"},
	}
	require.NoError(t, sink.Record(context.Background(), event))

	var count int
	row := sink.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM events WHERE transaction_id = ?", "txn-42")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)

	var eventType, fields string
	row = sink.db.QueryRowContext(context.Background(), "SELECT event_type, fields FROM events WHERE transaction_id = ?", "txn-42")
	require.NoError(t, row.Scan(&eventType, &fields))
	assert.Equal(t, "transaction.request_recorded", eventType)
	assert.Contains(t, fields, "claude-3")
}

func TestDatabaseSinkRecordsEachEventAsRow(t *testing.T) {
	sink, err := OpenDatabaseSink(":memory:")
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Record(context.Background(), txn.Event{Type: "a.b", TransactionID: "1", Timestamp: time.Now()}))
	require.NoError(t, sink.Record(context.Background(), txn.Event{Type: "a.c", TransactionID: "2", Timestamp: time.Now()}))

	var count int
	row := sink.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM events")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 2, count)
}
