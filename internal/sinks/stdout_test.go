package sinks

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-proxy/luthien/internal/txn"
)

func TestStdoutSinkRecordsStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := NewStdoutSink(logger)

	assert.Equal(t, "stdout", sink.Name())

	err := sink.Record(context.Background(), txn.Event{
		Type:          "transaction.request_recorded",
		TransactionID: "txn-1",
		Fields:        map[string]any{"model": "gpt-4"},
	})
	require.NoError(t, err)

	line := buf.String()
	assert.Contains(t, line, "transaction.request_recorded")
	assert.Contains(t, line, "txn-1")
	assert.Contains(t, line, "gpt-4")
}
