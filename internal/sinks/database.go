package sinks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // driver registration

	"github.com/luthien-proxy/luthien/internal/txn"
)

// DatabaseSink persists each event as a row, for operators who need a
// queryable, durable event store beyond whatever retention the log
// shipper or pub/sub UI keeps.
type DatabaseSink struct {
	db *sql.DB
}

var _ Sink = (*DatabaseSink)(nil)

// OpenDatabaseSink opens (creating if absent) a SQLite database at path
// and ensures the events table exists. path may be ":memory:" for tests.
func OpenDatabaseSink(path string) (*DatabaseSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("database sink: opening %s: %w", path, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	trace_id TEXT,
	span_id TEXT,
	recorded_at DATETIME NOT NULL,
	fields TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_transaction_id ON events(transaction_id);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("database sink: creating schema: %w", err)
	}

	return &DatabaseSink{db: db}, nil
}

// Close releases the underlying database handle.
func (s *DatabaseSink) Close() error {
	return s.db.Close()
}

func (s *DatabaseSink) Name() string { return "database" }

func (s *DatabaseSink) Record(ctx context.Context, event txn.Event) error {
	fields, err := json.Marshal(event.Fields)
	if err != nil {
		return fmt.Errorf("database sink: marshaling fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (event_type, transaction_id, trace_id, span_id, recorded_at, fields)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.Type, string(event.TransactionID), event.TraceID, event.SpanID, event.Timestamp, string(fields),
	)
	if err != nil {
		return fmt.Errorf("database sink: inserting event: %w", err)
	}
	return nil
}
