package sinks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-proxy/luthien/internal/txn"
)

type fakeSink struct {
	name    string
	recorded []txn.Event
	err     error
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Record(_ context.Context, event txn.Event) error {
	f.recorded = append(f.recorded, event)
	return f.err
}

func TestRouterRoutesByEventClass(t *testing.T) {
	policySink := &fakeSink{name: "policy-only"}
	txnSink := &fakeSink{name: "txn-only"}
	router := NewRouter(
		[]Sink{policySink, txnSink},
		map[string][]string{
			"policy":      {"policy-only"},
			"transaction": {"txn-only"},
		},
		nil,
	)

	router.Route(context.Background(), txn.Event{Type: "policy.content_blocked"})
	router.Route(context.Background(), txn.Event{Type: "transaction.request_recorded"})
	router.Close()

	require.Len(t, policySink.recorded, 1)
	assert.Equal(t, "policy.content_blocked", policySink.recorded[0].Type)
	require.Len(t, txnSink.recorded, 1)
	assert.Equal(t, "transaction.request_recorded", txnSink.recorded[0].Type)
}

func TestRouterFallsBackToDefault(t *testing.T) {
	stdoutSink := &fakeSink{name: "stdout"}
	router := NewRouter([]Sink{stdoutSink}, map[string][]string{"policy": {"stdout"}}, []string{"stdout"})

	router.Route(context.Background(), txn.Event{Type: "unclassed.something"})
	router.Close()

	require.Len(t, stdoutSink.recorded, 1)
}

func TestRouterUnknownSinkNameIsIgnored(t *testing.T) {
	router := NewRouter(nil, map[string][]string{"policy": {"does-not-exist"}}, nil)
	assert.NotPanics(t, func() {
		router.Route(context.Background(), txn.Event{Type: "policy.x"})
	})
}

func TestRouterOnSinkErrorCallback(t *testing.T) {
	boom := errors.New("write failed")
	failing := &fakeSink{name: "failing", err: boom}
	router := NewRouter([]Sink{failing}, nil, []string{"failing"})

	var gotName string
	var gotErr error
	router.OnSinkError(func(sinkName string, _ txn.Event, err error) {
		gotName = sinkName
		gotErr = err
	})

	router.Route(context.Background(), txn.Event{Type: "anything"})
	router.Close()

	assert.Equal(t, "failing", gotName)
	assert.ErrorIs(t, gotErr, boom)
}

func TestRouterOneFailingSinkDoesNotBlockOthers(t *testing.T) {
	failing := &fakeSink{name: "failing", err: errors.New("boom")}
	ok := &fakeSink{name: "ok"}
	router := NewRouter([]Sink{failing, ok}, nil, []string{"failing", "ok"})

	router.Route(context.Background(), txn.Event{Type: "anything"})
	router.Close()

	assert.Len(t, failing.recorded, 1)
	assert.Len(t, ok.recorded, 1)
}

func TestRouterObserveFanoutCallback(t *testing.T) {
	router := NewRouter(nil, nil, nil)

	var observed time.Time
	router.ObserveFanout(func(start time.Time) { observed = start })

	router.Route(context.Background(), txn.Event{Type: "x"})

	assert.False(t, observed.IsZero())
}

// blockingSink never returns from Record until released, standing in for
// a slow DB insert or pubsub publish.
type blockingSink struct {
	name    string
	release chan struct{}
}

func (b *blockingSink) Name() string { return b.name }

func (b *blockingSink) Record(_ context.Context, _ txn.Event) error {
	<-b.release
	return nil
}

func TestRouterRouteDoesNotBlockOnSlowSink(t *testing.T) {
	slow := &blockingSink{name: "slow", release: make(chan struct{})}
	router := NewRouter([]Sink{slow}, nil, []string{"slow"})

	routed := make(chan struct{})
	go func() {
		router.Route(context.Background(), txn.Event{Type: "anything"})
		close(routed)
	}()

	select {
	case <-routed:
	case <-time.After(time.Second):
		t.Fatal("Route blocked waiting on a slow sink's Record call")
	}

	close(slow.release)
	router.Close()
}

func TestRouterPreservesPerSinkOrder(t *testing.T) {
	sink := &fakeSink{name: "ordered"}
	router := NewRouter([]Sink{sink}, nil, []string{"ordered"})

	for i := 0; i < 20; i++ {
		router.Route(context.Background(), txn.Event{Type: "x", TransactionID: txn.ID(string(rune('a' + i)))})
	}
	router.Close()

	require.Len(t, sink.recorded, 20)
	for i, event := range sink.recorded {
		assert.Equal(t, txn.ID(string(rune('a'+i))), event.TransactionID)
	}
}

func TestRouterQueueFullReportsError(t *testing.T) {
	slow := &blockingSink{name: "slow", release: make(chan struct{})}
	router := NewRouter([]Sink{slow}, nil, []string{"slow"})

	var mu sync.Mutex
	var errs []error
	router.OnSinkError(func(_ string, _ txn.Event, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	for i := 0; i < sinkQueueCapacity+10; i++ {
		router.Route(context.Background(), txn.Event{Type: "anything"})
	}

	close(slow.release)
	router.Close()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], errSinkQueueFull)
}
