// Package streaming supplies the generic bidirectional queue plumbing:
// bounded channels, a keepalive watchdog, and a gather-equivalent join of
// a feeder and a drainer. It knows nothing about chunks, blocks, or
// policies — those live in internal/pipeline, which supplies the Feeder
// closure that drives the assembler and policy hooks.
package streaming

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config tunes the queue capacity and idle watchdog. Defaults are an
// O(30s) idle window and an O(100) chunk egress capacity.
type Config struct {
	IdleTimeout    time.Duration
	EgressCapacity int
}

// DefaultConfig returns the package's default tuning.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:    30 * time.Second,
		EgressCapacity: 100,
	}
}

// Sender is the façade a Feeder uses to push chunks to egress and to pet
// the watchdog during long-running policy work. It is the mechanism
// backing StreamingContext.Send in the policy package.
type Sender[C any] interface {
	// Send pushes chunk to egress, blocking if the bounded queue is full
	// (client backpressure) until ctx is cancelled. Every successful send
	// resets the idle watchdog.
	Send(ctx context.Context, chunk C) error

	// Keepalive resets the idle watchdog without sending a chunk, for
	// policy hooks doing long work between emissions.
	Keepalive()
}

// Feeder drives chunks into the pipeline and pushes results to egress via
// sender. It must return once its source is exhausted and any final
// (e.g. on_stream_complete) emissions are made — this is the "feed_complete"
// signal, realized here simply as the closure returning.
type Feeder[C any] func(ctx context.Context, sender Sender[C]) error

// Outcome reports how a Run terminated.
type Outcome struct {
	// Err is the Feeder's returned error, or an error from the drain loop
	// (e.g. client disconnect). Nil on clean completion.
	Err error
	// WatchdogFired is true if termination was triggered by the idle
	// watchdog rather than the Feeder finishing on its own.
	WatchdogFired bool
}

type egressSender[C any] struct {
	ch       chan<- C
	watchdog *Watchdog
}

func (s *egressSender[C]) Send(ctx context.Context, chunk C) error {
	select {
	case s.ch <- chunk:
		s.watchdog.Reset()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *egressSender[C]) Keepalive() {
	s.watchdog.Reset()
}

// Run starts feed concurrently with an internal drainer and returns the
// outgoing channel the caller should forward to the client, plus a channel
// that receives exactly one Outcome once everything has terminated and
// outgoing has been closed.
//
// Two-phase termination: the drainer never exits on a
// finish_reason chunk. It exits only once the egress channel is both
// closed (feed returned, including any on_stream_complete emissions) and
// drained of whatever was still buffered — guaranteeing a policy's tail
// emission from on_stream_complete always reaches the client before
// outgoing closes. A watchdog expiry cancels feed's context, so feed
// returns early; the drainer then flushes what's already in egress and
// exits the same way.
func Run[C any](ctx context.Context, cfg Config, feed Feeder[C]) (<-chan C, <-chan Outcome) {
	egress := make(chan C, cfg.EgressCapacity)
	outgoing := make(chan C, cfg.EgressCapacity)
	watchdog := NewWatchdog(cfg.IdleTimeout)
	sender := &egressSender[C]{ch: egress, watchdog: watchdog}

	group, gctx := errgroup.WithContext(ctx)
	feedCtx, cancelFeed := context.WithCancel(gctx)

	group.Go(func() error {
		defer close(egress)
		return feed(feedCtx, sender)
	})

	group.Go(func() error {
		defer cancelFeed()
		return drain(gctx, cancelFeed, watchdog, egress, outgoing)
	})

	outcome := make(chan Outcome, 1)
	go func() {
		err := group.Wait()
		cancelFeed()
		watchdog.Stop()
		close(outgoing)
		outcome <- Outcome{Err: err, WatchdogFired: watchdog.Fired()}
		close(outcome)
	}()

	return outgoing, outcome
}

// drain forwards egress to outgoing until egress closes (feed_complete,
// drained), or until the watchdog fires — at which point it cancels the
// feeder so a feed blocked on a live backend source unblocks promptly,
// then flushes whatever egress still holds, non-blocking, and returns.
func drain[C any](ctx context.Context, cancelFeed context.CancelFunc, watchdog *Watchdog, egress <-chan C, outgoing chan<- C) error {
	for {
		select {
		case chunk, ok := <-egress:
			if !ok {
				return nil
			}
			select {
			case outgoing <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-watchdog.Expired():
			cancelFeed()
			flushRemaining(egress, outgoing)
			return nil
		case <-ctx.Done():
			flushRemaining(egress, outgoing)
			return ctx.Err()
		}
	}
}

// flushRemaining drains whatever is already buffered in egress into
// outgoing without blocking on either side — best-effort, since a
// cancelled or watchdog-expired stream makes no delivery guarantee beyond
// what was already queued.
func flushRemaining[C any](egress <-chan C, outgoing chan<- C) {
	for {
		select {
		case chunk, ok := <-egress:
			if !ok {
				return
			}
			select {
			case outgoing <- chunk:
			default:
			}
		default:
			return
		}
	}
}
