package streaming

import (
	"sync"
	"time"
)

// Watchdog is the idle-timeout guard: it expires if Reset isn't called
// within the configured idle window, signalling the
// orchestrator to cancel the feeder and flush whatever the drainer still
// holds. Reset is called by the egress sender on every forwarded chunk and
// by policies doing long work (an LLM judge call) via Keepalive.
type Watchdog struct {
	idle time.Duration

	mu    sync.Mutex
	timer *time.Timer

	expired     chan struct{}
	expiredOnce sync.Once
}

// NewWatchdog starts a watchdog that expires after idle unless reset.
func NewWatchdog(idle time.Duration) *Watchdog {
	w := &Watchdog{idle: idle, expired: make(chan struct{})}
	w.timer = time.AfterFunc(idle, w.fire)
	return w
}

func (w *Watchdog) fire() {
	w.expiredOnce.Do(func() { close(w.expired) })
}

// Reset restarts the idle window. Safe to call after expiry — it's a
// no-op in that case since fire is idempotent.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
	w.timer.Reset(w.idle)
}

// Expired returns a channel that's closed the moment the watchdog fires.
func (w *Watchdog) Expired() <-chan struct{} {
	return w.expired
}

// Fired reports whether the watchdog has already expired.
func (w *Watchdog) Fired() bool {
	select {
	case <-w.expired:
		return true
	default:
		return false
	}
}

// Stop releases the underlying timer. Call once the stream has terminated
// normally, so a watchdog that never expired doesn't leak its timer.
func (w *Watchdog) Stop() {
	w.timer.Stop()
}
