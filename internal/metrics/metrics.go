// Package metrics exposes Prometheus counters and histograms for pipeline
// health: sink failures, record() fan-out latency, and active
// transactions. Unlike a package of promauto globals, Registry is
// constructed once in cmd/luthien and passed explicitly to the sink
// router's OnSinkError/ObserveFanout callbacks and to gatewayhttp.New —
// no ambient package-level
// state, so multiple Registry instances (e.g. one per test) never
// collide on Prometheus's default registerer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric this module exposes, registered against a
// single prometheus.Registerer supplied at construction.
type Registry struct {
	SinkFailures       *prometheus.CounterVec
	RecordFanoutSecs   prometheus.Histogram
	ActiveTransactions prometheus.Gauge
	ToolCallsBlocked   prometheus.Counter
}

// NewRegistry constructs and registers every metric against reg. Passing
// prometheus.NewRegistry() isolates metrics per test; passing
// prometheus.DefaultRegisterer wires into the process-wide /metrics
// endpoint.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := prometheus.WrapRegistererWith(prometheus.Labels{}, reg)

	r := &Registry{
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "luthien_sink_failures_total",
			Help: "Total number of observability sink record() failures, by sink name.",
		}, []string{"sink"}),
		RecordFanoutSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "luthien_record_fanout_seconds",
			Help: "Wall-clock time for one Context.Record call to enqueue onto its configured sinks' workers.",
		}),
		ActiveTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "luthien_active_transactions",
			Help: "Number of transactions currently in flight.",
		}),
		ToolCallsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "luthien_tool_calls_blocked_total",
			Help: "Total number of tool calls blocked by a policy across all transactions.",
		}),
	}

	factory.MustRegister(r.SinkFailures, r.RecordFanoutSecs, r.ActiveTransactions, r.ToolCallsBlocked)
	return r
}

// ObserveFanout records how long a Record call's sink fan-out took.
func (r *Registry) ObserveFanout(start time.Time) {
	r.RecordFanoutSecs.Observe(time.Since(start).Seconds())
}

// TransactionStarted increments ActiveTransactions; pair with
// TransactionEnded.
func (r *Registry) TransactionStarted() { r.ActiveTransactions.Inc() }

// TransactionEnded decrements ActiveTransactions.
func (r *Registry) TransactionEnded() { r.ActiveTransactions.Dec() }
