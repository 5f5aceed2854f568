// Package gatewayhttp is the thin chi-based HTTP adapter in front of the
// pipeline: it decodes a client-facing request, builds a
// txn.Context, drives the matching Pipeline, and frames the
// response back out — as a single JSON body for the non-streaming path or
// as an SSE stream for the streaming path. All interception semantics
// live in internal/pipeline and internal/policy; this package never
// inspects content or tool calls itself.
package gatewayhttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luthien-proxy/luthien/internal/backend/anthropiccompat"
	"github.com/luthien-proxy/luthien/internal/backend/openaicompat"
	"github.com/luthien-proxy/luthien/internal/metrics"
	"github.com/luthien-proxy/luthien/internal/pipeline"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// Gateway holds the HTTP router and the per-API pipelines it dispatches
// to. One Gateway serves both the OpenAI-compatible and
// Anthropic-compatible surfaces; each request is routed to its pipeline
// purely by path, with no cross-talk between the two.
type Gateway struct {
	router chi.Router

	OpenAI    *pipeline.Pipeline[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]
	Anthropic *pipeline.Pipeline[*anthropiccompat.Request, *anthropiccompat.StreamEvent, *anthropiccompat.Response]

	Router  txn.Router
	Metrics *metrics.Registry
}

// New builds a Gateway and wires its routes. A nil OpenAI or Anthropic
// pipeline disables that surface's route (a 404 instead of a panic).
func New(openAI *pipeline.Pipeline[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response], anthropic *pipeline.Pipeline[*anthropiccompat.Request, *anthropiccompat.StreamEvent, *anthropiccompat.Response], router txn.Router, reg *metrics.Registry) *Gateway {
	g := &Gateway{OpenAI: openAI, Anthropic: anthropic, Router: router, Metrics: reg}
	g.routes()
	return g
}

func (g *Gateway) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	if g.OpenAI != nil {
		r.Post("/v1/chat/completions", g.handleChatCompletions)
	}
	if g.Anthropic != nil {
		r.Post("/v1/messages", g.handleMessages)
	}

	g.router = r
}

// ServeHTTP makes Gateway an http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// newTransaction builds a txn.Context for one inbound call and wraps
// TransactionStarted/Ended around its lifetime via the returned func,
// which callers must defer immediately. On return, the func also adds the
// transaction's tool_calls_blocked scratchpad count to ToolCallsBlocked.
func (g *Gateway) newTransaction(r *http.Request) (*txn.Context, func()) {
	tctx := txn.New(r.Context(), g.Router)
	if g.Metrics != nil {
		g.Metrics.TransactionStarted()
	}
	return tctx, func() {
		if g.Metrics != nil {
			if v, ok := tctx.Get("tool_calls_blocked"); ok {
				if n, ok := v.(int); ok && n > 0 {
					g.Metrics.ToolCallsBlocked.Add(float64(n))
				}
			}
			g.Metrics.TransactionEnded()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
