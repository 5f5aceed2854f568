package gatewayhttp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/luthien-proxy/luthien/internal/backend/anthropiccompat"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// handleMessages handles POST /v1/messages against Anthropic's wire
// format. Unlike OpenAI's uniform "data: {...}" framing, Anthropic names
// each SSE event after the StreamEvent's own Type field, so the frame's
// "event:" line is derived from the chunk rather than fixed.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req anthropiccompat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}

	tctx, done := g.newTransaction(r)
	defer done()

	if req.Stream {
		g.streamMessages(w, r, &req, tctx)
		return
	}

	resp, err := g.Anthropic.ProcessFullResponse(r.Context(), &req, tctx)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) streamMessages(w http.ResponseWriter, r *http.Request, req *anthropiccompat.Request, tctx *txn.Context) {
	events, err := g.Anthropic.ProcessStreamingResponse(r.Context(), req, tctx)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			slog.Error("gatewayhttp: marshal anthropic event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
			return
		}
		flusher.Flush()
	}
}
