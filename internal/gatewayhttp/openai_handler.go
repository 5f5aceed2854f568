package gatewayhttp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/luthien-proxy/luthien/internal/backend/openaicompat"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// handleChatCompletions handles POST /v1/chat/completions against
// OpenAI's wire format, branching on req.Stream to the SSE or
// single-JSON-body path. The request body is decoded directly into
// openaicompat.Request — there is no intermediate unified request type to
// convert through.
func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openaicompat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}

	tctx, done := g.newTransaction(r)
	defer done()

	if req.Stream {
		g.streamChatCompletions(w, r, &req, tctx)
		return
	}

	resp, err := g.OpenAI.ProcessFullResponse(r.Context(), &req, tctx)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) streamChatCompletions(w http.ResponseWriter, r *http.Request, req *openaicompat.Request, tctx *txn.Context) {
	chunks, err := g.OpenAI.ProcessStreamingResponse(r.Context(), req, tctx)
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

	for chunk := range chunks {
		payload, err := json.Marshal(chunk)
		if err != nil {
			slog.Error("gatewayhttp: marshal openai chunk", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
