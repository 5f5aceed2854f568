// Package recorder implements the Transaction Recorder: it buffers the
// ingress (original, as received from the backend) and egress (final, as
// sent to the client) chunk sequences of a streaming call, reconstructs
// full responses from them, and emits request/response events through the
// transaction's observability router.
//
// Reconstruction folds chunkmodel.Delta values rather than raw
// provider-native chunks, so the same folding code serves every
// client-facing API's Pipeline instance instead of being duplicated per
// wire format.
package recorder

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"github.com/luthien-proxy/luthien/internal/chunkmodel"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// ToolCall summarizes one reconstructed tool-call block.
type ToolCall struct {
	ToolCallID string
	Name       string
	Arguments  string
}

// Reconstructed is the provider-agnostic shape a chunk sequence folds into:
// enough to record what was actually said, without needing the native
// Resp type the chunks belong to.
type Reconstructed struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// Recorder buffers one streaming transaction's ingress/egress chunks and
// folds them into Reconstructed values at finalization. One Recorder is
// created per call by the orchestrator; it is not reused across calls.
type Recorder[Chunk any] struct {
	tctx   *txn.Context
	interp chunkmodel.Interpreter[Chunk]

	mu      sync.Mutex
	ingress []Chunk
	egress  []Chunk

	ingressCount atomic.Int64
	egressCount  atomic.Int64
}

// New constructs a Recorder bound to tctx, using interp to fold chunks
// into Reconstructed values at finalization.
func New[Chunk any](tctx *txn.Context, interp chunkmodel.Interpreter[Chunk]) *Recorder[Chunk] {
	return &Recorder[Chunk]{tctx: tctx, interp: interp}
}

// AppendIngress records one chunk received from the backend, in arrival
// order. Called by the feeder for every chunk, before dispatch.
func (r *Recorder[Chunk]) AppendIngress(chunk Chunk) {
	r.mu.Lock()
	r.ingress = append(r.ingress, chunk)
	r.mu.Unlock()
	r.ingressCount.Inc()
}

// AppendEgress records one chunk sent to the client, in send order. Called
// by the egress sender decorator for every successful send.
func (r *Recorder[Chunk]) AppendEgress(chunk Chunk) {
	r.mu.Lock()
	r.egress = append(r.egress, chunk)
	r.mu.Unlock()
	r.egressCount.Inc()
}

// RecordRequest emits a request_recorded event carrying the original
// (pre-policy) and final (post-on_request) request values.
func (r *Recorder[Chunk]) RecordRequest(ctx context.Context, original, final any) {
	r.tctx.Record(ctx, txn.NewEvent("transaction.request_recorded", map[string]any{
		"original_request": original,
		"final_request":    final,
	}))
}

// FinalizeNonStreaming emits a non_streaming_response_recorded event
// directly, without folding — there is no chunk sequence for a
// non-streaming call.
func (r *Recorder[Chunk]) FinalizeNonStreaming(ctx context.Context, original, final any) {
	r.tctx.Record(ctx, txn.NewEvent("transaction.non_streaming_response_recorded", map[string]any{
		"original_response": original,
		"final_response":    final,
	}))
}

// FinalizeStreaming folds the buffered ingress and egress chunk sequences
// into two Reconstructed values and emits a single
// streaming_response_recorded event carrying both, independent of whether
// the policy modified the stream in flight.
func (r *Recorder[Chunk]) FinalizeStreaming(ctx context.Context) {
	r.mu.Lock()
	ingress := r.ingress
	egress := r.egress
	r.mu.Unlock()

	r.tctx.Record(ctx, txn.NewEvent("transaction.streaming_response_recorded", map[string]any{
		"original_response": r.fold(ingress),
		"final_response":    r.fold(egress),
		"ingress_count":     r.ingressCount.Load(),
		"egress_count":      r.egressCount.Load(),
	}))
}

// fold replays a chunk sequence through the Interpreter and accumulates it
// into a Reconstructed value, the same logic the Assembler uses to build
// StreamState but collapsed into a single flat result.
func (r *Recorder[Chunk]) fold(chunks []Chunk) Reconstructed {
	var (
		out     Reconstructed
		content strings.Builder
		calls   []*ToolCall
		byIndex = make(map[int]*ToolCall)
	)

	for _, chunk := range chunks {
		for _, d := range r.interp.Deltas(chunk) {
			switch d.Kind {
			case chunkmodel.ContentBlock:
				content.WriteString(d.ContentFragment)
			case chunkmodel.ToolCallBlock:
				call, ok := byIndex[d.BlockIndex]
				if !ok {
					call = &ToolCall{}
					byIndex[d.BlockIndex] = call
					calls = append(calls, call)
				}
				if d.ToolCallID != "" {
					call.ToolCallID = d.ToolCallID
				}
				call.Name += d.ToolNameFragment
				call.Arguments += d.ToolArgFragment
			}
		}
		if reason, ok := r.interp.FinishReason(chunk); ok {
			out.FinishReason = reason
		}
	}

	out.Content = content.String()
	for _, c := range calls {
		out.ToolCalls = append(out.ToolCalls, *c)
	}
	return out
}
