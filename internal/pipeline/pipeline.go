// Package pipeline implements the Policy Orchestrator: the non-streaming
// request/response flow and the streaming feeder/drainer flow, generalized
// over one client-facing API's native request, chunk, and response types
// as a single parameterized pipeline rather than one copy per API.
package pipeline

import (
	"context"

	"github.com/luthien-proxy/luthien/internal/assembler"
	"github.com/luthien-proxy/luthien/internal/chunkmodel"
	"github.com/luthien-proxy/luthien/internal/policy"
	"github.com/luthien-proxy/luthien/internal/recorder"
	"github.com/luthien-proxy/luthien/internal/streaming"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// Pipeline wires one client-facing API's Backend, Policy, Interpreter, and
// Builder together. One instance is constructed per API (OpenAI-shaped,
// Anthropic-shaped) at startup and reused across transactions; it holds no
// per-call state.
type Pipeline[Req, Chunk, Resp any] struct {
	Backend Backend[Req, Chunk, Resp]
	Policy  policy.Policy[Req, Chunk, Resp]
	Interp  chunkmodel.Interpreter[Chunk]
	Builder chunkmodel.Builder[Chunk]

	// StreamConfig tunes the watchdog idle timeout and egress queue
	// capacity for the streaming path. A zero value (both fields zero)
	// falls back to streaming.DefaultConfig(); a partly set value is used
	// as is.
	StreamConfig streaming.Config
}

// ProcessRequest runs the request-only hook, for callers that need
// on_request applied without immediately issuing a backend call (e.g. a
// gateway that validates the transformed request before proceeding).
func (p *Pipeline[Req, Chunk, Resp]) ProcessRequest(ctx context.Context, req Req, tctx *txn.Context) (Req, error) {
	return p.Policy.OnRequest(ctx, req, tctx)
}

// ProcessFullResponse runs the non-streaming flow: apply on_request,
// record the request, call the backend, apply on_response, record the
// response, return it.
func (p *Pipeline[Req, Chunk, Resp]) ProcessFullResponse(ctx context.Context, req Req, tctx *txn.Context) (Resp, error) {
	var zero Resp
	rec := recorder.New[Chunk](tctx, p.Interp)

	finalReq, err := p.Policy.OnRequest(ctx, req, tctx)
	if err != nil {
		return zero, &PolicyError{Hook: "on_request", Cause: err}
	}
	rec.RecordRequest(ctx, req, finalReq)

	originalResp, err := p.Backend.Complete(ctx, finalReq)
	if err != nil {
		be := &BackendError{Cause: err}
		tctx.Record(ctx, txn.NewEvent("transaction.backend_error", map[string]any{
			"error": be.Error(),
		}))
		return zero, be
	}

	finalResp, err := p.Policy.OnResponse(ctx, originalResp, tctx)
	if err != nil {
		return zero, &PolicyError{Hook: "on_response", Cause: err}
	}
	rec.FinalizeNonStreaming(ctx, originalResp, finalResp)

	return finalResp, nil
}

// ProcessStreamingResponse runs the streaming flow: applies
// on_request, opens the backend stream, and spawns the generic streaming
// orchestrator with a Feeder that drives the assembler and dispatches
// policy hooks in order. The returned channel is the drainer's outgoing
// channel — closed exactly once, after any on_stream_complete tail has
// been flushed.
func (p *Pipeline[Req, Chunk, Resp]) ProcessStreamingResponse(ctx context.Context, req Req, tctx *txn.Context) (<-chan Chunk, error) {
	rec := recorder.New[Chunk](tctx, p.Interp)

	finalReq, err := p.Policy.OnRequest(ctx, req, tctx)
	if err != nil {
		return nil, &PolicyError{Hook: "on_request", Cause: err}
	}
	rec.RecordRequest(ctx, req, finalReq)

	source, err := p.Backend.Stream(ctx, finalReq)
	if err != nil {
		return nil, &BackendError{Cause: err}
	}

	cfg := p.StreamConfig
	if cfg.EgressCapacity == 0 && cfg.IdleTimeout == 0 {
		cfg = streaming.DefaultConfig()
	}

	outgoing, outcome := streaming.Run(ctx, cfg, p.feeder(tctx, rec, source))

	go func() {
		o := <-outcome
		rec.FinalizeStreaming(ctx)
		if o.Err != nil || o.WatchdogFired {
			tctx.Record(ctx, txn.NewEvent("transaction.stream_terminated", map[string]any{
				"error":          errString(o.Err),
				"watchdog_fired": o.WatchdogFired,
			}))
		}
	}()

	return outgoing, nil
}

// feeder builds the Feeder closure streaming.Run drives: it owns the
// assembler and StreamingContext for this call, pulls from source,
// records ingress, dispatches policy hooks, and finally runs
// on_stream_complete before returning — even when the source closed
// because of a backend error, on_stream_complete still runs so a policy
// can emit a tail.
func (p *Pipeline[Req, Chunk, Resp]) feeder(tctx *txn.Context, rec *recorder.Recorder[Chunk], source <-chan StreamItem[Chunk]) streaming.Feeder[Chunk] {
	return func(ctx context.Context, sender streaming.Sender[Chunk]) error {
		recording := &recordingSender[Chunk]{inner: sender, rec: rec}
		sctx := policy.NewStreamingContext[Chunk](tctx, recording, p.Builder)
		asm := assembler.New[Chunk](p.Interp)
		sctx.WireAssembler(asm)

		if err := p.Policy.OnStreamStart(ctx, tctx, sctx); err != nil {
			return p.surfaceHookError(ctx, sctx, "on_stream_start", err)
		}

		dispatch := p.dispatch(tctx, sctx)

	pump:
		for {
			select {
			case item, ok := <-source:
				if !ok {
					break pump
				}
				if item.Err != nil {
					be := &BackendError{Cause: item.Err}
					tctx.Record(ctx, txn.NewEvent("transaction.backend_error", map[string]any{
						"error": be.Error(),
					}))
					break pump
				}
				rec.AppendIngress(item.Chunk)
				if err := asm.Ingest(ctx, item.Chunk, dispatch); err != nil {
					return p.surfaceDispatchError(ctx, sctx, err)
				}
			case <-ctx.Done():
				break pump
			}
		}

		if err := p.Policy.OnStreamComplete(ctx, tctx, sctx); err != nil {
			return p.surfaceHookError(ctx, sctx, "on_stream_complete", err)
		}
		return nil
	}
}

// surfaceHookError wraps cause as a PolicyError for hook and pushes an
// error chunk to egress before returning it, so a hook failure is
// observable to the client rather than a silent stream close (spec.md
// §4.4, §7). The SendError call is best-effort: if output is already
// marked finished (e.g. the policy had already sent its own replacement),
// ErrOutputFinished is swallowed and the PolicyError still propagates.
func (p *Pipeline[Req, Chunk, Resp]) surfaceHookError(ctx context.Context, sctx *policy.StreamingContext[Chunk], hook string, cause error) error {
	pe := &PolicyError{Hook: hook, Cause: cause}
	_ = sctx.SendError(ctx, pe)
	return pe
}

// surfaceDispatchError pushes an error chunk to egress before returning
// err unmodified. err is already a *PolicyError built by dispatch (see
// dispatch below), wrapping whichever delta/complete/finish hook failed.
func (p *Pipeline[Req, Chunk, Resp]) surfaceDispatchError(ctx context.Context, sctx *policy.StreamingContext[Chunk], err error) error {
	_ = sctx.SendError(ctx, err)
	return err
}

// dispatch returns the assembler.Dispatch callback that fires policy hooks
// in a fixed order: delta hook(s) for this chunk, then the complete hook
// if a block closed on this tick, then the finish hook the first time
// finish_reason appears. Delta and complete hooks are chosen via a
// block-kind → hook lookup table rather than a type switch, so a future
// block kind registers by adding a table entry instead of editing this
// function.
func (p *Pipeline[Req, Chunk, Resp]) dispatch(tctx *txn.Context, sctx *policy.StreamingContext[Chunk]) assembler.Dispatch[Chunk] {
	deltaHooks := map[chunkmodel.BlockKind]func(ctx context.Context, d chunkmodel.Delta, chunk Chunk, block *chunkmodel.StreamBlock) error{
		chunkmodel.ContentBlock: func(ctx context.Context, d chunkmodel.Delta, _ Chunk, block *chunkmodel.StreamBlock) error {
			return p.Policy.OnContentDelta(ctx, d.ContentFragment, block, tctx, sctx)
		},
		chunkmodel.ToolCallBlock: func(ctx context.Context, _ chunkmodel.Delta, chunk Chunk, block *chunkmodel.StreamBlock) error {
			return p.Policy.OnToolCallDelta(ctx, chunk, block, tctx, sctx)
		},
	}
	completeHooks := map[chunkmodel.BlockKind]func(ctx context.Context, block *chunkmodel.StreamBlock) error{
		chunkmodel.ContentBlock: func(ctx context.Context, block *chunkmodel.StreamBlock) error {
			return p.Policy.OnContentComplete(ctx, block, tctx, sctx)
		},
		chunkmodel.ToolCallBlock: func(ctx context.Context, block *chunkmodel.StreamBlock) error {
			return p.Policy.OnToolCallComplete(ctx, block, tctx, sctx)
		},
	}

	finishFired := false

	return func(ctx context.Context, chunk Chunk, deltas []chunkmodel.Delta, state *chunkmodel.StreamState[Chunk]) error {
		for _, d := range deltas {
			block := state.BlockByIndex(d.BlockIndex)
			if block == nil {
				continue
			}
			hook, ok := deltaHooks[d.Kind]
			if !ok {
				continue
			}
			if err := hook(ctx, d, chunk, block); err != nil {
				return &PolicyError{Hook: "on_" + d.Kind.String() + "_delta", Cause: err}
			}
		}

		if state.JustCompleted != nil {
			if hook, ok := completeHooks[state.JustCompleted.Kind]; ok {
				if err := hook(ctx, state.JustCompleted); err != nil {
					return &PolicyError{Hook: "on_" + state.JustCompleted.Kind.String() + "_complete", Cause: err}
				}
			}
		}

		if !finishFired && state.FinishReason != nil {
			finishFired = true
			if err := p.Policy.OnFinishReason(ctx, *state.FinishReason, tctx, sctx); err != nil {
				return &PolicyError{Hook: "on_finish_reason", Cause: err}
			}
		}

		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
