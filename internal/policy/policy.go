// Package policy defines the hook surface a policy author implements
// and provides BasePolicy/SimplePolicy, the two layers
// sample policies build on.
package policy

import (
	"context"

	"github.com/luthien-proxy/luthien/internal/chunkmodel"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// Policy is the hook surface invoked by the orchestrator while handling
// one transaction. Req, Chunk, and Resp are the native request, chunk, and
// response types of the client-facing API this policy serves — one policy
// serves one API. Implementations are stateless singletons;
// all per-call state lives in Context.scratchpad.
type Policy[Req, Chunk, Resp any] interface {
	// OnRequest runs once, before the backend call. Returning req
	// unmodified is a no-op pass-through.
	OnRequest(ctx context.Context, req Req, tctx *txn.Context) (Req, error)

	// OnResponse runs once, non-streaming only, after the backend returns.
	OnResponse(ctx context.Context, resp Resp, tctx *txn.Context) (Resp, error)

	// OnStreamStart runs once, before the first chunk is dispatched.
	OnStreamStart(ctx context.Context, tctx *txn.Context, sctx *StreamingContext[Chunk]) error

	// OnContentDelta runs for every content chunk. block reflects the
	// block's accumulated state as of (and including) this delta.
	OnContentDelta(ctx context.Context, delta string, block *chunkmodel.StreamBlock, tctx *txn.Context, sctx *StreamingContext[Chunk]) error

	// OnContentComplete runs when a content block closes.
	OnContentComplete(ctx context.Context, block *chunkmodel.StreamBlock, tctx *txn.Context, sctx *StreamingContext[Chunk]) error

	// OnToolCallDelta runs for every tool-call delta. chunk is the raw
	// provider chunk that carried this delta, for policies that need
	// wire-level detail beyond the accumulated block.
	OnToolCallDelta(ctx context.Context, chunk Chunk, block *chunkmodel.StreamBlock, tctx *txn.Context, sctx *StreamingContext[Chunk]) error

	// OnToolCallComplete runs when a tool-call block closes.
	OnToolCallComplete(ctx context.Context, block *chunkmodel.StreamBlock, tctx *txn.Context, sctx *StreamingContext[Chunk]) error

	// OnFinishReason runs when the finish reason is first seen.
	OnFinishReason(ctx context.Context, reason string, tctx *txn.Context, sctx *StreamingContext[Chunk]) error

	// OnStreamComplete always runs after the source closes, before the
	// recorder finalizes — even if the backend never sent a finish
	// reason. Emissions made here (via sctx.Send*) are guaranteed to
	// reach the client before the outgoing channel closes.
	OnStreamComplete(ctx context.Context, tctx *txn.Context, sctx *StreamingContext[Chunk]) error
}

// BasePolicy implements every hook with the default behavior from the
// default hook table. Sample policies embed it and override only the
// hooks they care about.
type BasePolicy[Req, Chunk, Resp any] struct {
	// Builder constructs the forward-as-is content chunk for the default
	// OnContentDelta behavior ("forward delta as a text chunk to egress").
	Builder chunkmodel.Builder[Chunk]
}

var _ Policy[struct{}, struct{}, struct{}] = (*BasePolicy[struct{}, struct{}, struct{}])(nil)

func (BasePolicy[Req, Chunk, Resp]) OnRequest(_ context.Context, req Req, _ *txn.Context) (Req, error) {
	return req, nil
}

func (BasePolicy[Req, Chunk, Resp]) OnResponse(_ context.Context, resp Resp, _ *txn.Context) (Resp, error) {
	return resp, nil
}

func (BasePolicy[Req, Chunk, Resp]) OnStreamStart(context.Context, *txn.Context, *StreamingContext[Chunk]) error {
	return nil
}

func (b BasePolicy[Req, Chunk, Resp]) OnContentDelta(ctx context.Context, delta string, _ *chunkmodel.StreamBlock, _ *txn.Context, sctx *StreamingContext[Chunk]) error {
	if delta == "" {
		return nil
	}
	return sctx.Send(ctx, b.Builder.TextChunk(delta, false))
}

func (BasePolicy[Req, Chunk, Resp]) OnContentComplete(context.Context, *chunkmodel.StreamBlock, *txn.Context, *StreamingContext[Chunk]) error {
	return nil
}

func (b BasePolicy[Req, Chunk, Resp]) OnToolCallDelta(ctx context.Context, chunk Chunk, _ *chunkmodel.StreamBlock, _ *txn.Context, sctx *StreamingContext[Chunk]) error {
	return sctx.Send(ctx, chunk)
}

func (BasePolicy[Req, Chunk, Resp]) OnToolCallComplete(context.Context, *chunkmodel.StreamBlock, *txn.Context, *StreamingContext[Chunk]) error {
	return nil
}

func (b BasePolicy[Req, Chunk, Resp]) OnFinishReason(ctx context.Context, _ string, _ *txn.Context, sctx *StreamingContext[Chunk]) error {
	if sctx.IsOutputFinished() {
		return nil
	}
	return sctx.SendText(ctx, "", true)
}

func (BasePolicy[Req, Chunk, Resp]) OnStreamComplete(context.Context, *txn.Context, *StreamingContext[Chunk]) error {
	return nil
}
