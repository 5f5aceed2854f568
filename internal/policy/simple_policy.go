package policy

import (
	"context"

	"github.com/luthien-proxy/luthien/internal/chunkmodel"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// ContentDecision is returned by SimplePolicy's OnResponseContent hook. A
// zero value (Replace == nil) passes the block's raw chunks through
// unchanged; setting Replace swaps the entire block for different text.
type ContentDecision struct {
	Replace *string
}

// ToolCallDecision is returned by SimplePolicy's OnResponseToolCall hook.
// Block defaults to passthrough; setting Block true suppresses the tool
// call's raw chunks and emits Reason as replacement text instead.
type ToolCallDecision struct {
	Block  bool
	Reason string
}

// SimplePolicy gives policy authors whole-block semantics instead of
// per-delta ones: it buffers each block as it completes and asks
// OnResponseContent / OnResponseToolCall for a decision, rather than
// requiring them to implement OnContentDelta/OnToolCallDelta directly.
// This is the "buffer, decide once per block, replay or replace" shape
// most sample policies want: when a block is left unmodified,
// SimplePolicy forwards the exact raw
// chunks the backend sent rather than re-synthesizing them.
type SimplePolicy[Req, Chunk, Resp any] struct {
	BasePolicy[Req, Chunk, Resp]

	// OnResponseContent is called once a content block completes. A nil
	// hook passes every block through unchanged.
	OnResponseContent func(ctx context.Context, block *chunkmodel.StreamBlock, tctx *txn.Context) (ContentDecision, error)

	// OnResponseToolCall is called once a tool-call block completes. A nil
	// hook passes every tool call through unchanged.
	OnResponseToolCall func(ctx context.Context, block *chunkmodel.StreamBlock, tctx *txn.Context) (ToolCallDecision, error)
}

var _ Policy[struct{}, struct{}, struct{}] = (*SimplePolicy[struct{}, struct{}, struct{}])(nil)

// OnContentDelta is a no-op: SimplePolicy makes its decision once the block
// completes, in OnContentComplete, rather than per delta.
func (SimplePolicy[Req, Chunk, Resp]) OnContentDelta(context.Context, string, *chunkmodel.StreamBlock, *txn.Context, *StreamingContext[Chunk]) error {
	return nil
}

// OnContentComplete asks OnResponseContent for a decision and either
// replays the block's raw chunks verbatim (passthrough) or sends Replace
// as synthesized text.
func (p SimplePolicy[Req, Chunk, Resp]) OnContentComplete(ctx context.Context, block *chunkmodel.StreamBlock, tctx *txn.Context, sctx *StreamingContext[Chunk]) error {
	if p.OnResponseContent == nil {
		return p.passthrough(ctx, sctx)
	}

	decision, err := p.OnResponseContent(ctx, block, tctx)
	if err != nil {
		return err
	}
	if decision.Replace == nil {
		return p.passthrough(ctx, sctx)
	}

	p.discardPending(sctx)
	return sctx.SendText(ctx, *decision.Replace, false)
}

// OnToolCallDelta is a no-op for the same reason as OnContentDelta.
func (SimplePolicy[Req, Chunk, Resp]) OnToolCallDelta(context.Context, Chunk, *chunkmodel.StreamBlock, *txn.Context, *StreamingContext[Chunk]) error {
	return nil
}

// OnToolCallComplete asks OnResponseToolCall for a decision and either
// replays the tool call's raw chunks verbatim or suppresses them in favor
// of Reason, counting the suppressed call under tool_calls_blocked in the
// transaction scratchpad.
func (p SimplePolicy[Req, Chunk, Resp]) OnToolCallComplete(ctx context.Context, block *chunkmodel.StreamBlock, tctx *txn.Context, sctx *StreamingContext[Chunk]) error {
	if p.OnResponseToolCall == nil {
		return p.passthrough(ctx, sctx)
	}

	decision, err := p.OnResponseToolCall(ctx, block, tctx)
	if err != nil {
		return err
	}
	if !decision.Block {
		return p.passthrough(ctx, sctx)
	}

	p.discardPending(sctx)
	tctx.Increment("tool_calls_blocked", 1)
	return sctx.SendText(ctx, decision.Reason, false)
}

func (p SimplePolicy[Req, Chunk, Resp]) passthrough(ctx context.Context, sctx *StreamingContext[Chunk]) error {
	state := sctx.State()
	if state == nil {
		return nil
	}
	for _, chunk := range state.PendingRaw() {
		if err := sctx.Send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// discardPending advances the raw-chunk watermark without forwarding, so a
// replaced or blocked block's upstream chunks never reach egress.
func (p SimplePolicy[Req, Chunk, Resp]) discardPending(sctx *StreamingContext[Chunk]) {
	if state := sctx.State(); state != nil {
		state.PendingRaw()
	}
}
