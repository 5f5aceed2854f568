package policies

import (
	"context"
	"fmt"
	"strings"

	"github.com/luthien-proxy/luthien/internal/backend/openaicompat"
	"github.com/luthien-proxy/luthien/internal/chunkmodel"
	"github.com/luthien-proxy/luthien/internal/pipeline"
	"github.com/luthien-proxy/luthien/internal/policy"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// Judge decides whether a completed tool call should be blocked. name and
// arguments are the tool call's accumulated name and JSON argument
// string. Implementations that call out to an LLM should call keepalive
// periodically during long calls so the streaming watchdog doesn't
// mistake the pause for an idle stream.
type Judge func(ctx context.Context, name, arguments string, keepalive func()) (blocked bool, reason string, err error)

// ToolCallJudge forwards content deltas with the default behavior but
// overrides OnToolCallDelta as a no-op, so raw tool-call chunks never
// reach the client ahead of a verdict. Content deltas still advance the
// raw-chunk watermark as they're forwarded, so it always sits just past
// the last emitted chunk when a tool-call block completes. Decide is then
// asked for a verdict: an allowed call replays its original chunks from
// the block's own raw-chunk span; a blocked call is replaced with a short
// message and the stream is marked finished. Either way, OnStreamComplete
// and remaining hooks still run so observability stays complete.
type ToolCallJudge struct {
	policy.BasePolicy[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]
	Decide Judge
}

// NewToolCallJudge builds a ToolCallJudge policy using decide to judge
// each completed tool call.
func NewToolCallJudge(decide Judge) *ToolCallJudge {
	return &ToolCallJudge{
		BasePolicy: policy.BasePolicy[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]{
			Builder: openaicompat.Builder{},
		},
		Decide: decide,
	}
}

// OnContentDelta forwards the delta with the default behavior, then
// advances the raw-chunk watermark past the chunk that carried it. Content
// is always forwarded live, so its raw chunks must never be eligible for
// passthrough's replay of a later tool call's own span.
func (t *ToolCallJudge) OnContentDelta(ctx context.Context, delta string, block *chunkmodel.StreamBlock, tctx *txn.Context, sctx *policy.StreamingContext[*openaicompat.Chunk]) error {
	if err := t.BasePolicy.OnContentDelta(ctx, delta, block, tctx, sctx); err != nil {
		return err
	}
	t.discard(sctx)
	return nil
}

// OnToolCallDelta suppresses every raw tool-call chunk; the accumulated
// block is inspected only once it completes.
func (t *ToolCallJudge) OnToolCallDelta(_ context.Context, _ *openaicompat.Chunk, _ *chunkmodel.StreamBlock, _ *txn.Context, _ *policy.StreamingContext[*openaicompat.Chunk]) error {
	return nil
}

// OnToolCallComplete asks Decide for a verdict and either replays the
// tool call's raw chunks verbatim or suppresses them in favor of a
// blocked message, recording the decision either way.
func (t *ToolCallJudge) OnToolCallComplete(ctx context.Context, block *chunkmodel.StreamBlock, tctx *txn.Context, sctx *policy.StreamingContext[*openaicompat.Chunk]) error {
	blocked, reason, err := t.Decide(ctx, block.ToolName, block.ToolArgument, sctx.Keepalive)
	if err != nil {
		return fmt.Errorf("tool call judge: %w", err)
	}

	if !blocked {
		return t.passthrough(ctx, sctx)
	}

	t.discard(sctx)
	tctx.Increment("tool_calls_blocked", 1)
	tctx.Record(ctx, txn.NewEvent("policy.content_blocked", map[string]any{
		"tool_name": block.ToolName,
		"reason":    reason,
	}))
	return sctx.SendText(ctx, fmt.Sprintf("⛔ BLOCKED: %s - %s", block.ToolName, reason), true)
}

func (t *ToolCallJudge) passthrough(ctx context.Context, sctx *policy.StreamingContext[*openaicompat.Chunk]) error {
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

func (t *ToolCallJudge) discard(sctx *policy.StreamingContext[*openaicompat.Chunk]) {
	if state := sctx.State(); state != nil {
		state.PendingRaw()
	}
}

// KeywordJudge is a lightweight Judge that flags a tool call as blocked
// when its arguments contain any of the given destructive substrings
// (case-insensitive). It never calls keepalive since it does no I/O — a
// stand-in for environments without a configured judge backend.
func KeywordJudge(destructive []string) Judge {
	lowered := make([]string, len(destructive))
	for i, s := range destructive {
		lowered[i] = strings.ToLower(s)
	}
	return func(_ context.Context, _, arguments string, _ func()) (bool, string, error) {
		lowerArgs := strings.ToLower(arguments)
		for _, needle := range lowered {
			if strings.Contains(lowerArgs, needle) {
				return true, "destructive", nil
			}
		}
		return false, "", nil
	}
}

// LLMJudge asks a backend chat model whether a tool call should be
// blocked, by sending its name and arguments as a single user message and
// treating a response beginning with "BLOCK" as a veto. It calls
// keepalive before issuing the backend call, since that call can run for
// seconds — long enough for the streaming watchdog to otherwise consider
// the stream idle.
func LLMJudge(backend pipeline.Backend[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response], model, systemPrompt string) Judge {
	return func(ctx context.Context, name, arguments string, keepalive func()) (bool, string, error) {
		keepalive()

		req := &openaicompat.Request{
			Model: model,
			Messages: []openaicompat.Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: fmt.Sprintf("Tool: %s\nArguments: %s", name, arguments)},
			},
		}

		resp, err := backend.Complete(ctx, req)
		if err != nil {
			return false, "", fmt.Errorf("llm judge backend call: %w", err)
		}
		if len(resp.Choices) == 0 {
			return false, "", nil
		}

		verdict := resp.Choices[0].Message.Content
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(verdict)), "BLOCK") {
			return true, strings.TrimSpace(verdict), nil
		}
		return false, "", nil
	}
}
