package policies

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/luthien-proxy/luthien/internal/backend/openaicompat"
	"github.com/luthien-proxy/luthien/internal/chunkmodel"
	"github.com/luthien-proxy/luthien/internal/policy"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// Scripted runs operator-supplied Lua snippets as the body of
// on_content_delta and on_tool_call_complete, for policies an operator
// wants to express as data rather than a compiled Go policy. Each
// invocation gets a fresh *lua.LState — gopher-lua states are not
// goroutine-safe, and a fresh state per hook call keeps a Scripted
// instance safely reusable as the stateless singleton every Policy is
// required to be.
type Scripted struct {
	policy.BasePolicy[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]

	// ContentDeltaScript is run once per content delta with the global
	// `input` set to the delta text. It should set the global `output`
	// to the text to forward; an unset `output` forwards `input`
	// unchanged.
	ContentDeltaScript string

	// ToolCallScript is run once per completed tool-call block with the
	// globals `tool_name` and `tool_arguments` set. It should set the
	// global `blocked` (bool) and, if true, `reason` (string).
	ToolCallScript string
}

// NewScripted builds a Scripted policy from the given snippets. Either
// may be empty, in which case that hook falls back to BasePolicy's
// default behavior.
func NewScripted(contentDeltaScript, toolCallScript string) *Scripted {
	return &Scripted{
		BasePolicy:         policy.BasePolicy[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]{Builder: openaicompat.Builder{}},
		ContentDeltaScript: contentDeltaScript,
		ToolCallScript:     toolCallScript,
	}
}

func (s *Scripted) OnContentDelta(ctx context.Context, delta string, block *chunkmodel.StreamBlock, tctx *txn.Context, sctx *policy.StreamingContext[*openaicompat.Chunk]) error {
	if s.ContentDeltaScript == "" {
		return s.BasePolicy.OnContentDelta(ctx, delta, block, tctx, sctx)
	}

	L := lua.NewState()
	defer L.Close()

	L.SetGlobal("input", lua.LString(delta))
	if err := L.DoString(s.ContentDeltaScript); err != nil {
		return fmt.Errorf("scripted policy: content delta script: %w", err)
	}

	output := delta
	if v := L.GetGlobal("output"); v.Type() == lua.LTString {
		output = v.String()
	}
	if output == "" {
		return nil
	}
	return sctx.Send(ctx, openaicompat.Builder{}.TextChunk(output, false))
}

func (s *Scripted) OnToolCallComplete(ctx context.Context, block *chunkmodel.StreamBlock, tctx *txn.Context, sctx *policy.StreamingContext[*openaicompat.Chunk]) error {
	if s.ToolCallScript == "" {
		return s.BasePolicy.OnToolCallComplete(ctx, block, tctx, sctx)
	}

	L := lua.NewState()
	defer L.Close()

	L.SetGlobal("tool_name", lua.LString(block.ToolName))
	L.SetGlobal("tool_arguments", lua.LString(block.ToolArgument))
	if err := L.DoString(s.ToolCallScript); err != nil {
		return fmt.Errorf("scripted policy: tool call script: %w", err)
	}

	blocked := lua.LVAsBool(L.GetGlobal("blocked"))
	if !blocked {
		return nil
	}

	reason := ""
	if v := L.GetGlobal("reason"); v.Type() == lua.LTString {
		reason = v.String()
	}
	tctx.Increment("tool_calls_blocked", 1)
	tctx.Record(ctx, txn.NewEvent("policy.content_blocked", map[string]any{
		"tool_name": block.ToolName,
		"reason":    reason,
	}))
	return sctx.SendText(ctx, fmt.Sprintf("⛔ BLOCKED: %s - %s", block.ToolName, reason), true)
}
