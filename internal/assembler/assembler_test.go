package assembler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-proxy/luthien/internal/chunkmodel"
)

// fakeChunk is a minimal provider-agnostic chunk used only by these
// tests: a block index, a content/tool-call kind, the fragment text, an
// explicit block-end flag, and an optional finish reason.
type fakeChunk struct {
	index     int
	kind      chunkmodel.BlockKind
	content   string
	toolName  string
	toolArg   string
	toolID    string
	blockEnd  bool
	finish    string
	hasFinish bool
}

type fakeInterpreter struct{}

func (fakeInterpreter) Deltas(c fakeChunk) []chunkmodel.Delta {
	if c.kind == chunkmodel.ContentBlock && c.content == "" && c.toolName == "" && c.toolArg == "" && !c.blockEnd {
		return nil
	}
	return []chunkmodel.Delta{{
		BlockIndex:       c.index,
		Kind:             c.kind,
		ContentFragment:  c.content,
		ToolCallID:       c.toolID,
		ToolNameFragment: c.toolName,
		ToolArgFragment:  c.toolArg,
		BlockEnd:         c.blockEnd,
	}}
}

func (fakeInterpreter) FinishReason(c fakeChunk) (string, bool) {
	return c.finish, c.hasFinish
}

func collectDispatch(t *testing.T) (Dispatch[fakeChunk], *[]string) {
	var calls []string
	return func(_ context.Context, _ fakeChunk, deltas []chunkmodel.Delta, state *chunkmodel.StreamState[fakeChunk]) error {
		for range deltas {
			calls = append(calls, "delta")
		}
		if state.JustCompleted != nil {
			calls = append(calls, "complete:"+state.JustCompleted.Kind.String())
		}
		if state.FinishReason != nil {
			calls = append(calls, "finish:"+*state.FinishReason)
		}
		return nil
	}, &calls
}

func TestIngestSingleContentBlock(t *testing.T) {
	a := New[fakeChunk](fakeInterpreter{})
	dispatch, calls := collectDispatch(t)

	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 0, kind: chunkmodel.ContentBlock, content: "hello "}, dispatch))
	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 0, kind: chunkmodel.ContentBlock, content: "world"}, dispatch))

	state := a.State()
	require.Len(t, state.Blocks, 1)
	assert.Equal(t, "hello world", state.Blocks[0].Text)
	assert.False(t, state.Blocks[0].Complete)
	assert.Equal(t, []string{"delta", "delta"}, *calls)
}

func TestIngestClosesPreviousBlockOnNewBlockStart(t *testing.T) {
	a := New[fakeChunk](fakeInterpreter{})
	dispatch, calls := collectDispatch(t)

	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 0, kind: chunkmodel.ContentBlock, content: "first"}, dispatch))
	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 1, kind: chunkmodel.ToolCallBlock, toolName: "search", toolArg: `{"q":"x"}`}, dispatch))

	state := a.State()
	require.Len(t, state.Blocks, 2)
	assert.True(t, state.Blocks[0].Complete)
	assert.False(t, state.Blocks[1].Complete)
	assert.Equal(t, state.Blocks[1], state.Current)
	assert.Contains(t, *calls, "complete:content")
}

func TestIngestExplicitBlockEnd(t *testing.T) {
	a := New[fakeChunk](fakeInterpreter{})
	dispatch, calls := collectDispatch(t)

	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 0, kind: chunkmodel.ContentBlock, content: "done", blockEnd: true}, dispatch))

	state := a.State()
	require.Len(t, state.Blocks, 1)
	assert.True(t, state.Blocks[0].Complete)
	assert.Nil(t, state.Current)
	assert.Contains(t, *calls, "complete:content")
}

func TestIngestFinishReasonClosesCurrentBlock(t *testing.T) {
	a := New[fakeChunk](fakeInterpreter{})
	dispatch, calls := collectDispatch(t)

	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 0, kind: chunkmodel.ContentBlock, content: "hi"}, dispatch))
	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 0, kind: chunkmodel.ContentBlock, finish: "stop", hasFinish: true}, dispatch))

	state := a.State()
	require.NotNil(t, state.FinishReason)
	assert.Equal(t, "stop", *state.FinishReason)
	assert.True(t, state.Blocks[0].Complete)
	assert.Contains(t, *calls, "finish:stop")
}

func TestIngestMultiBlockInterleaved(t *testing.T) {
	a := New[fakeChunk](fakeInterpreter{})
	dispatch, _ := collectDispatch(t)

	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 0, kind: chunkmodel.ContentBlock, content: "a"}, dispatch))
	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 1, kind: chunkmodel.ToolCallBlock, toolName: "f", toolID: "call_1"}, dispatch))
	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 1, kind: chunkmodel.ToolCallBlock, toolArg: `{}`, blockEnd: true}, dispatch))
	require.NoError(t, a.Ingest(context.Background(), fakeChunk{index: 2, kind: chunkmodel.ContentBlock, content: "b"}, dispatch))

	state := a.State()
	require.Len(t, state.Blocks, 3)
	assert.Equal(t, "a", state.Blocks[0].Text)
	assert.Equal(t, "call_1", state.Blocks[1].ToolCallID)
	assert.Equal(t, "f", state.Blocks[1].ToolName)
	assert.Equal(t, "{}", state.Blocks[1].ToolArgument)
	assert.True(t, state.Blocks[1].Complete)
	assert.Equal(t, "b", state.Blocks[2].Text)
	assert.Equal(t, state.Blocks[2], state.Current)
}

func TestPendingRawAdvancesWatermark(t *testing.T) {
	a := New[fakeChunk](fakeInterpreter{})
	dispatch, _ := collectDispatch(t)

	c1 := fakeChunk{index: 0, kind: chunkmodel.ContentBlock, content: "a"}
	c2 := fakeChunk{index: 0, kind: chunkmodel.ContentBlock, content: "b"}
	require.NoError(t, a.Ingest(context.Background(), c1, dispatch))
	require.NoError(t, a.Ingest(context.Background(), c2, dispatch))

	pending := a.State().PendingRaw()
	assert.Equal(t, []fakeChunk{c1, c2}, pending)
	assert.Empty(t, a.State().PendingRaw())
}
