package recorder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-proxy/luthien/internal/chunkmodel"
	"github.com/luthien-proxy/luthien/internal/txn"
)

type fakeChunk struct {
	index    int
	kind     chunkmodel.BlockKind
	text     string
	toolName string
	toolArg  string
	toolID   string
	finish   string
	hasFin   bool
}

type fakeInterpreter struct{}

func (fakeInterpreter) Deltas(c fakeChunk) []chunkmodel.Delta {
	if c.text == "" && c.toolName == "" && c.toolArg == "" {
		return nil
	}
	return []chunkmodel.Delta{{
		BlockIndex:       c.index,
		Kind:             c.kind,
		ContentFragment:  c.text,
		ToolCallID:       c.toolID,
		ToolNameFragment: c.toolName,
		ToolArgFragment:  c.toolArg,
	}}
}

func (fakeInterpreter) FinishReason(c fakeChunk) (string, bool) { return c.finish, c.hasFin }

type capturingRouter struct{ events []txn.Event }

func (r *capturingRouter) Route(_ context.Context, event txn.Event) {
	r.events = append(r.events, event)
}

func TestRecorderFoldContentOnly(t *testing.T) {
	router := &capturingRouter{}
	tctx := txn.New(context.Background(), router)
	rec := New[fakeChunk](tctx, fakeInterpreter{})

	rec.AppendIngress(fakeChunk{kind: chunkmodel.ContentBlock, text: "hello "})
	rec.AppendIngress(fakeChunk{kind: chunkmodel.ContentBlock, text: "world", finish: "stop", hasFin: true})
	rec.AppendEgress(fakeChunk{kind: chunkmodel.ContentBlock, text: "HELLO "})
	rec.AppendEgress(fakeChunk{kind: chunkmodel.ContentBlock, text: "WORLD", finish: "stop", hasFin: true})

	rec.FinalizeStreaming(context.Background())

	require.Len(t, router.events, 1)
	evt := router.events[0]
	assert.Equal(t, "transaction.streaming_response_recorded", evt.Type)

	original := evt.Fields["original_response"].(Reconstructed)
	assert.Equal(t, "hello world", original.Content)
	assert.Equal(t, "stop", original.FinishReason)
	assert.Empty(t, original.ToolCalls)

	final := evt.Fields["final_response"].(Reconstructed)
	assert.Equal(t, "HELLO WORLD", final.Content)

	assert.EqualValues(t, 2, evt.Fields["ingress_count"])
	assert.EqualValues(t, 2, evt.Fields["egress_count"])
}

func TestRecorderFoldToolCalls(t *testing.T) {
	router := &capturingRouter{}
	tctx := txn.New(context.Background(), router)
	rec := New[fakeChunk](tctx, fakeInterpreter{})

	rec.AppendIngress(fakeChunk{index: 0, kind: chunkmodel.ToolCallBlock, toolID: "call_1", toolName: "search"})
	rec.AppendIngress(fakeChunk{index: 0, kind: chunkmodel.ToolCallBlock, toolArg: `{"q":`})
	rec.AppendIngress(fakeChunk{index: 0, kind: chunkmodel.ToolCallBlock, toolArg: `"x"}`})
	rec.AppendIngress(fakeChunk{index: 1, kind: chunkmodel.ContentBlock, text: "done", finish: "tool_calls", hasFin: true})

	rec.FinalizeStreaming(context.Background())

	require.Len(t, router.events, 1)
	reconstructed := router.events[0].Fields["original_response"].(Reconstructed)
	require.Len(t, reconstructed.ToolCalls, 1)
	assert.Equal(t, "call_1", reconstructed.ToolCalls[0].ToolCallID)
	assert.Equal(t, "search", reconstructed.ToolCalls[0].Name)
	assert.Equal(t, `{"q":"x"}`, reconstructed.ToolCalls[0].Arguments)
	assert.Equal(t, "done", reconstructed.Content)
	assert.Equal(t, "tool_calls", reconstructed.FinishReason)
}

func TestRecorderRecordRequest(t *testing.T) {
	router := &capturingRouter{}
	tctx := txn.New(context.Background(), router)
	rec := New[fakeChunk](tctx, fakeInterpreter{})

	rec.RecordRequest(context.Background(), "original", "final")

	require.Len(t, router.events, 1)
	assert.Equal(t, "transaction.request_recorded", router.events[0].Type)
	assert.Equal(t, "original", router.events[0].Fields["original_request"])
	assert.Equal(t, "final", router.events[0].Fields["final_request"])
}

func TestRecorderFinalizeNonStreaming(t *testing.T) {
	router := &capturingRouter{}
	tctx := txn.New(context.Background(), router)
	rec := New[fakeChunk](tctx, fakeInterpreter{})

	rec.FinalizeNonStreaming(context.Background(), "orig-resp", "final-resp")

	require.Len(t, router.events, 1)
	assert.Equal(t, "transaction.non_streaming_response_recorded", router.events[0].Type)
	assert.Equal(t, "orig-resp", router.events[0].Fields["original_response"])
	assert.Equal(t, "final-resp", router.events[0].Fields["final_response"])
}
