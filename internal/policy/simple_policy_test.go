package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthien-proxy/luthien/internal/assembler"
	"github.com/luthien-proxy/luthien/internal/chunkmodel"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// testChunk is a minimal Chunk stand-in: a content fragment plus an
// optional finish reason, sufficient to drive the assembler and
// StreamingContext without any real provider wire format.
type testChunk struct {
	text   string
	finish string
	hasFin bool
}

type testInterpreter struct{}

func (testInterpreter) Deltas(c testChunk) []chunkmodel.Delta {
	if c.text == "" {
		return nil
	}
	return []chunkmodel.Delta{{BlockIndex: 0, Kind: chunkmodel.ContentBlock, ContentFragment: c.text}}
}

func (testInterpreter) FinishReason(c testChunk) (string, bool) {
	return c.finish, c.hasFin
}

type testBuilder struct{}

func (testBuilder) TextChunk(text string, finish bool) testChunk {
	c := testChunk{text: text}
	if finish {
		c.finish, c.hasFin = "stop", true
	}
	return c
}

func (testBuilder) ErrorChunk(err error) testChunk {
	return testChunk{text: "error: " + err.Error(), finish: "error", hasFin: true}
}

type captureSender struct {
	sent       []testChunk
	keepalives int
	failNext   bool
}

func (s *captureSender) Send(_ context.Context, chunk testChunk) error {
	if s.failNext {
		return errors.New("send failed")
	}
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *captureSender) Keepalive() { s.keepalives++ }

func newTestStreamingContext() (*StreamingContext[testChunk], *captureSender, *assembler.Assembler[testChunk]) {
	sender := &captureSender{}
	sctx := NewStreamingContext[testChunk](txn.New(context.Background(), noopRouter{}), sender, testBuilder{})
	asm := assembler.New[testChunk](testInterpreter{})
	sctx.WireAssembler(asm)
	return sctx, sender, asm
}

type noopRouter struct{}

func (noopRouter) Route(context.Context, txn.Event) {}

func TestSimplePolicyPassthroughWhenNilHook(t *testing.T) {
	sctx, sender, asm := newTestStreamingContext()
	p := &SimplePolicy[struct{}, testChunk, struct{}]{BasePolicy: BasePolicy[struct{}, testChunk, struct{}]{Builder: testBuilder{}}}

	// A single chunk carrying both the final text fragment and the finish
	// reason closes the block in one Ingest call, so PendingRaw() replays
	// exactly that one raw chunk.
	chunk := testChunk{text: "hello", finish: "stop", hasFin: true}
	require.NoError(t, asm.Ingest(context.Background(), chunk, func(ctx context.Context, c testChunk, deltas []chunkmodel.Delta, state *chunkmodel.StreamState[testChunk]) error {
		if state.JustCompleted != nil {
			return p.OnContentComplete(ctx, state.JustCompleted, nil, sctx)
		}
		return nil
	}))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "hello", sender.sent[0].text)
}

func TestSimplePolicyReplace(t *testing.T) {
	sctx, sender, asm := newTestStreamingContext()
	replacement := "REDACTED"
	p := &SimplePolicy[struct{}, testChunk, struct{}]{
		BasePolicy: BasePolicy[struct{}, testChunk, struct{}]{Builder: testBuilder{}},
		OnResponseContent: func(_ context.Context, block *chunkmodel.StreamBlock, _ *txn.Context) (ContentDecision, error) {
			return ContentDecision{Replace: &replacement}, nil
		},
	}

	require.NoError(t, asm.Ingest(context.Background(), testChunk{text: "secret", finish: "stop", hasFin: true}, func(ctx context.Context, c testChunk, deltas []chunkmodel.Delta, state *chunkmodel.StreamState[testChunk]) error {
		if state.JustCompleted != nil {
			return p.OnContentComplete(ctx, state.JustCompleted, nil, sctx)
		}
		return nil
	}))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, replacement, sender.sent[0].text)
}

func TestSimplePolicyToolCallBlock(t *testing.T) {
	sctx, sender, asm := newTestStreamingContext()
	p := &SimplePolicy[struct{}, testChunk, struct{}]{
		BasePolicy: BasePolicy[struct{}, testChunk, struct{}]{Builder: testBuilder{}},
		OnResponseToolCall: func(_ context.Context, block *chunkmodel.StreamBlock, _ *txn.Context) (ToolCallDecision, error) {
			if block.ToolName == "delete_everything" {
				return ToolCallDecision{Block: true, Reason: "blocked"}, nil
			}
			return ToolCallDecision{}, nil
		},
	}

	tctx := txn.New(context.Background(), noopRouter{})
	require.NoError(t, p.OnToolCallComplete(context.Background(), &chunkmodel.StreamBlock{ToolName: "delete_everything"}, tctx, sctx))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "blocked", sender.sent[0].text)
	assert.Equal(t, 1, tctx.Increment("tool_calls_blocked", 0))

	_ = asm
}

func TestStreamingContextSendAfterFinishFails(t *testing.T) {
	sctx, _, _ := newTestStreamingContext()
	require.NoError(t, sctx.SendText(context.Background(), "done", true))
	assert.True(t, sctx.IsOutputFinished())
	err := sctx.Send(context.Background(), testChunk{text: "late"})
	assert.ErrorIs(t, err, ErrOutputFinished)
}
