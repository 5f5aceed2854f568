package policy

import (
	"context"
	"errors"

	"go.uber.org/atomic"

	"github.com/luthien-proxy/luthien/internal/assembler"
	"github.com/luthien-proxy/luthien/internal/chunkmodel"
	"github.com/luthien-proxy/luthien/internal/streaming"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// ErrOutputFinished is returned by Send/SendText once the stream has been
// marked finished: sends after output is marked finished raise.
var ErrOutputFinished = errors.New("policy: stream output already finished")

// StreamingContext is the bridge handed to streaming hooks.
// It wraps the egress sender so a policy can only push outward; ingress is
// visible through the block passed alongside each hook call and, through
// State, the full StreamState including the raw chunks.
type StreamingContext[Chunk any] struct {
	Txn *txn.Context

	sender  streaming.Sender[Chunk]
	builder chunkmodel.Builder[Chunk]

	// ingressAssembler is wired just before the first hook fires, giving
	// advanced policies read access to the full StreamState if they need
	// more than the block passed to their current hook.
	ingressAssembler *assembler.Assembler[Chunk]

	outputFinished atomic.Bool
}

// NewStreamingContext constructs a StreamingContext. ingressAssembler may
// be nil until wired by the orchestrator just before dispatch begins.
func NewStreamingContext[Chunk any](tctx *txn.Context, sender streaming.Sender[Chunk], builder chunkmodel.Builder[Chunk]) *StreamingContext[Chunk] {
	return &StreamingContext[Chunk]{Txn: tctx, sender: sender, builder: builder}
}

// WireAssembler is called once by the orchestrator before the first hook
// dispatch, giving the context a back-reference to the live StreamState.
// Policy authors should not call this themselves.
func (s *StreamingContext[Chunk]) WireAssembler(a *assembler.Assembler[Chunk]) {
	s.ingressAssembler = a
}

// State returns the assembler's current StreamState, or nil if the
// assembler hasn't been wired yet (before stream start).
func (s *StreamingContext[Chunk]) State() *chunkmodel.StreamState[Chunk] {
	if s.ingressAssembler == nil {
		return nil
	}
	return s.ingressAssembler.State()
}

// Send pushes chunk to egress verbatim. Fails with ErrOutputFinished if
// the stream has already been marked finished.
func (s *StreamingContext[Chunk]) Send(ctx context.Context, chunk Chunk) error {
	if s.outputFinished.Load() {
		return ErrOutputFinished
	}
	return s.sender.Send(ctx, chunk)
}

// SendText builds a text chunk via the wired Builder and sends it. If
// finish is true, the stream is marked finished atomically after the send
// succeeds — subsequent Send/SendText calls fail fast.
func (s *StreamingContext[Chunk]) SendText(ctx context.Context, text string, finish bool) error {
	if s.outputFinished.Load() {
		return ErrOutputFinished
	}
	if err := s.sender.Send(ctx, s.builder.TextChunk(text, finish)); err != nil {
		return err
	}
	if finish {
		s.outputFinished.Store(true)
	}
	return nil
}

// SendError builds an error chunk via the wired Builder, sends it, and
// marks the stream finished — used by the orchestrator to surface a
// PolicyError mid-stream. A mid-stream BackendError is recorded but sends
// no error chunk.
func (s *StreamingContext[Chunk]) SendError(ctx context.Context, cause error) error {
	if s.outputFinished.Load() {
		return ErrOutputFinished
	}
	err := s.sender.Send(ctx, s.builder.ErrorChunk(cause))
	s.outputFinished.Store(true)
	return err
}

// MarkOutputFinished sets output_finished without sending a chunk — for
// policies that suppress all further output (e.g. after a block decision)
// without a textual replacement.
func (s *StreamingContext[Chunk]) MarkOutputFinished() {
	s.outputFinished.Store(true)
}

// IsOutputFinished reports whether output has been marked finished.
func (s *StreamingContext[Chunk]) IsOutputFinished() bool {
	return s.outputFinished.Load()
}

// Keepalive resets the idle watchdog without emitting a chunk. Long policy
// work (an LLM judge call in on_tool_call_complete) must call this to
// avoid the stream being mistaken for idle.
func (s *StreamingContext[Chunk]) Keepalive() {
	s.sender.Keepalive()
}
