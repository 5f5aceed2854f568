// Package assembler derives running StreamState from a sequence of
// provider-native chunks. It owns StreamState — nothing else in the core
// mutates it, apart from the LastEmissionIndex watermark that passthrough
// helpers advance through PendingRaw — and invokes a caller-supplied dispatch callback
// once per chunk so the orchestrator can fire policy hooks in the order
// it needs them fired.
package assembler

import (
	"context"

	"github.com/luthien-proxy/luthien/internal/chunkmodel"
)

// Assembler consumes chunks of type Chunk and maintains a StreamState by
// delegating wire-format interpretation to an Interpreter.
type Assembler[Chunk any] struct {
	interp chunkmodel.Interpreter[Chunk]
	state  *chunkmodel.StreamState[Chunk]
}

// New creates an Assembler backed by interp, with a fresh StreamState.
func New[Chunk any](interp chunkmodel.Interpreter[Chunk]) *Assembler[Chunk] {
	return &Assembler[Chunk]{
		interp: interp,
		state:  chunkmodel.NewState[Chunk](),
	}
}

// State returns the assembler's StreamState. Callers must not mutate it,
// except through StreamState.PendingRaw, which policies use to advance
// the raw-chunk watermark; it is otherwise exposed for inspection.
func (a *Assembler[Chunk]) State() *chunkmodel.StreamState[Chunk] {
	return a.state
}

// Dispatch is invoked once per chunk, after StreamState has been updated
// for that chunk but before the next chunk is processed. deltas is exactly
// what the Interpreter returned for this chunk, letting the caller fire a
// delta hook per delta before consulting JustCompleted/FinishReason for
// the complete/finish hooks — the ordering the orchestrator relies on. The
// assembler guarantees JustCompleted is set for at most the one call in
// which a block closed.
type Dispatch[Chunk any] func(ctx context.Context, chunk Chunk, deltas []chunkmodel.Delta, state *chunkmodel.StreamState[Chunk]) error

// Ingest applies one chunk to the state and invokes dispatch. It returns
// whatever error dispatch returns, unmodified — a hook error aborts the
// pipeline for that transaction.
func (a *Assembler[Chunk]) Ingest(ctx context.Context, chunk Chunk, dispatch Dispatch[Chunk]) error {
	s := a.state
	s.RawChunks = append(s.RawChunks, chunk)
	s.JustCompleted = nil

	deltas := a.interp.Deltas(chunk)
	for _, d := range deltas {
		a.applyDelta(d)
	}

	if reason, ok := a.interp.FinishReason(chunk); ok {
		r := reason
		s.FinishReason = &r
		if s.Current != nil {
			closed := s.Current
			closed.Complete = true
			s.JustCompleted = closed
			s.Current = nil
		}
	}

	return dispatch(ctx, chunk, deltas, s)
}

// applyDelta extends or opens a block per d, closing the previous block
// (setting JustCompleted) exactly when a new block starts or the provider
// explicitly closes the current one.
func (a *Assembler[Chunk]) applyDelta(d chunkmodel.Delta) {
	s := a.state

	block := s.BlockByIndex(d.BlockIndex)
	if block == nil {
		// Starting a new block closes whatever was previously open —
		// blocks close in the order they open.
		if s.Current != nil && s.Current.Index != d.BlockIndex {
			s.Current.Complete = true
			s.JustCompleted = s.Current
			s.Current = nil
		}

		block = &chunkmodel.StreamBlock{
			Kind:       d.Kind,
			Index:      d.BlockIndex,
			ToolCallID: d.ToolCallID,
		}
		s.Blocks = append(s.Blocks, block)
		s.Current = block
	}

	switch d.Kind {
	case chunkmodel.ContentBlock:
		block.Text += d.ContentFragment
	case chunkmodel.ToolCallBlock:
		if d.ToolCallID != "" {
			block.ToolCallID = d.ToolCallID
		}
		block.ToolName += d.ToolNameFragment
		block.ToolArgument += d.ToolArgFragment
	}

	if d.BlockEnd {
		block.Complete = true
		s.JustCompleted = block
		if s.Current == block {
			s.Current = nil
		}
	}
}
