package openaicompat

import "github.com/luthien-proxy/luthien/internal/chunkmodel"

// Builder constructs synthetic Chunk values for StreamingContext, so a
// policy can emit text or an error without having received either
// directly from the backend.
type Builder struct{}

var _ chunkmodel.Builder[*Chunk] = Builder{}

// TextChunk builds a single-choice chunk carrying text as a content
// delta, with finish_reason set to "stop" when finish is true.
func (Builder) TextChunk(text string, finish bool) *Chunk {
	choice := ChunkChoice{Index: 0, Delta: ChunkDelta{Content: text}}
	if finish {
		reason := "stop"
		choice.FinishReason = &reason
	}
	return &Chunk{Choices: []ChunkChoice{choice}}
}

// ErrorChunk builds a chunk carrying the error text as content with
// finish_reason "error", the closest OpenAI-shaped signal for a policy-
// or backend-originated failure surfaced mid-stream.
func (Builder) ErrorChunk(err error) *Chunk {
	reason := "error"
	return &Chunk{Choices: []ChunkChoice{{
		Index:        0,
		Delta:        ChunkDelta{Content: err.Error()},
		FinishReason: &reason,
	}}}
}
