package openaicompat

import "github.com/luthien-proxy/luthien/internal/chunkmodel"

// contentBlockIndex is the synthetic block index assigned to the single
// content block a choice can carry. OpenAI's tool_calls deltas number
// their own blocks starting at 0, so content is kept out of that space
// rather than colliding with tool call index 0.
const contentBlockIndex = -1

// Interpreter maps OpenAI-compatible chunk deltas onto chunkmodel.Delta
// and finish-reason values. OpenAI never closes a block explicitly — it
// closes implicitly when the next block opens, the finish reason arrives,
// or the stream ends — so Interpreter never sets Delta.BlockEnd; the
// assembler derives block boundaries itself.
type Interpreter struct{}

var _ chunkmodel.Interpreter[*Chunk] = Interpreter{}

// Deltas extracts the content delta (if any) and one delta per tool-call
// fragment (if any) from the chunk's first choice.
func (Interpreter) Deltas(chunk *Chunk) []chunkmodel.Delta {
	if len(chunk.Choices) == 0 {
		return nil
	}
	delta := chunk.Choices[0].Delta

	var out []chunkmodel.Delta
	if delta.Content != "" {
		out = append(out, chunkmodel.Delta{
			BlockIndex:      contentBlockIndex,
			Kind:            chunkmodel.ContentBlock,
			ContentFragment: delta.Content,
		})
	}
	for _, tc := range delta.ToolCalls {
		out = append(out, chunkmodel.Delta{
			BlockIndex:       tc.Index,
			Kind:             chunkmodel.ToolCallBlock,
			ToolCallID:       tc.ID,
			ToolNameFragment: tc.Function.Name,
			ToolArgFragment:  tc.Function.Arguments,
		})
	}
	return out
}

// FinishReason returns the first choice's finish_reason, if the backend
// has set one on this chunk.
func (Interpreter) FinishReason(chunk *Chunk) (string, bool) {
	if len(chunk.Choices) == 0 {
		return "", false
	}
	reason := chunk.Choices[0].FinishReason
	if reason == nil || *reason == "" {
		return "", false
	}
	return *reason, true
}
