package anthropiccompat

import "github.com/luthien-proxy/luthien/internal/chunkmodel"

// Interpreter maps Anthropic's named SSE events onto chunkmodel.Delta and
// finish-reason values. It is stateless and safe to share across streams;
// all per-stream state lives in chunkmodel.StreamState, owned by the
// Assembler.
type Interpreter struct{}

var _ chunkmodel.Interpreter[*StreamEvent] = Interpreter{}

// Deltas extracts zero or one Delta from a single StreamEvent. Anthropic
// never carries more than one semantic fragment per event, unlike some
// providers that can co-report a content delta and a block-stop marker in
// the same payload.
func (Interpreter) Deltas(event *StreamEvent) []chunkmodel.Delta {
	switch event.Type {
	case "content_block_start":
		if event.ContentBlock == nil {
			return nil
		}
		switch event.ContentBlock.Type {
		case "text":
			return []chunkmodel.Delta{{
				BlockIndex: event.Index,
				Kind:       chunkmodel.ContentBlock,
				NewBlock:   true,
			}}
		case "tool_use":
			return []chunkmodel.Delta{{
				BlockIndex:       event.Index,
				Kind:             chunkmodel.ToolCallBlock,
				NewBlock:         true,
				ToolCallID:       event.ContentBlock.ID,
				ToolNameFragment: event.ContentBlock.Name,
			}}
		default:
			return nil
		}

	case "content_block_delta":
		if event.Delta == nil {
			return nil
		}
		switch event.Delta.DeltaType {
		case "text_delta":
			return []chunkmodel.Delta{{
				BlockIndex:      event.Index,
				Kind:            chunkmodel.ContentBlock,
				ContentFragment: event.Delta.Text,
			}}
		case "input_json_delta":
			return []chunkmodel.Delta{{
				BlockIndex:      event.Index,
				Kind:            chunkmodel.ToolCallBlock,
				ToolArgFragment: event.Delta.PartialJSON,
			}}
		default:
			return nil
		}

	case "content_block_stop":
		// The block's Kind doesn't matter for a pure end marker — the
		// assembler only inspects BlockEnd and BlockIndex here, since the
		// block already exists and carries its own Kind.
		return []chunkmodel.Delta{{BlockIndex: event.Index, BlockEnd: true}}

	default:
		return nil
	}
}

// FinishReason returns Anthropic's stop_reason, carried on message_delta.
// A synthetic chunk built by Builder may also carry a stop reason
// alongside a content delta in the same event: the default finish hook
// sends one empty chunk that is simultaneously "the last content" and
// "the finish signal", which has no real wire precedent but keeps the
// synthesized stream single-chunk.
func (Interpreter) FinishReason(event *StreamEvent) (string, bool) {
	if event.Delta == nil || event.Delta.StopReason == "" {
		return "", false
	}
	return event.Delta.StopReason, true
}
