package anthropiccompat

import "github.com/luthien-proxy/luthien/internal/chunkmodel"

// Builder constructs synthetic StreamEvent values for StreamingContext,
// so a policy can emit text or an error without having received either
// directly from Anthropic.
type Builder struct{}

var _ chunkmodel.Builder[*StreamEvent] = Builder{}

// TextChunk builds a content_block_delta event carrying text, optionally
// followed in spirit by a stop (the caller is expected to treat finish as
// "no more chunks will follow"; Anthropic's own message_delta/message_stop
// pair is not synthesized here since a synthetic stream has no real
// message to stop).
func (Builder) TextChunk(text string, finish bool) *StreamEvent {
	event := &StreamEvent{
		Type:  "content_block_delta",
		Index: 0,
		Delta: &EventDelta{DeltaType: "text_delta", Text: text},
	}
	if finish {
		event.Delta.StopReason = "end_turn"
	}
	return event
}

// ErrorChunk builds a message_delta event carrying an "error" stop reason,
// the closest Anthropic-shaped signal for a policy- or backend-originated
// failure surfaced mid-stream.
func (Builder) ErrorChunk(err error) *StreamEvent {
	return &StreamEvent{
		Type:  "message_delta",
		Delta: &EventDelta{DeltaType: "stop", StopReason: "error: " + err.Error()},
	}
}
