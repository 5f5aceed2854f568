package pipeline

import "context"

// StreamItem is one element of a backend chunk source. Err is set exactly
// once, on the final item, if the backend failed mid-stream; the source
// closes immediately after. A source that simply runs out of chunks
// (truncation without finish_reason, or a clean close) closes without ever
// sending an item with Err set.
type StreamItem[Chunk any] struct {
	Chunk Chunk
	Err   error
}

// Backend abstracts one provider's call/stream endpoints behind the
// native request/chunk/response types of the client-facing API a Pipeline
// serves. internal/backend/openaicompat and internal/backend/anthropiccompat
// supply concrete implementations.
type Backend[Req, Chunk, Resp any] interface {
	// Complete issues a non-streaming call and returns the full response.
	Complete(ctx context.Context, req Req) (Resp, error)

	// Stream issues a streaming call and returns a channel of chunks. The
	// channel is closed by the backend once the response ends, whether
	// cleanly, truncated, or after sending one terminal error item.
	Stream(ctx context.Context, req Req) (<-chan StreamItem[Chunk], error)
}
