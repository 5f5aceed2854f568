// Package anthropiccompat is the Backend, Interpreter, and Builder for
// Anthropic's Messages API — one of the two client-facing APIs Luthien
// serves end to end with no format conversion in the hot path.
package anthropiccompat

// Request is the native /v1/messages request body.
type Request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Tools     []Tool    `json:"tools,omitempty"`
	Stream    bool      `json:"stream,omitempty"`
}

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes one function a policy or client has made available to
// the model, passed through to Anthropic verbatim.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

// Response is the native, non-streaming /v1/messages response.
type Response struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ContentBlock is one element of Response.Content — either a text block
// or a tool_use block.
type ContentBlock struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`
}

// Usage carries Anthropic's token accounting field names.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamEvent is the native shape of one SSE event from a streaming
// /v1/messages call. Anthropic sends a different JSON payload per named
// event type; this wrapper holds every field any event type might carry,
// left zero-valued when not applicable to Type.
type StreamEvent struct {
	Type  string `json:"type"`

	// present on content_block_start
	Index        int           `json:"index"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`

	// present on content_block_delta
	Delta *EventDelta `json:"delta,omitempty"`

	// present on message_start
	Message *EventMessage `json:"message,omitempty"`

	// present on message_delta
	Usage *Usage `json:"usage,omitempty"`
}

// EventDelta carries the incremental payload of a content_block_delta or
// message_delta event. Upstream events populate one of the
// text/partial-JSON/stop-reason fields depending on DeltaType; a chunk
// built by Builder.TextChunk with finish set carries both Text and
// StopReason.
type EventDelta struct {
	DeltaType   string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// EventMessage is the "message" object inside a message_start event.
type EventMessage struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

const apiVersion = "2023-06-01"

const defaultMaxTokens = 1024
