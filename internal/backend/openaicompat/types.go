// Package openaicompat is the Backend, Interpreter, and Builder for an
// OpenAI-compatible chat completions API — the second of the two
// client-facing APIs Luthien serves end to end, with no format conversion
// shared with internal/backend/anthropiccompat in the hot path.
package openaicompat

// Request is the native /v1/chat/completions request body.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message is one turn of the conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Tool describes one function a policy or client has made available to
// the model, passed through to the backend verbatim.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the callable schema nested under Tool.
type ToolFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// ToolCall is one function invocation, either requested in full
// (non-streaming Response) or accumulated from deltas (streaming Chunk).
type ToolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the function name and its JSON-encoded
// argument string, fragment by fragment while streaming.
type ToolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Response is the native, non-streaming /v1/chat/completions response.
type Response struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []RespChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

// RespChoice is one element of Response.Choices. The core only ever deals
// with the first choice; n>1 sampling is out of scope.
type RespChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage carries OpenAI's token accounting field names.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Chunk is one streaming delta from /v1/chat/completions with
// stream:true, one JSON object per "data: " line, terminated by a
// "data: [DONE]" line that carries no chunk.
type Chunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is one element of Chunk.Choices.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta is the incremental fragment carried by one chunk: either a
// content fragment, a tool-call delta, or a role/metadata-only delta with
// neither set.
type ChunkDelta struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

const defaultMaxTokens = 1024
