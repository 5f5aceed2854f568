// Package policies provides reference Policy implementations exercising
// every hook: a no-op pass-through, a SimplePolicy content transform, and
// a tool-call judge that blocks destructive calls. Each is concretized
// over the OpenAI-compatible request/chunk/response types; the same
// shapes apply verbatim to an Anthropic-compatible instantiation since
// Policy is generic over Req/Chunk/Resp.
package policies

import (
	"github.com/luthien-proxy/luthien/internal/backend/openaicompat"
	"github.com/luthien-proxy/luthien/internal/policy"
)

// Noop implements every hook with the default pass-through behavior. It
// exists as a named, documented baseline for tests and for operators who
// want to run the pipeline with no policy logic at all.
type Noop struct {
	policy.BasePolicy[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]
}

// NewNoop builds a Noop policy wired to openaicompat's chunk builder.
func NewNoop() *Noop {
	return &Noop{policy.BasePolicy[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]{
		Builder: openaicompat.Builder{},
	}}
}
