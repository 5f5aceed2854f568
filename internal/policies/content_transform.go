package policies

import (
	"context"
	"strings"

	"github.com/luthien-proxy/luthien/internal/backend/openaicompat"
	"github.com/luthien-proxy/luthien/internal/chunkmodel"
	"github.com/luthien-proxy/luthien/internal/policy"
	"github.com/luthien-proxy/luthien/internal/txn"
)

// ContentTransform is a SimplePolicy that rewrites each completed content
// block with Transform, leaving tool calls untouched. With a nil
// Transform every block's original chunks are replayed verbatim when the
// block completes (unlike Noop, which forwards content as it arrives).
// When Transform returns its input unchanged,
// SimplePolicy's passthrough optimization kicks in automatically and the
// original chunks are replayed verbatim.
type ContentTransform struct {
	*policy.SimplePolicy[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]
	Transform func(text string) string
}

// NewContentTransform builds a ContentTransform policy using transform
// to rewrite completed content blocks.
func NewContentTransform(transform func(string) string) *ContentTransform {
	c := &ContentTransform{Transform: transform}
	simple := &policy.SimplePolicy[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]{
		BasePolicy: policy.BasePolicy[*openaicompat.Request, *openaicompat.Chunk, *openaicompat.Response]{
			Builder: openaicompat.Builder{},
		},
	}
	simple.OnResponseContent = c.onResponseContent
	c.SimplePolicy = simple
	return c
}

func (c *ContentTransform) onResponseContent(_ context.Context, block *chunkmodel.StreamBlock, _ *txn.Context) (policy.ContentDecision, error) {
	if c.Transform == nil {
		return policy.ContentDecision{}, nil
	}
	transformed := c.Transform(block.Text)
	if transformed == block.Text {
		return policy.ContentDecision{}, nil
	}
	return policy.ContentDecision{Replace: &transformed}, nil
}

// Uppercase returns a ContentTransform policy that uppercases every
// completed content block — the sample transform from the end-to-end
// "Uppercase SimplePolicy" scenario.
func Uppercase() *ContentTransform {
	return NewContentTransform(strings.ToUpper)
}
