package pipeline

import (
	"context"

	"github.com/luthien-proxy/luthien/internal/recorder"
	"github.com/luthien-proxy/luthien/internal/streaming"
)

// recordingSender decorates the generic egress sender so every chunk a
// policy pushes is also appended to the recorder's egress buffer, in the
// same order it was sent, so response reconstruction reflects exactly
// what reached the client.
type recordingSender[Chunk any] struct {
	inner streaming.Sender[Chunk]
	rec   *recorder.Recorder[Chunk]
}

func (s *recordingSender[Chunk]) Send(ctx context.Context, chunk Chunk) error {
	if err := s.inner.Send(ctx, chunk); err != nil {
		return err
	}
	s.rec.AppendEgress(chunk)
	return nil
}

func (s *recordingSender[Chunk]) Keepalive() {
	s.inner.Keepalive()
}
