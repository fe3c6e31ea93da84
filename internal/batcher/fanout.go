package batcher

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/loomery/loom/internal/backend"
)

// fanOut adapts a single-call Generator to the BatchGenerator contract by
// issuing one concurrent call per request. If any member call fails, the
// whole batch fails so the batcher can resolve every member identically.
type fanOut struct {
	gen backend.Generator
}

// FanOut wraps a single-call backend for use where native batching is
// required.
func FanOut(gen backend.Generator) backend.BatchGenerator {
	return &fanOut{gen: gen}
}

// GenerateBatch implements backend.BatchGenerator.
func (f *fanOut) GenerateBatch(ctx context.Context, reqs []backend.Request) ([]string, error) {
	outs := make([]string, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			text, err := f.gen.Generate(gctx, req.Prompt, req.MaxTokens, req.Temperature)
			if err != nil {
				return err
			}
			outs[i] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outs, nil
}
