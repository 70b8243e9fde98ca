package assets

import (
	"context"

	"golang.org/x/sync/errgroup"

	"cardforge/pkg/schema"
)

const DefaultParallelism = 4

// ClassifyAll classifies files concurrently. Result i belongs to files[i].
func (c *Classifier) ClassifyAll(ctx context.Context, files []schema.AssetFile, cc Context, parallelism int) []schema.AssetRenameResult {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	out := make([]schema.AssetRenameResult, len(files))

	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, f := range files {
		g.Go(func() error {
			out[i] = c.Classify(ctx, f, cc)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
