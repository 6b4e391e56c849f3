package filter

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/posterarr/art"
)

// EvaluatorOption configures an evaluator
type EvaluatorOption func(*Evaluator)

// WithWorkers sets the number of concurrent chunks
func WithWorkers(workers int) EvaluatorOption {
	return func(e *Evaluator) {
		if workers > 0 {
			e.workerCount = workers
		}
	}
}

// WithBatchSize sets the minimum chunk size for concurrent evaluation
func WithBatchSize(size int) EvaluatorOption {
	return func(e *Evaluator) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// IDFunc returns the external ids a filter sees for an item
type IDFunc func(art.MediaItem) art.ExternalIDs

// GUIDIDs parses ids from the item's own identifier strings
func GUIDIDs(item art.MediaItem) art.ExternalIDs {
	return art.ParseExternalIDs(item.GUIDs...)
}

// Evaluator selects the items of a library that match a filter
type Evaluator struct {
	workerCount int
	batchSize   int
}

// NewEvaluator creates an evaluator sized to GOMAXPROCS
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		workerCount: runtime.GOMAXPROCS(0),
		batchSize:   100,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Select returns the matching items in their original order. ids supplies
// the external ids of each item; nil means GUIDIDs. Large libraries are
// split into chunks evaluated concurrently, so ids must be safe for
// concurrent use.
func (e *Evaluator) Select(ctx context.Context, filter Filter, items []art.MediaItem, ids IDFunc) ([]art.MediaItem, error) {
	if len(items) == 0 {
		return []art.MediaItem{}, nil
	}
	if ids == nil {
		ids = GUIDIDs
	}

	// Small libraries are not worth the goroutines
	if len(items) < e.batchSize {
		return selectChunk(filter, items, ids), nil
	}

	chunkSize := max(len(items)/e.workerCount, e.batchSize)
	chunks := make([][]art.MediaItem, (len(items)+chunkSize-1)/chunkSize)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workerCount)

	for i := range chunks {
		start := i * chunkSize
		end := min(start+chunkSize, len(items))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunks[i] = selectChunk(filter, items[start:end], ids)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	matches := make([]art.MediaItem, 0, total)
	for _, c := range chunks {
		matches = append(matches, c...)
	}
	return matches, nil
}

func selectChunk(filter Filter, items []art.MediaItem, ids IDFunc) []art.MediaItem {
	matches := make([]art.MediaItem, 0, len(items)/4)
	for _, item := range items {
		if filter.Evaluate(item, ids(item)) {
			matches = append(matches, item)
		}
	}
	return matches
}
