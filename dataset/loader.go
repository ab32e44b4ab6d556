package dataset

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Batch is a consecutive run of samples.
type Batch struct {
	// Index is the position of the batch, starting at 0.
	Index   int
	Samples []Sample
	// LoadTime is how long decoding the batch took.
	LoadTime time.Duration
}

// Loader decodes a dataset in batches with a pool of workers.
//
// Batches are delivered in dataset order. The next batch is decoded while the current one is
// being consumed.
type Loader struct {
	ds        *Dataset
	batchSize int
	workers   int
}

// NewLoader creates a batched loader.
//
// Arguments:
//   - ds: The dataset to read.
//   - batchSize: The number of samples per batch.
//   - workers: The number of concurrent decodes; values below 1 decode one at a time.
//
// Returns:
//   - *Loader: The loader.
//   - error: When batchSize is not positive.
func NewLoader(ds *Dataset, batchSize, workers int) (*Loader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &Loader{ds: ds, batchSize: batchSize, workers: max(workers, 1)}, nil
}

// NumBatches returns how many batches Run delivers.
func (l *Loader) NumBatches() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// Run calls fn with every batch in order.
//
// Run stops at the first decode error, the first error returned by fn or when ctx is
// cancelled, and returns that error.
func (l *Loader) Run(ctx context.Context, fn func(Batch) error) error {
	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan Batch, 1)

	g.Go(func() error {
		defer close(batches)
		for b := 0; b < l.NumBatches(); b++ {
			batch, err := l.load(gctx, b)
			if err != nil {
				return err
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for batch := range batches {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(batch); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func (l *Loader) load(ctx context.Context, b int) (Batch, error) {
	began := time.Now()
	start := b * l.batchSize
	end := min(start+l.batchSize, l.ds.Len())
	samples := make([]Sample, end-start)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i := start; i < end; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := l.ds.Get(i)
			if err != nil {
				return err
			}
			samples[i-start] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, errors.Wrapf(err, "load batch %d", b)
	}
	return Batch{Index: b, Samples: samples, LoadTime: time.Since(began)}, nil
}
