// Package loader fetches records of a RemoteDataset in parallel and groups
// them into batches. It also implements the Name/Yield/Reset contract of a
// gomlx training dataset.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/tosdata/datasets"
)

const (
	defaultWorkers   = 4
	defaultBatchSize = 32
)

type Options struct {
	// Workers is the number of concurrent fetches. Each one owns a
	// datasets.Worker and therefore one object-store client.
	Workers   int
	BatchSize int
	// Shuffle reorders every epoch with a generator seeded by Seed and the
	// epoch number.
	Shuffle  bool
	Seed     int64
	DropLast bool
	Name     string
	Logger   *zerolog.Logger
}

// Item is one loaded record.
type Item struct {
	Index  int
	Sample datasets.Sample
	Label  datasets.Label
}

// Loader is not safe for concurrent use; it fans out internally.
type Loader struct {
	ds      *datasets.RemoteDataset
	opts    Options
	log     zerolog.Logger
	workers []*datasets.Worker

	epoch int
	order []int
	pos   int
}

func New(ds *datasets.RemoteDataset, opts Options) (*Loader, error) {
	if ds == nil {
		return nil, errors.New("loader requires a dataset")
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Name == "" {
		opts.Name = "tosdata"
	}
	l := &Loader{ds: ds, opts: opts, log: zerolog.Nop()}
	if opts.Logger != nil {
		l.log = *opts.Logger
	}
	l.workers = make([]*datasets.Worker, opts.Workers)
	for i := range l.workers {
		l.workers[i] = ds.Worker()
	}
	l.order = l.epochOrder()
	return l, nil
}

// Epoch is the number of completed Resets.
func (l *Loader) Epoch() int { return l.epoch }

func (l *Loader) epochOrder() []int {
	n := l.ds.Len()
	if !l.opts.Shuffle {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}
	rng := rand.New(rand.NewPCG(uint64(l.opts.Seed), uint64(l.epoch)))
	return rng.Perm(n)
}

// Load fetches the given indices and returns them in the same order. The
// first failure cancels the outstanding fetches and is returned.
func (l *Loader) Load(ctx context.Context, indices []int) ([]Item, error) {
	items := make([]Item, len(indices))
	if len(indices) == 0 {
		return items, nil
	}
	n := min(len(l.workers), len(indices))
	g, gctx := errgroup.WithContext(ctx)
	for w := range n {
		worker := l.workers[w]
		g.Go(func() error {
			for j := w; j < len(indices); j += n {
				if err := gctx.Err(); err != nil {
					return err
				}
				sample, label, err := worker.Get(gctx, indices[j])
				if err != nil {
					return err
				}
				items[j] = Item{Index: indices[j], Sample: sample, Label: label}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// next returns the indices of the next batch of the current epoch, or nil
// when the epoch is exhausted.
func (l *Loader) next() []int {
	rest := len(l.order) - l.pos
	if rest <= 0 || (l.opts.DropLast && rest < l.opts.BatchSize) {
		return nil
	}
	size := min(rest, l.opts.BatchSize)
	batch := l.order[l.pos : l.pos+size]
	l.pos += size
	return batch
}

// Batches runs one epoch from the current position, calling fn with every
// batch. It stops at the first error from loading or from fn.
func (l *Loader) Batches(ctx context.Context, fn func([]Item) error) error {
	for {
		indices := l.next()
		if indices == nil {
			return nil
		}
		items, err := l.Load(ctx, indices)
		if err != nil {
			return err
		}
		if err := fn(items); err != nil {
			return err
		}
	}
}

// Name identifies the dataset in gomlx training logs.
func (l *Loader) Name() string { return l.opts.Name }

// Reset starts the next epoch.
func (l *Loader) Reset() {
	l.epoch++
	l.order = l.epochOrder()
	l.pos = 0
	l.log.Debug().Int("epoch", l.epoch).Msg("loader reset")
}

// Yield loads the next batch of images and returns it as gomlx tensors: one
// input shaped [batch, height, width, 3] and one int32 label shaped [batch].
// It returns io.EOF at the end of the epoch.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	indices := l.next()
	if indices == nil {
		return nil, nil, nil, io.EOF
	}
	items, err := l.Load(context.Background(), indices)
	if err != nil {
		return nil, nil, nil, err
	}
	samples := make([]datasets.Sample, len(items))
	targets := make([]datasets.Label, len(items))
	for i, it := range items {
		samples[i], targets[i] = it.Sample, it.Label
	}
	batch, err := datasets.MakeImageBatchFlat(samples, targets)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("batch at epoch %d: %w", l.epoch, err)
	}
	in, lab, err := batch.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return l, []*tensors.Tensor{in}, []*tensors.Tensor{lab}, nil
}

// Close releases every worker's client.
func (l *Loader) Close() error {
	var errs []error
	for _, w := range l.workers {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}
