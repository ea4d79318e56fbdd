// Package materialize copies a remote manifest and every payload it lists
// into a local dataset directory.
package materialize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/tosdata/datasets"
	"github.com/Noofbiz/tosdata/manifest"
	"github.com/Noofbiz/tosdata/objstore"
)

const defaultWorkers = 8

// Remote materializes datasets from an object store. Each download goroutine
// creates its own client from the factory.
type Remote struct {
	factory objstore.Factory
	workers int
	log     zerolog.Logger
}

type Option func(*Remote)

// WithWorkers bounds the number of concurrent payload downloads.
func WithWorkers(n int) Option {
	return func(r *Remote) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Remote) { r.log = l }
}

// New returns a materializer reading through clients made by factory.
func New(factory objstore.Factory, opts ...Option) *Remote {
	r := &Remote{factory: factory, workers: defaultWorkers, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ datasets.Materializer = (*Remote)(nil)

// Materialize fetches the manifest at req.ManifestURL, keeps the first
// req.Limit records when the limit is not negative, downloads each payload to
// <LocalPath>/<bucket>/<key> and writes the local manifest with every
// record's Data.FilePath pointing at its download. The first failure cancels
// the remaining downloads and no manifest is written.
func (r *Remote) Materialize(ctx context.Context, req datasets.MaterializeRequest) (int, error) {
	if r.factory == nil {
		return 0, errors.New("materializer has no client factory")
	}
	loc, err := manifest.ParseURL(req.ManifestURL)
	if err != nil {
		return 0, fmt.Errorf("manifest url: %w", err)
	}

	records, err := r.fetchManifest(ctx, loc, req.URLField)
	if err != nil {
		return 0, err
	}
	if req.Limit >= 0 && req.Limit < len(records) {
		records = records[:req.Limit]
	}
	r.log.Info().Str("manifest", loc.String()).Int("records", len(records)).
		Str("path", req.LocalPath).Msg("materializing dataset")

	if err := r.download(ctx, req.LocalPath, records); err != nil {
		return 0, err
	}
	if err := manifest.Write(records, filepath.Join(req.LocalPath, manifest.LocalFilename)); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (r *Remote) fetchManifest(ctx context.Context, loc manifest.Locator, urlField string) ([]manifest.Record, error) {
	c, err := r.factory(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	data, err := objstore.Fetch(ctx, c, loc.Bucket, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest %s: %w", loc, err)
	}
	records, err := manifest.Read(bytes.NewReader(data), urlField)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", loc, err)
	}
	return records, nil
}

// download fills records[i].FilePath. Workers own disjoint indices, so the
// slice needs no locking.
func (r *Remote) download(ctx context.Context, dir string, records []manifest.Record) error {
	if len(records) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	g.Go(func() error {
		defer close(jobs)
		for i := range records {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var done atomic.Int64
	for w := range min(r.workers, len(records)) {
		g.Go(func() error {
			c, err := r.factory(gctx)
			if err != nil {
				return err
			}
			defer c.Close()
			r.log.Debug().Int("worker", w).Msg("created object store client")

			for i := range jobs {
				rec := records[i]
				rel, err := relPath(rec.Locator)
				if err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
				if err := fetchTo(gctx, c, rec.Locator, filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
				if records[i], err = rec.WithFilePath(rel); err != nil {
					return err
				}
				if n := done.Add(1); n%1000 == 0 {
					r.log.Info().Int64("done", n).Int("total", len(records)).Msg("materialization progress")
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// relPath is where loc is stored below the dataset directory, in slash form.
func relPath(loc manifest.Locator) (string, error) {
	key := path.Clean("/" + loc.Key)
	if key == "/" || loc.Bucket == "" || loc.Bucket == "." || loc.Bucket == ".." {
		return "", fmt.Errorf("cannot store %s locally", loc)
	}
	return path.Join(loc.Bucket, key[1:]), nil
}

func fetchTo(ctx context.Context, c objstore.Client, loc manifest.Locator, dst string) error {
	data, err := objstore.Fetch(ctx, c, loc.Bucket, loc.Key)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", datasets.ErrRemoteFetch, loc, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
