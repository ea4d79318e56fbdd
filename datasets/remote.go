package datasets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Noofbiz/tosdata/manifest"
	"github.com/Noofbiz/tosdata/objstore"
)

// FetchObserver is notified after every object fetch. Implementations must be
// safe for concurrent use.
type FetchObserver interface {
	ObserveFetch(bucket string, size int, elapsed time.Duration, err error)
}

// RemoteDataset is an immutable, index-addressable view over manifest records
// whose payloads live in the object store. Every Get fetches the payload
// again; nothing is cached.
//
// Fetching goes through a Worker. Each worker creates its own object-store
// client on first use and never shares it, so parallel loaders should create
// one worker per goroutine. The record arrays are read-only after
// construction and need no locking.
type RemoteDataset struct {
	buckets     []string
	keys        []string
	annotations []json.RawMessage

	factory   objstore.Factory
	decode    DecodeFunc
	transform TransformFunc
	target    TargetFunc
	observer  FetchObserver
	log       zerolog.Logger

	workers atomic.Int64
}

// RemoteOption configures a RemoteDataset.
type RemoteOption func(*RemoteDataset)

// WithDecode replaces the default image decoder. nil keeps the default.
func WithDecode(fn DecodeFunc) RemoteOption {
	return func(d *RemoteDataset) {
		if fn != nil {
			d.decode = fn
		}
	}
}

// WithTransform sets a hook applied to every decoded sample.
func WithTransform(fn TransformFunc) RemoteOption {
	return func(d *RemoteDataset) { d.transform = fn }
}

// WithTarget replaces the default label extractor. nil keeps the default.
func WithTarget(fn TargetFunc) RemoteOption {
	return func(d *RemoteDataset) {
		if fn != nil {
			d.target = fn
		}
	}
}

func WithObserver(o FetchObserver) RemoteOption {
	return func(d *RemoteDataset) { d.observer = o }
}

func WithLogger(l zerolog.Logger) RemoteOption {
	return func(d *RemoteDataset) { d.log = l }
}

// NewRemoteDataset builds a dataset from three parallel arrays; index i of
// each array describes the same record. The arrays are not copied and must
// not be modified afterwards.
func NewRemoteDataset(buckets, keys []string, annotations []json.RawMessage, factory objstore.Factory, opts ...RemoteOption) (*RemoteDataset, error) {
	if len(buckets) != len(keys) || len(buckets) != len(annotations) {
		return nil, fmt.Errorf("%w: %d buckets, %d keys, %d annotations",
			ErrInvalidManifest, len(buckets), len(keys), len(annotations))
	}
	if factory == nil {
		return nil, errors.New("remote dataset requires a client factory")
	}
	d := &RemoteDataset{
		buckets:     buckets,
		keys:        keys,
		annotations: annotations,
		factory:     factory,
		decode:      DecodeImage,
		target:      TargetLabel,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// FromRecords builds a dataset from parsed manifest records.
func FromRecords(records []manifest.Record, factory objstore.Factory, opts ...RemoteOption) (*RemoteDataset, error) {
	buckets := make([]string, len(records))
	keys := make([]string, len(records))
	annotations := make([]json.RawMessage, len(records))
	for i, rec := range records {
		buckets[i] = rec.Bucket
		keys[i] = rec.Key
		annotations[i] = rec.Annotation
	}
	return NewRemoteDataset(buckets, keys, annotations, factory, opts...)
}

// Len returns the number of records.
func (d *RemoteDataset) Len() int {
	return len(d.buckets)
}

// Locator returns the object location of record i.
func (d *RemoteDataset) Locator(i int) (manifest.Locator, error) {
	if err := d.checkIndex(i); err != nil {
		return manifest.Locator{}, err
	}
	return manifest.Locator{Bucket: d.buckets[i], Key: d.keys[i]}, nil
}

// Annotation returns the raw annotation of record i.
func (d *RemoteDataset) Annotation(i int) (json.RawMessage, error) {
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	return d.annotations[i], nil
}

func (d *RemoteDataset) checkIndex(i int) error {
	if i < 0 || i >= len(d.buckets) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(d.buckets))
	}
	return nil
}

// Worker returns a new fetch handle. The handle is not safe for concurrent
// use; give each goroutine its own and Close it when done.
func (d *RemoteDataset) Worker() *Worker {
	return &Worker{ds: d, id: d.workers.Add(1)}
}

// Get fetches, decodes and labels record i with a short-lived worker. Loops
// should hold a Worker instead so the client is reused.
func (d *RemoteDataset) Get(ctx context.Context, i int) (Sample, Label, error) {
	w := d.Worker()
	defer w.Close()
	return w.Get(ctx, i)
}

// Worker owns one object-store client, created lazily on the first fetch.
type Worker struct {
	ds     *RemoteDataset
	id     int64
	client objstore.Client
}

// ID is a process-unique worker number, for logs.
func (w *Worker) ID() int64 { return w.id }

func (w *Worker) clientFor(ctx context.Context) (objstore.Client, error) {
	if w.client != nil {
		return w.client, nil
	}
	c, err := w.ds.factory(ctx)
	if err != nil {
		return nil, err
	}
	w.ds.log.Debug().Int64("worker", w.id).Msg("created object store client")
	w.client = c
	return c, nil
}

// Fetch returns the raw payload bytes of record i.
func (w *Worker) Fetch(ctx context.Context, i int) ([]byte, error) {
	d := w.ds
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	bucket, key := d.buckets[i], d.keys[i]

	start := time.Now()
	c, err := w.clientFor(ctx)
	var data []byte
	if err == nil {
		data, err = objstore.Fetch(ctx, c, bucket, key)
	}
	if d.observer != nil {
		d.observer.ObserveFetch(bucket, len(data), time.Since(start), err)
	}
	if err != nil {
		d.log.Debug().Err(err).Int64("worker", w.id).Int("index", i).
			Str("bucket", bucket).Str("key", key).Msg("fetch failed")
		return nil, fmt.Errorf("%w: record %d (%s/%s): %w", ErrRemoteFetch, i, bucket, key, err)
	}
	return data, nil
}

// Get fetches record i and returns the decoded, transformed sample together
// with its label.
func (w *Worker) Get(ctx context.Context, i int) (Sample, Label, error) {
	d := w.ds
	raw, err := w.Fetch(ctx, i)
	if err != nil {
		return nil, nil, err
	}

	sample, err := d.decode(raw)
	if err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
		return nil, nil, fmt.Errorf("%w: record %d: %w", ErrDecode, i, err)
	}
	if d.transform != nil {
		if sample, err = d.transform(sample); err != nil {
			return nil, nil, fmt.Errorf("transform record %d: %w", i, err)
		}
	}

	label, err := d.target(d.annotations[i])
	if err != nil {
		if errors.Is(err, ErrLabel) {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
		return nil, nil, fmt.Errorf("%w: record %d: %w", ErrLabel, i, err)
	}
	return sample, label, nil
}

// Close releases the worker's client. The worker may be used again and will
// create a new client.
func (w *Worker) Close() error {
	if w.client == nil {
		return nil
	}
	err := w.client.Close()
	w.client = nil
	return err
}
