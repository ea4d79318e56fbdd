// Package datasets provides datasets whose records are described by a local
// manifest and whose payloads live in an object store.
//
// The pieces, in the order a training job uses them:
//
// Dataset
//   - Tracks where a dataset is materialized (LocalPath, DataCount, Created).
//   - Download delegates the bulk copy of manifest and payloads to a
//     Materializer; Open adopts an already materialized directory.
//   - Split partitions a materialized dataset into train and test datasets,
//     deterministically for a given seed.
//   - BuildRemote turns the local manifest into a RemoteDataset.
//
// RemoteDataset
//   - Immutable, index-addressable view over the manifest records.
//   - Payloads are fetched lazily, one record at a time, through a Worker.
//     Each Worker owns its own object-store client, created on first use.
//   - Fetched bytes go through the decode hook (DecodeImage by default), the
//     optional transform hook, and the target hook (TargetLabel by default).
//
// Decoded images are *Raster values; MakeImageBatchFlat and ToGomlxTensors
// pack a batch of them into gomlx tensors.
package datasets

import "context"

// Getter fetches one record. *RemoteDataset and *Worker implement it.
type Getter interface {
	Get(ctx context.Context, i int) (Sample, Label, error)
}

var (
	_ Getter = (*RemoteDataset)(nil)
	_ Getter = (*Worker)(nil)
)
