package main

// Example command that walks the whole dataset lifecycle against a local
// mirror of a TOS bucket: materialize a manifest, split it, open the training
// set remotely and turn a small batch into gomlx tensors.
//
// Usage:
//   go run ./datasets/example -store ./mirror -manifest tos://meta/train.manifest
//
// The mirror is laid out as <store>/<bucket>/<key>, the same layout the
// download command produces.

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Noofbiz/tosdata/datasets"
	"github.com/Noofbiz/tosdata/materialize"
	"github.com/Noofbiz/tosdata/objstore/dirstore"
)

func main() {
	store := flag.String("store", "mirror", "directory holding <bucket>/<key> objects")
	manifestURL := flag.String("manifest", "tos://meta/train.manifest", "manifest location")
	work := flag.String("work", "", "working directory (default: a temp dir)")
	flag.Parse()

	ctx := context.Background()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	dir := *work
	if dir == "" {
		tmp, err := os.MkdirTemp("", "tosdata-example")
		if err != nil {
			log.Fatalf("failed to create work dir: %v", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	factory := dirstore.Factory(*store)
	ds := datasets.NewImageDataset(datasets.Options{
		ManifestURL:  *manifestURL,
		Materializer: materialize.New(factory, materialize.WithLogger(logger)),
		Logger:       &logger,
	})
	if err := ds.Download(ctx, filepath.Join(dir, "all"), -1); err != nil {
		log.Fatalf("failed to download dataset: %v", err)
	}
	fmt.Printf("Materialized %d records in %s\n", ds.DataCount, ds.LocalPath)

	train, test, err := ds.Split(filepath.Join(dir, "train"), filepath.Join(dir, "test"), 0.8, 0)
	if err != nil {
		log.Fatalf("failed to split dataset: %v", err)
	}
	fmt.Printf("Split into %d training and %d test records\n", train.DataCount, test.DataCount)

	remote, err := train.BuildRemote(factory)
	if err != nil {
		log.Fatalf("failed to open training set: %v", err)
	}

	n := min(8, remote.Len())
	if n == 0 {
		return
	}
	w := remote.Worker()
	defer w.Close()

	samples := make([]datasets.Sample, n)
	labels := make([]datasets.Label, n)
	for i := range n {
		samples[i], labels[i], err = w.Get(ctx, i)
		if err != nil {
			log.Fatalf("failed to fetch record %d: %v", i, err)
		}
	}

	// All images of a batch must share one size.
	flat, err := datasets.MakeImageBatchFlat(samples, labels)
	if err != nil {
		log.Fatalf("failed to make image batch: %v", err)
	}
	inT, laT, err := flat.ToGomlxTensors()
	if err != nil {
		log.Fatalf("failed to convert batch to gomlx tensors: %v", err)
	}
	fmt.Printf("Created image tensors for %d records (%dx%d): input=%T label=%T\n",
		flat.BatchSize, flat.Width, flat.Height, inT, laT)
}
