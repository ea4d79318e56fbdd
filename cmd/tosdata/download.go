package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/tosdata/datasets"
	"github.com/Noofbiz/tosdata/materialize"
)

var (
	downloadURL     string
	downloadOut     string
	downloadLimit   int
	downloadWorkers int
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Materialize a dataset from its manifest URL",
	Long: `Fetch the manifest at --manifest-url, download every payload it lists
to <out>/<bucket>/<key> and write <out>/local_metadata.manifest.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadURL, "manifest-url", "", "Manifest location, tos://bucket/key")
	downloadCmd.Flags().StringVarP(&downloadOut, "out", "o", "", "Local dataset directory (default ImageDataset or TextDataset)")
	downloadCmd.Flags().IntVar(&downloadLimit, "limit", -1, "Maximum number of records; negative for all")
	downloadCmd.Flags().IntVar(&downloadWorkers, "workers", 0, "Concurrent downloads (default from config)")
	downloadCmd.MarkFlagRequired("manifest-url")
}

func runDownload(cmd *cobra.Command, _ []string) error {
	workers := cfg.Download.Workers
	if downloadWorkers > 0 {
		workers = downloadWorkers
	}
	m := materialize.New(storeFactory(), materialize.WithWorkers(workers), materialize.WithLogger(logger))

	d, err := newDataset(datasets.Options{ManifestURL: downloadURL, Materializer: m})
	if err != nil {
		return err
	}
	if err := d.Download(cmd.Context(), downloadOut, downloadLimit); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d records to %s\n", d.DataCount, d.LocalPath)
	return nil
}
