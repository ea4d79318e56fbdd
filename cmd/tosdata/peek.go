package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/tosdata/datasets"
)

var (
	peekDir     string
	peekIndices []int
)

var peekCmd = &cobra.Command{
	Use:   "peek",
	Short: "Fetch records from the object store and describe them",
	Long: `Read the local manifest in --dir, fetch the payloads of the given record
indices from the object store and print their size and label.`,
	RunE: runPeek,
}

func init() {
	peekCmd.Flags().StringVarP(&peekDir, "dir", "d", "", "Materialized dataset directory")
	peekCmd.Flags().IntSliceVarP(&peekIndices, "index", "i", []int{0}, "Record indices to fetch")
	peekCmd.MarkFlagRequired("dir")
}

func runPeek(cmd *cobra.Command, _ []string) error {
	d, err := openDataset(peekDir)
	if err != nil {
		return err
	}
	ds, err := d.BuildRemote(storeFactory())
	if err != nil {
		return err
	}
	w := ds.Worker()
	defer w.Close()

	out := cmd.OutOrStdout()
	for _, i := range peekIndices {
		loc, err := ds.Locator(i)
		if err != nil {
			return err
		}
		sample, label, err := w.Get(cmd.Context(), i)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d\t%s\tlabel=%v\t", i, loc, label)
		describe(out, sample)
	}
	return nil
}

func describe(out io.Writer, s datasets.Sample) {
	switch v := s.(type) {
	case *datasets.Raster:
		fmt.Fprintf(out, "image %dx%d\n", v.Width, v.Height)
	case string:
		fmt.Fprintf(out, "text %d bytes\n", len(v))
	default:
		fmt.Fprintf(out, "%T\n", v)
	}
}
