package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	splitDir   string
	splitTrain string
	splitTest  string
	splitRatio float64
	splitSeed  int64
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a materialized dataset into training and test sets",
	Long: `Partition the dataset in --dir. A --ratio share of the records goes to
--train and the rest to --test; the same --seed always gives the same split.`,
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().StringVarP(&splitDir, "dir", "d", "", "Materialized dataset directory")
	splitCmd.Flags().StringVar(&splitTrain, "train", "", "Training set output directory")
	splitCmd.Flags().StringVar(&splitTest, "test", "", "Test set output directory")
	splitCmd.Flags().Float64Var(&splitRatio, "ratio", 0.8, "Training share in [0, 1]")
	splitCmd.Flags().Int64Var(&splitSeed, "seed", 0, "Random seed")
	splitCmd.MarkFlagRequired("dir")
	splitCmd.MarkFlagRequired("train")
	splitCmd.MarkFlagRequired("test")
}

func runSplit(cmd *cobra.Command, _ []string) error {
	d, err := openDataset(splitDir)
	if err != nil {
		return err
	}
	train, test, err := d.Split(splitTrain, splitTest, splitRatio, splitSeed)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "train: %d records in %s\ntest: %d records in %s\n",
		train.DataCount, train.LocalPath, test.DataCount, test.LocalPath)
	return nil
}
