package main

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/tosdata/datasets"
)

const unlabeled = "unlabeled"

var (
	statsDir string
	statsOut string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count labels in a materialized dataset",
	Long: `Count the records of --dir per label and, with --out, draw the counts as a
bar chart PNG. Records whose annotation has no usable label are counted as
"unlabeled".`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsDir, "dir", "d", "", "Materialized dataset directory")
	statsCmd.Flags().StringVarP(&statsOut, "out", "o", "", "Write a label histogram PNG to this path")
	statsCmd.MarkFlagRequired("dir")
}

// labelCount is the number of records carrying one label.
type labelCount struct {
	Label string
	Count int
}

// countLabels tallies the default labels of d, numeric labels first in
// ascending order.
func countLabels(d *datasets.Dataset) ([]labelCount, error) {
	records, err := d.Records()
	if err != nil {
		return nil, err
	}
	counts := map[int]int{}
	missing := 0
	for _, rec := range records {
		l, err := datasets.TargetLabel(rec.Annotation)
		if err != nil {
			missing++
			continue
		}
		counts[l.(int)]++
	}

	labels := make([]int, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	out := make([]labelCount, 0, len(labels)+1)
	for _, l := range labels {
		out = append(out, labelCount{Label: strconv.Itoa(l), Count: counts[l]})
	}
	if missing > 0 {
		out = append(out, labelCount{Label: unlabeled, Count: missing})
	}
	return out, nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	d, err := openDataset(statsDir)
	if err != nil {
		return err
	}
	counts, err := countLabels(d)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d records\n", d.DataCount)
	for _, c := range counts {
		fmt.Fprintf(out, "%s\t%d\n", c.Label, c.Count)
	}
	if statsOut == "" {
		return nil
	}
	if err := plotLabels(statsOut, filepath.Base(d.LocalPath), counts); err != nil {
		return fmt.Errorf("failed to plot labels: %w", err)
	}
	logger.Info().Str("path", statsOut).Msg("wrote label histogram")
	return nil
}

// plotLabels writes a bar chart of counts to path.
func plotLabels(path, title string, counts []labelCount) error {
	p := plot.New()
	p.Title.Text = "Labels in " + title
	p.X.Label.Text = "label"
	p.Y.Label.Text = "records"

	values := make(plotter.Values, len(counts))
	names := make([]string, len(counts))
	for i, c := range counts {
		values[i] = float64(c.Count)
		names[i] = c.Label
	}
	if len(values) > 0 {
		bars, err := plotter.NewBarChart(values, vg.Points(18))
		if err != nil {
			return err
		}
		bars.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
		bars.LineStyle.Width = vg.Length(0)
		p.Add(bars)
		p.NominalX(names...)
	}
	p.Add(plotter.NewGrid())

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
