package datasets

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"github.com/Noofbiz/tosdata/manifest"
)

// splitStream is the second PCG word; the seed supplies the first.
const splitStream = 0x746f7364617461

// TestCount is the size of the test partition for n records when a ratio
// share goes to training: floor(n * (1 - ratio)). A small tolerance absorbs
// float error so that e.g. 10 * (1 - 0.8) counts as 2.
func TestCount(n int, ratio float64) int {
	k := int(math.Floor(float64(n)*(1-ratio) + 1e-9))
	return max(0, min(n, k))
}

// TestIndices draws TestCount(n, ratio) distinct indices from [0, n) without
// replacement, using a PCG generator seeded with seed. The result is sorted.
// The same (n, ratio, seed) always yields the same indices.
func TestIndices(n int, ratio float64, seed int64) []int {
	k := TestCount(n, ratio)
	rng := rand.New(rand.NewPCG(uint64(seed), splitStream))

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := range k {
		j := i + rng.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	out := slices.Clone(perm[:k])
	slices.Sort(out)
	return out
}

// Split partitions a materialized dataset into a training set and a test set.
// ratio is the training share. Both directories are created when missing.
//
// The source manifest is read once in order; every record's payload file is
// copied into the directory of its partition and the record is appended,
// unchanged, to that partition's manifest, so each output keeps the original
// relative order.
//
// A failure aborts the split. Neither manifest is written in that case, but
// payload files copied before the failure stay in the destination
// directories; running the split again overwrites them.
func Split(d *Dataset, trainDir, testDir string, ratio float64, seed int64) (train, test *Dataset, err error) {
	if !d.Created {
		return nil, nil, ErrNotMaterialized
	}
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return nil, nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, ratio)
	}
	if samePath(trainDir, testDir) {
		return nil, nil, fmt.Errorf("training and testing directories must differ: %s", trainDir)
	}
	if samePath(trainDir, d.LocalPath) || samePath(testDir, d.LocalPath) {
		return nil, nil, fmt.Errorf("split output must not be the source directory %s", d.LocalPath)
	}

	n := d.DataCount
	inTest := make([]bool, n)
	for _, i := range TestIndices(n, ratio, seed) {
		inTest[i] = true
	}

	for _, dir := range []string{trainDir, testDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	trainW, err := manifest.Create(filepath.Join(trainDir, manifest.LocalFilename))
	if err != nil {
		return nil, nil, err
	}
	defer trainW.Abort()
	testW, err := manifest.Create(filepath.Join(testDir, manifest.LocalFilename))
	if err != nil {
		return nil, nil, err
	}
	defer testW.Abort()

	err = manifest.EachFile(d.ManifestPath(), d.Kind.URLField(), func(rec manifest.Record) error {
		if rec.Index >= n {
			return fmt.Errorf("%w: manifest has more than %d records", ErrInvalidManifest, n)
		}
		dir, w := trainDir, trainW
		if inTest[rec.Index] {
			dir, w = testDir, testW
		}
		if rec.FilePath != "" {
			src, dst, err := payloadPaths(d.LocalPath, dir, rec.FilePath)
			if err != nil {
				return fmt.Errorf("record %d: %w", rec.Index, err)
			}
			if err := copyFile(src, dst); err != nil {
				return fmt.Errorf("record %d: %w", rec.Index, err)
			}
		}
		return w.Append(rec)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("split %s: %w", d.LocalPath, err)
	}
	if got := trainW.Count() + testW.Count(); got != n {
		return nil, nil, fmt.Errorf("split %s: %w: manifest has %d records, expected %d",
			d.LocalPath, ErrInvalidManifest, got, n)
	}

	if err := testW.Commit(); err != nil {
		return nil, nil, err
	}
	if err := trainW.Commit(); err != nil {
		return nil, nil, err
	}

	train = d.derive(trainDir, trainW.Count())
	test = d.derive(testDir, testW.Count())
	d.log.Info().
		Str("source", d.LocalPath).
		Float64("ratio", ratio).
		Int64("seed", seed).
		Int("train", train.DataCount).
		Int("test", test.DataCount).
		Msg("split dataset")
	return train, test, nil
}

// Split is shorthand for the package-level Split.
func (d *Dataset) Split(trainDir, testDir string, ratio float64, seed int64) (train, test *Dataset, err error) {
	return Split(d, trainDir, testDir, ratio, seed)
}
