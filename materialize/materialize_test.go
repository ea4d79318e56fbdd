package materialize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/Noofbiz/tosdata/datasets"
	"github.com/Noofbiz/tosdata/manifest"
	"github.com/Noofbiz/tosdata/objstore"
	"github.com/Noofbiz/tosdata/objstore/dirstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// seedStore puts n payloads and a manifest listing them into a fresh store.
func seedStore(t *testing.T, n int) *dirstore.Client {
	t.Helper()
	store := dirstore.New(t.TempDir())
	var lines []string
	for i := range n {
		key := fmt.Sprintf("images/%02d.jpg", i)
		if err := store.PutObject("pics", key, []byte(fmt.Sprintf("bytes-%d", i))); err != nil {
			t.Fatal(err)
		}
		lines = append(lines, fmt.Sprintf(
			`{"Data":{"ImageURL":"tos://pics/%s"},"Annotation":{"Result":[{"Data":[{"Label":%d}]}]}}`, key, i%3))
	}
	if err := store.PutObject("meta", "train.manifest", []byte(strings.Join(lines, "\n")+"\n")); err != nil {
		t.Fatal(err)
	}
	return store
}

func request(dir string, limit int) datasets.MaterializeRequest {
	return datasets.MaterializeRequest{
		ManifestURL: "tos://meta/train.manifest",
		LocalPath:   dir,
		URLField:    manifest.ImageURLField,
		Limit:       limit,
	}
}

func TestMaterialize(t *testing.T) {
	store := seedStore(t, 20)
	dir := t.TempDir()

	var created atomic.Int64
	factory := func(ctx context.Context) (objstore.Client, error) {
		created.Add(1)
		return dirstore.New(store.Root), nil
	}

	n, err := New(factory, WithWorkers(3)).Materialize(context.Background(), request(dir, -1))
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if n != 20 {
		t.Fatalf("count = %d, want 20", n)
	}
	// One client for the manifest plus one per worker.
	if got := created.Load(); got != 4 {
		t.Fatalf("created %d clients, want 4", got)
	}

	records, err := manifest.Parse(filepath.Join(dir, manifest.LocalFilename), manifest.ImageURLField)
	if err != nil {
		t.Fatalf("local manifest: %v", err)
	}
	var keys []string
	for i, rec := range records {
		keys = append(keys, rec.Key)
		want := "pics/" + rec.Key
		if rec.FilePath != want {
			t.Fatalf("record %d FilePath = %q, want %q", i, rec.FilePath, want)
		}
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rec.FilePath)))
		if err != nil {
			t.Fatalf("payload %d missing: %v", i, err)
		}
		if string(data) != fmt.Sprintf("bytes-%d", i) {
			t.Fatalf("payload %d = %q", i, data)
		}
		if label, err := datasets.TargetLabel(rec.Annotation); err != nil || label != i%3 {
			t.Fatalf("record %d label = %v, %v", i, label, err)
		}
	}
	var want []string
	for i := range 20 {
		want = append(want, fmt.Sprintf("images/%02d.jpg", i))
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("record order changed (-want +got):\n%s", diff)
	}
}

func TestMaterialize_Limit(t *testing.T) {
	store := seedStore(t, 10)
	for _, tt := range []struct{ limit, want int }{{0, 0}, {4, 4}, {10, 10}, {50, 10}, {-1, 10}} {
		dir := t.TempDir()
		n, err := New(dirstore.Factory(store.Root)).Materialize(context.Background(), request(dir, tt.limit))
		if err != nil {
			t.Fatalf("limit %d: %v", tt.limit, err)
		}
		if n != tt.want {
			t.Fatalf("limit %d: count = %d, want %d", tt.limit, n, tt.want)
		}
		if got, err := manifest.Count(filepath.Join(dir, manifest.LocalFilename)); err != nil || got != tt.want {
			t.Fatalf("limit %d: manifest has %d lines, %v", tt.limit, got, err)
		}
		entries, _ := os.ReadDir(filepath.Join(dir, "pics", "images"))
		if len(entries) != tt.want {
			t.Fatalf("limit %d: %d payloads downloaded", tt.limit, len(entries))
		}
	}
}

func TestMaterialize_MissingPayload(t *testing.T) {
	store := seedStore(t, 6)
	if err := os.Remove(filepath.Join(store.Root, "pics", "images", "03.jpg")); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	_, err := New(dirstore.Factory(store.Root), WithWorkers(2)).Materialize(context.Background(), request(dir, -1))
	if !errors.Is(err, datasets.ErrRemoteFetch) || !objstore.IsNotFound(err) {
		t.Fatalf("expected not-found fetch error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, manifest.LocalFilename)); !os.IsNotExist(err) {
		t.Fatalf("manifest written after failure: %v", err)
	}
}

func TestMaterialize_BadManifest(t *testing.T) {
	store := dirstore.New(t.TempDir())
	if err := store.PutObject("meta", "train.manifest", []byte("{\"Data\":{}}\n")); err != nil {
		t.Fatal(err)
	}
	m := New(dirstore.Factory(store.Root))

	_, err := m.Materialize(context.Background(), request(t.TempDir(), -1))
	if !errors.Is(err, manifest.ErrMalformedManifest) {
		t.Fatalf("expected ErrMalformedManifest, got %v", err)
	}

	req := request(t.TempDir(), -1)
	req.ManifestURL = "tos://meta/absent.manifest"
	if _, err := m.Materialize(context.Background(), req); !objstore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	req.ManifestURL = "not a url"
	if _, err := m.Materialize(context.Background(), req); err == nil {
		t.Fatalf("expected error for invalid manifest url")
	}
}

func TestMaterialize_Canceled(t *testing.T) {
	store := seedStore(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(dirstore.Factory(store.Root)).Materialize(ctx, request(t.TempDir(), -1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDatasetDownload(t *testing.T) {
	store := seedStore(t, 5)
	d := datasets.NewImageDataset(datasets.Options{
		ManifestURL:  "tos://meta/train.manifest",
		Materializer: New(dirstore.Factory(store.Root)),
	})
	dir := filepath.Join(t.TempDir(), "ImageDataset")
	if err := d.Download(context.Background(), dir, -1); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !d.Created || d.DataCount != 5 {
		t.Fatalf("unexpected dataset state %+v", d)
	}

	train, test, err := d.Split(filepath.Join(dir, "..", "train"), filepath.Join(dir, "..", "test"), 0.8, 0)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if train.DataCount != 4 || test.DataCount != 1 {
		t.Fatalf("split %d/%d, want 4/1", train.DataCount, test.DataCount)
	}
	for _, part := range []*datasets.Dataset{train, test} {
		records, err := part.Records()
		if err != nil {
			t.Fatal(err)
		}
		for _, rec := range records {
			if _, err := os.Stat(filepath.Join(part.LocalPath, filepath.FromSlash(rec.FilePath))); err != nil {
				t.Fatalf("payload %s not copied to %s: %v", rec.FilePath, part.LocalPath, err)
			}
		}
	}
}
