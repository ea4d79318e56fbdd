package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Noofbiz/tosdata/manifest"
	"github.com/Noofbiz/tosdata/objstore"
	"github.com/Noofbiz/tosdata/objstore/dirstore"
)

// pngBytes encodes a w×h image filled with c.
func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// labelAnnotation returns an annotation in the default Result/Data/Label layout.
func labelAnnotation(label any) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"Result": []any{map[string]any{"Data": []any{map[string]any{"Label": label}}}},
	})
	return b
}

// manifestLine renders one manifest line for an image record.
func manifestLine(bucket, key, filePath string, annotation json.RawMessage) string {
	data := map[string]string{manifest.ImageURLField: "tos://" + bucket + "/" + key}
	if filePath != "" {
		data["FilePath"] = filePath
	}
	b, _ := json.Marshal(map[string]any{"Data": data, "Annotation": annotation})
	return string(b)
}

// writeLines writes a manifest file.
func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write manifest %s: %v", path, err)
	}
}

// newStore returns a directory-backed object store for the test.
func newStore(t *testing.T) *dirstore.Client {
	t.Helper()
	return dirstore.New(t.TempDir())
}

func putObject(t *testing.T, store *dirstore.Client, bucket, key string, data []byte) {
	t.Helper()
	if err := store.PutObject(bucket, key, data); err != nil {
		t.Fatalf("PutObject %s/%s failed: %v", bucket, key, err)
	}
}

// materializedDataset writes n records with local payload files into dir and
// returns the opened dataset.
func materializedDataset(t *testing.T, dir string, n int) *Dataset {
	t.Helper()
	lines := make([]string, n)
	for i := range n {
		rel := fmt.Sprintf("imgs/%03d.bin", i)
		if err := os.MkdirAll(filepath.Join(dir, "imgs"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, rel), []byte(fmt.Sprintf("payload-%d", i)), 0o644); err != nil {
			t.Fatal(err)
		}
		lines[i] = manifestLine("bucket", rel, rel, labelAnnotation(i))
	}
	writeLines(t, filepath.Join(dir, manifest.LocalFilename), lines)

	d := NewImageDataset(Options{})
	if err := d.Open(dir); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return d
}

// countingFactory wraps a store so every created client is counted and any
// concurrent use of one client is reported.
type countingFactory struct {
	store   objstore.Client
	created atomic.Int64
	shared  atomic.Bool
}

func (f *countingFactory) Factory() objstore.Factory {
	return func(context.Context) (objstore.Client, error) {
		f.created.Add(1)
		return &exclusiveClient{inner: f.store, shared: &f.shared}, nil
	}
}

type exclusiveClient struct {
	inner  objstore.Client
	busy   atomic.Bool
	shared *atomic.Bool
	closed atomic.Bool
}

func (c *exclusiveClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if !c.busy.CompareAndSwap(false, true) {
		c.shared.Store(true)
	}
	defer c.busy.Store(false)
	return c.inner.GetObject(ctx, bucket, key)
}

func (c *exclusiveClient) Close() error {
	c.closed.Store(true)
	return nil
}
