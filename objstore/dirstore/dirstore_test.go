package dirstore

import (
	"context"
	"errors"
	"testing"

	"github.com/Noofbiz/tosdata/objstore"
)

func TestClient_PutGet(t *testing.T) {
	c := New(t.TempDir())
	if err := c.PutObject("bucket", "a/b/c.bin", []byte("payload")); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	data, err := objstore.Fetch(context.Background(), c, "bucket", "a/b/c.bin")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestClient_NotFound(t *testing.T) {
	c := New(t.TempDir())
	_, err := c.GetObject(context.Background(), "bucket", "missing")
	if !objstore.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *objstore.NotFoundError
	if !errors.As(err, &nf) || nf.Key != "missing" {
		t.Fatalf("expected NotFoundError for key, got %v", err)
	}
}

func TestClient_PathStaysInBucket(t *testing.T) {
	c := New("/data")
	p, err := c.Path("b", "../../etc/passwd")
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if p != "/data/b/etc/passwd" {
		t.Fatalf("key escaped bucket: %s", p)
	}
	if _, err := c.Path("../b", "k"); err == nil {
		t.Fatalf("expected invalid bucket error")
	}
}

func TestClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(t.TempDir()).GetObject(ctx, "b", "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
