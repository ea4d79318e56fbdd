// Package dirstore serves objects from a local directory laid out as
// <root>/<bucket>/<key>. It is used for tests and for working against a
// mirrored copy of a bucket.
package dirstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/tosdata/objstore"
)

// Client reads objects below Root.
type Client struct {
	Root string
}

// New returns a client rooted at root.
func New(root string) *Client {
	return &Client{Root: root}
}

// Factory returns an objstore.Factory producing clients rooted at root.
func Factory(root string) objstore.Factory {
	return func(context.Context) (objstore.Client, error) {
		return New(root), nil
	}
}

// Path returns the file backing bucket/key. Keys that would escape the
// bucket directory are rejected.
func (c *Client) Path(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(c.Root, bucket, filepath.FromSlash(clean)), nil
}

func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := c.Path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &objstore.NotFoundError{Bucket: bucket, Key: key}
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// PutObject stores data at bucket/key, creating parent directories.
func (c *Client) PutObject(bucket, key string, data []byte) error {
	p, err := c.Path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p+".tmp", data, 0o644); err != nil {
		return err
	}
	return os.Rename(p+".tmp", p)
}

func (c *Client) Close() error { return nil }
