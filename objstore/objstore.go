// Package objstore defines the object-store client contract used by remote
// datasets. Concrete clients live in the s3store and dirstore subpackages.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned (possibly wrapped) when bucket/key does not exist.
var ErrNotFound = errors.New("object not found")

// NotFoundError names the missing object.
type NotFoundError struct {
	Bucket string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s: object not found", e.Bucket, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IsNotFound reports whether err represents a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Client reads objects from a bucketed store. A Client is owned by a single
// worker; implementations are not required to be safe for concurrent use.
type Client interface {
	// GetObject opens the object body. The caller must close it.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Close releases the client's connections.
	Close() error
}

// Factory creates a new Client. Each call must return an independent client.
type Factory func(ctx context.Context) (Client, error)

// Fetch reads the whole object and closes the body.
func Fetch(ctx context.Context, c Client, bucket, key string) ([]byte, error) {
	body, err := c.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(body)
	if cerr := body.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}
