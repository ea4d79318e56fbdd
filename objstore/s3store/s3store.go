// Package s3store implements objstore.Client on top of the aws-sdk-go-v2 S3
// client, pointed at the TOS S3-compatible endpoint.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/Noofbiz/tosdata/config"
	"github.com/Noofbiz/tosdata/objstore"
)

// Client is an objstore.Client backed by its own S3 client and HTTP
// transport, so no connection state is shared between clients.
type Client struct {
	s3        *s3.Client
	transport *http.Transport
}

// Factory returns an objstore.Factory creating one Client per call from cfg.
// cred overrides cfg.Credential when non-nil; with neither set the aws
// default credential chain is used.
func Factory(cfg config.Config, cred *config.Credential) objstore.Factory {
	return func(ctx context.Context) (objstore.Client, error) {
		return New(ctx, cfg, cred)
	}
}

// New creates a Client for cfg.
func New(ctx context.Context, cfg config.Config, cred *config.Credential) (*Client, error) {
	endpoint, err := cfg.TOSEndpoint()
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(&http.Client{Transport: transport}),
	}
	if c := cfg.ResolveCredential(cred); !c.Empty() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, c.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = cfg.PathStyle
	})
	return &Client{s3: client, transport: transport}, nil
}

func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &objstore.NotFoundError{Bucket: bucket, Key: key}
		}
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// Close drops the idle connections of this client's transport.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return true
		}
	}
	return false
}
