// Package s3blob implements the domain blob interfaces on the AWS SDK v2 S3
// client. The archive bucket usually lives on an S3-compatible store (MinIO
// in the default config), so the endpoint and path-style are configurable.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig locates the archive bucket.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint for S3-compatible stores. Empty
	// means real S3.
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// UseSSL picks the scheme when Endpoint is given without one.
	UseSSL bool
	// ForcePathStyle puts the bucket in the path instead of the subdomain.
	// MinIO and most self-hosted stores need this.
	ForcePathStyle bool
}

// Client is the shared S3 connection for the archive writer and reader.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New dials the configured store with static credentials.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: bucket and region are required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(resolveEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Health verifies the bucket is reachable with the configured credentials.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close exists for the closer stack; the SDK client has nothing to tear down.
func (c *Client) Close() error { return nil }

func (c *Client) S3() *s3.Client { return c.s3 }

func (c *Client) Bucket() string { return c.bucket }

// resolveEndpoint prepends a scheme when the configured endpoint lacks one.
func resolveEndpoint(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
