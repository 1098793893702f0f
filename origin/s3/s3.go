// Package s3 provides an Amazon S3 backed origin.
//
// The ingestion pipeline uploads manifests and compressed bundles to blob
// storage before they are served through the CDN. Server-side consumers can
// read the same artifacts straight from the bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/addrgo/origin"
)

// Client is the subset of the S3 API the origin needs.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Origin implements origin.Origin against an S3 bucket.
// URLs passed to Fetch are treated as object keys relative to the configured
// prefix.
type Origin struct {
	client Client
	bucket string
	prefix string
}

// New creates an S3 origin from the default AWS configuration chain.
func New(ctx context.Context, bucket, rootPrefix string) (*Origin, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, rootPrefix), nil
}

// NewWithClient creates an S3 origin with an explicit client.
// rootPrefix is prepended to all keys (e.g. "address-index/").
func NewWithClient(client Client, bucket, rootPrefix string) *Origin {
	return &Origin{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

// Fetch retrieves the full object body for key.
func (o *Origin) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(path.Join(o.prefix, key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("fetch %s: %w", key, origin.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}
