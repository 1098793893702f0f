// Package minio provides an origin backed by MinIO or any S3-compatible
// object store, for self-hosted deployments of the index pipeline.
package minio

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/hupe1980/addrgo/origin"
	"github.com/minio/minio-go/v7"
)

// Origin implements origin.Origin against a MinIO bucket.
// URLs passed to Fetch are treated as object keys relative to the configured
// prefix.
type Origin struct {
	client *minio.Client
	bucket string
	prefix string
}

// New creates a MinIO origin.
// rootPrefix is prepended to all keys (e.g. "address-index/").
func New(client *minio.Client, bucket, rootPrefix string) *Origin {
	return &Origin{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

// Fetch retrieves the full object body for key.
func (o *Origin) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, path.Join(o.prefix, key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, fmt.Errorf("fetch %s: %w", key, origin.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return body, nil
}
