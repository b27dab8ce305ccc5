// Package s3 builds clients for S3-compatible object stores.
package s3

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DialInfo describes an S3-compatible endpoint.
type DialInfo struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Secure    bool
}

// NewClient creates a minio client and verifies the bucket exists.
func NewClient(ctx context.Context, info DialInfo) (*minio.Client, error) {
	if info.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	if info.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	client, err := minio.New(info.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(info.AccessKey, info.SecretKey, ""),
		Secure: info.Secure,
		Region: info.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new minio client")
	}

	exists, err := client.BucketExists(ctx, info.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "check bucket %q", info.Bucket)
	}
	if !exists {
		return nil, errors.Errorf("bucket %q does not exist", info.Bucket)
	}

	return client, nil
}
