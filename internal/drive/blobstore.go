package drive

import (
	"context"
	"io"
	"time"
)

// BlobInfo is the metadata returned by a head request.
type BlobInfo struct {
	Size        int64
	ContentType string
}

// BlobStore is the object storage collaborator. Keys are always minted by the engine.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Head returns an error carrying ErrCodeNotFound when the key is absent.
	Head(ctx context.Context, key string) (BlobInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	IssueUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}
