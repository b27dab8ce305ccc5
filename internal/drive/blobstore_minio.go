package drive

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/minio/minio-go/v7"
)

// MinioBlobStore implements BlobStore on any S3-compatible endpoint.
type MinioBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinioBlobStore wraps a minio client bound to one bucket.
func NewMinioBlobStore(client *minio.Client, bucket string) (*MinioBlobStore, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &MinioBlobStore{client: client, bucket: bucket}, nil
}

// Put uploads an object.
func (m *MinioBlobStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return errors.Wrapf(err, "put object %q", key)
	}
	return nil
}

// Head stats an object.
func (m *MinioBlobStore) Head(ctx context.Context, key string) (BlobInfo, error) {
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return BlobInfo{}, errors.WithStack(errNotFound("blob"))
		}
		return BlobInfo{}, errors.Wrapf(err, "stat object %q", key)
	}
	return BlobInfo{Size: info.Size, ContentType: info.ContentType}, nil
}

// Get opens an object for streaming.
func (m *MinioBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get object %q", key)
	}
	// GetObject is lazy, stat forces the request so a missing key surfaces here.
	if _, err = obj.Stat(); err != nil {
		_ = obj.Close()
		if isMinioNotFound(err) {
			return nil, errors.WithStack(errNotFound("blob"))
		}
		return nil, errors.Wrapf(err, "stat object %q", key)
	}
	return obj, nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (m *MinioBlobStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return nil
		}
		return errors.Wrapf(err, "remove object %q", key)
	}
	return nil
}

// Copy duplicates an object server-side.
func (m *MinioBlobStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: m.bucket, Object: srcKey},
	)
	if err != nil {
		if isMinioNotFound(err) {
			return errors.WithStack(errNotFound("blob"))
		}
		return errors.Wrapf(err, "copy object %q to %q", srcKey, dstKey)
	}
	return nil
}

// IssueUploadURL presigns a PUT for the given key.
func (m *MinioBlobStore) IssueUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	var (
		u   *url.URL
		err error
	)
	if contentType == "" {
		u, err = m.client.PresignedPutObject(ctx, m.bucket, key, ttl)
	} else {
		headers := http.Header{}
		headers.Set("Content-Type", contentType)
		u, err = m.client.PresignHeader(ctx, http.MethodPut, m.bucket, key, ttl, url.Values{}, headers)
	}
	if err != nil {
		return "", errors.Wrapf(err, "presign put %q", key)
	}
	return u.String(), nil
}

// isMinioNotFound reports whether minio answered with a missing key or bucket.
func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound
}
