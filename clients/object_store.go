package clients

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/streamforge/vodflow/errors"
	"github.com/streamforge/vodflow/log"
)

const (
	// Multipart part size for streaming PUTs
	PutPartSize = 10 * 1024 * 1024
	// Copy buffer size for streaming GETs
	GetChunkSize = 8 * 1024 * 1024
)

// ObjectStore wraps an S3-compatible client with the operations the pipeline
// needs. It is stateless; retries belong to the caller's stage policy.
type ObjectStore struct {
	client *minio.Client
}

func NewObjectStore(endpoint, accessKey, secretKey string, useTLS bool) (*ObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client for %q: %w", endpoint, err)
	}
	return &ObjectStore{client: client}, nil
}

// EnsureBucket creates the bucket if it does not already exist.
func (o *ObjectStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := o.client.BucketExists(ctx, bucket)
	if err != nil {
		return errors.TransientIO(fmt.Errorf("failed to check bucket %q: %w", bucket, err))
	}
	if exists {
		return nil
	}
	if err := o.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.TransientIO(fmt.Errorf("failed to create bucket %q: %w", bucket, err))
	}
	log.LogNoVideoID("Created bucket", "bucket", bucket)
	return nil
}

// StreamPut uploads from a reader using multipart parts of PutPartSize.
// size may be -1 when unknown.
func (o *ObjectStore) StreamPut(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (int64, error) {
	info, err := o.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    PutPartSize,
	})
	if err != nil {
		return 0, errors.TransientIO(fmt.Errorf("failed to put %s/%s: %w", bucket, key, err))
	}
	return info.Size, nil
}

// StreamGet copies the object into w in GetChunkSize chunks and returns the
// number of bytes written.
func (o *ObjectStore) StreamGet(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	obj, err := o.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, errors.TransientIO(fmt.Errorf("failed to get %s/%s: %w", bucket, key, err))
	}
	defer obj.Close()

	buf := make([]byte, GetChunkSize)
	n, err := io.CopyBuffer(w, obj, buf)
	if err != nil {
		return n, errors.TransientIO(fmt.Errorf("failed to read %s/%s: %w", bucket, key, err))
	}
	return n, nil
}

// DownloadToFile streams the object to a local path and returns the bytes
// written.
func (o *ObjectStore) DownloadToFile(ctx context.Context, bucket, key, localPath string) (int64, error) {
	f, err := os.Create(localPath)
	if err != nil {
		return 0, errors.TransientIO(fmt.Errorf("failed to create local file %q: %w", localPath, err))
	}
	defer f.Close()

	n, err := o.StreamGet(ctx, bucket, key, f)
	if err != nil {
		return n, err
	}
	if err := f.Sync(); err != nil {
		return n, errors.TransientIO(fmt.Errorf("failed to sync local file %q: %w", localPath, err))
	}
	return n, nil
}

// PutFile uploads a local file and returns its size.
func (o *ObjectStore) PutFile(ctx context.Context, bucket, key, localPath string) (int64, error) {
	info, err := o.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: ContentTypeForFile(localPath),
		PartSize:    PutPartSize,
	})
	if err != nil {
		return 0, errors.TransientIO(fmt.Errorf("failed to upload %q to %s/%s: %w", localPath, bucket, key, err))
	}
	return info.Size, nil
}

func (o *ObjectStore) Delete(ctx context.Context, bucket, key string) error {
	if err := o.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.TransientIO(fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err))
	}
	return nil
}

// PresignedGet returns a time-limited GET URL for the object.
func (o *ObjectStore) PresignedGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := o.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

// ContentTypeForFile maps the HLS artifact extensions to their media types.
func ContentTypeForFile(localPath string) string {
	switch strings.ToLower(path.Ext(localPath)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
