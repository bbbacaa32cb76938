package artifact

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Mirror copies artifacts to an S3-compatible bucket.
type S3Mirror struct {
	client *minio.Client
	bucket string
	logger *slog.Logger

	mu    sync.Mutex
	ready bool
}

// S3Options configures NewS3Mirror.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

func NewS3Mirror(opts S3Options, logger *slog.Logger) (*S3Mirror, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	logger.Info("Artifact mirror configured", "endpoint", opts.Endpoint, "bucket", opts.Bucket)
	return &S3Mirror{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// ensureBucket creates the bucket on first successful use.
func (m *S3Mirror) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return nil
	}
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
	}
	m.ready = true
	return nil
}

func (m *S3Mirror) Put(ctx context.Context, key string, body []byte) error {
	if err := m.ensureBucket(ctx); err != nil {
		return err
	}

	_, err := m.client.PutObject(
		ctx,
		m.bucket,
		key,
		bytes.NewReader(body),
		int64(len(body)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"},
	)
	if err != nil {
		return fmt.Errorf("failed to store object in S3: %w", err)
	}

	m.logger.Debug("Artifact mirrored", "bucket", m.bucket, "key", key)
	return nil
}
