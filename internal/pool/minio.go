package pool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/cenk/backoff"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ralt/aptpool/internal/models"
	"github.com/sirupsen/logrus"
)

const debContentType = "application/vnd.debian.binary-package"

// MinioBackend stores the pool in an S3 compatible bucket. Object PUTs are
// atomic, so readers never see partial archives.
type MinioBackend struct {
	client     *minio.Client
	bucket     string
	prefix     string
	maxRetries uint64
}

// NewMinioBackend connects to the bucket described by cfg
func NewMinioBackend(cfg models.MinioConfig) (*MinioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: connect %s: %w", cfg.Endpoint, err)
	}
	return &MinioBackend{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		maxRetries: 3,
	}, nil
}

func (m *MinioBackend) key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// retry runs op with exponential backoff. Not-found errors are final.
func (m *MinioBackend) retry(ctx context.Context, op func() error) error {
	var final error
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		err := op()
		if err != nil && isNoSuchKey(err) {
			final = err
			return nil
		}
		if err != nil {
			logrus.WithError(err).Debug("minio: retrying")
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, m.maxRetries), ctx))
	if final != nil {
		return translateError(final)
	}
	return translateError(err)
}

// Put implements Backend.Put
func (m *MinioBackend) Put(ctx context.Context, name string, data []byte) error {
	return m.retry(ctx, func() error {
		_, err := m.client.PutObject(ctx, m.bucket, m.key(name), bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: debContentType})
		return err
	})
}

// Open implements Backend.Open. The object is buffered so retries cover
// the whole download.
func (m *MinioBackend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	var data []byte
	err := m.retry(ctx, func() error {
		obj, err := m.client.GetObject(ctx, m.bucket, m.key(name), minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer obj.Close()
		data, err = io.ReadAll(obj)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("minio: get %q: %w", name, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Stat implements Backend.Stat
func (m *MinioBackend) Stat(ctx context.Context, name string) (int64, error) {
	var size int64
	err := m.retry(ctx, func() error {
		info, err := m.client.StatObject(ctx, m.bucket, m.key(name), minio.StatObjectOptions{})
		if err != nil {
			return err
		}
		size = info.Size
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("minio: stat %q: %w", name, err)
	}
	return size, nil
}

// Remove implements Backend.Remove
func (m *MinioBackend) Remove(ctx context.Context, name string) error {
	err := m.retry(ctx, func() error {
		return m.client.RemoveObject(ctx, m.bucket, m.key(name), minio.RemoveObjectOptions{})
	})
	if err != nil {
		return fmt.Errorf("minio: remove %q: %w", name, err)
	}
	return nil
}

// Walk implements Backend.Walk
func (m *MinioBackend) Walk(ctx context.Context, dir string, fn func(name string, size int64) error) error {
	// stops the listing goroutine when fn bails out early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := m.key(dir) + "/"
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("minio: list %q: %w", dir, translateError(obj.Err))
		}
		name := obj.Key
		if m.prefix != "" {
			name = strings.TrimPrefix(name, m.prefix+"/")
		}
		if err := fn(name, obj.Size); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// translateError maps missing objects to fs.ErrNotExist
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if isNoSuchKey(err) {
		return fmt.Errorf("%v: %w", err, fs.ErrNotExist)
	}
	return err
}
