// Package s3storage stores wallpaper images in MinIO or any S3 compatible
// service.
package s3storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/WallDrop/internal/config"
	"github.com/dharsanguruparan/WallDrop/internal/objectstore"
)

// Storage wraps MinIO/S3 interactions for the wallpaper bucket.
type Storage struct {
	client  *minio.Client
	bucket  string
	region  string
	baseURL string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = client.EndpointURL().String() + "/" + cfg.Bucket
	}
	return &Storage{
		client:  client,
		bucket:  cfg.Bucket,
		region:  cfg.S3Region,
		baseURL: baseURL,
	}, nil
}

// EnsureBucket makes sure the wallpaper bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put uploads an image. minio-go feeds every chunk it sends through the
// Progress reader, which is how transfer progress is observed.
func (s *Storage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress objectstore.ProgressFunc) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if onProgress != nil {
		opts.Progress = &progressSink{fn: onProgress}
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, body, size, opts); err != nil {
		return fmt.Errorf("upload object %s: %w", key, err)
	}
	return nil
}

// PublicURL implements objectstore.Store.
func (s *Storage) PublicURL(key string) string {
	return objectstore.JoinURL(s.baseURL, key)
}

// List returns every object under prefix.
func (s *Storage) List(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	var out []objectstore.Object
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		out = append(out, objectstore.Object{
			Key:          obj.Key,
			URL:          s.PublicURL(obj.Key),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

// Delete removes an object.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return objectstore.ErrNotFound
		}
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// progressSink receives a copy of every chunk minio-go uploads.
type progressSink struct {
	written atomic.Int64
	fn      objectstore.ProgressFunc
}

func (p *progressSink) Read(b []byte) (int, error) {
	p.fn(p.written.Add(int64(len(b))))
	return len(b), nil
}
