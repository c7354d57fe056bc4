// Package gcsstorage stores wallpaper images in a Google Cloud Storage bucket.
package gcsstorage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/dharsanguruparan/WallDrop/internal/objectstore"
)

const defaultBaseURL = "https://storage.googleapis.com"

// Storage implements objectstore.Store on top of a GCS bucket.
type Storage struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// New opens a GCS client using application default credentials.
func New(ctx context.Context, bucket, publicBaseURL string) (*Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}
	return NewWithClient(client, bucket, publicBaseURL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *storage.Client, bucket, publicBaseURL string) *Storage {
	base := publicBaseURL
	if base == "" {
		base = defaultBaseURL + "/" + bucket
	}
	return &Storage{client: client, bucket: bucket, baseURL: base}
}

// Put streams body through a resumable writer. Cancelling ctx aborts the
// upload and discards the partial object.
func (s *Storage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress objectstore.ProgressFunc) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"
	if onProgress != nil {
		w.ProgressFunc = onProgress
	}
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", key, err)
	}
	return nil
}

// PublicURL implements objectstore.Store.
func (s *Storage) PublicURL(key string) string {
	return objectstore.JoinURL(s.baseURL, key)
}

// List implements objectstore.Store.
func (s *Storage) List(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []objectstore.Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		out = append(out, objectstore.Object{
			Key:          attrs.Name,
			URL:          s.PublicURL(attrs.Name),
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	return out, nil
}

// Delete implements objectstore.Store.
func (s *Storage) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return objectstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Storage) Close() error {
	return s.client.Close()
}
