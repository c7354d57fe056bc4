// Package objectstore defines the blob storage contract used for wallpaper
// images, plus an in-process implementation.
package objectstore

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ProgressFunc receives the cumulative number of bytes transferred.
type ProgressFunc func(written int64)

// Object describes a stored blob.
type Object struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Store is implemented by every blob backend.
type Store interface {
	// Put streams body under key. onProgress may be nil.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress ProgressFunc) error
	// PublicURL returns the durable URL under which key is served.
	PublicURL(key string) string
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName reduces a user supplied file name to a key-safe base name.
func SafeName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_.")
	if base == "" {
		return "wallpaper"
	}
	return base
}

// JoinURL appends an escaped key to a base URL.
func JoinURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// progressReader reports cumulative bytes read through fn.
type progressReader struct {
	r      io.Reader
	read   int64
	onRead ProgressFunc
}

// NewProgressReader wraps r so every Read reports the running total to fn.
func NewProgressReader(r io.Reader, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}
	return &progressReader{r: r, onRead: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.onRead(p.read)
	}
	return n, err
}
