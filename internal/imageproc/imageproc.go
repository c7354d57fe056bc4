// Package imageproc shrinks oversized wallpapers before upload.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/dharsanguruparan/WallDrop/internal/model"
)

const (
	skipBelow        = 500 * 1024
	keepBelow        = 2 * 1024 * 1024
	heavyAbove       = 5 * 1024 * 1024
	heavyQuality     = 0.7
	DefaultMaxWidth  = 1920
	DefaultMaxHeight = 1920
	DefaultQuality   = 0.85
)

// Options bounds the output image.
type Options struct {
	MaxWidth  int
	MaxHeight int
	// Quality is in (0, 1].
	Quality float64
}

func (o Options) withDefaults() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = DefaultMaxHeight
	}
	if o.Quality <= 0 || o.Quality > 1 {
		o.Quality = DefaultQuality
	}
	return o
}

// ProcessForUpload returns a smaller JPEG rendition of f when that is worth
// it, otherwise f unchanged. It never fails: undecodable input is returned as
// is.
func ProcessForUpload(f model.SourceFile, opts Options) model.SourceFile {
	opts = opts.withDefaults()
	if !strings.HasPrefix(f.MimeType, "image/") || int64(len(f.Data)) < skipBelow {
		return f
	}
	src, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return f
	}
	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), opts.MaxWidth, opts.MaxHeight)
	resize := w != b.Dx() || h != b.Dy()
	if !resize && len(f.Data) < keepBelow {
		return f
	}

	img := src
	if resize {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		img = dst
	}
	quality := opts.Quality
	if len(f.Data) > heavyAbove {
		quality = heavyQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: int(quality * 100)}); err != nil {
		return f
	}
	if buf.Len() >= len(f.Data) {
		return f
	}
	return model.SourceFile{
		Name:     f.Name,
		Size:     int64(buf.Len()),
		MimeType: "image/jpeg",
		Data:     buf.Bytes(),
	}
}

// Fit scales w×h down to fit within maxW×maxH, preserving the aspect ratio.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	ratio := float64(maxW) / float64(w)
	if r := float64(maxH) / float64(h); r < ratio {
		ratio = r
	}
	nw, nh := int(float64(w)*ratio+0.5), int(float64(h)*ratio+0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// DetectDimensions reads only the image header and returns "WIDTHxHEIGHT".
func DetectDimensions(data []byte) (string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image header: %w", err)
	}
	return fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), nil
}
