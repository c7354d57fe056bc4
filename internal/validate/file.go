// Package validate holds the pure checks applied to files, metadata rows and
// catalog payloads before they enter the pipeline.
package validate

import (
	"fmt"

	"github.com/dharsanguruparan/WallDrop/internal/model"
)

// MaxFileSize is the largest accepted source file (10 MiB).
const MaxFileSize int64 = 10 * 1024 * 1024

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// FileVerdict is the outcome of ValidateFile.
type FileVerdict struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidateFile checks the size and declared type of a source file.
func ValidateFile(f model.SourceFile) FileVerdict {
	if f.Size > MaxFileSize {
		return FileVerdict{Error: fmt.Sprintf("%s exceeds 10MB limit", f.Name)}
	}
	if !allowedImageTypes[f.MimeType] {
		return FileVerdict{Error: fmt.Sprintf("%s is not a supported image format", f.Name)}
	}
	return FileVerdict{Valid: true}
}

// IsSupportedImage reports whether mimeType is one of the accepted formats.
func IsSupportedImage(mimeType string) bool {
	return allowedImageTypes[mimeType]
}
