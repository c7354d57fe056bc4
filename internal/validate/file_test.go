package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dharsanguruparan/WallDrop/internal/model"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name    string
		file    model.SourceFile
		valid   bool
		errPart string
	}{
		{"jpeg under limit", model.SourceFile{Name: "a.jpg", Size: 1024, MimeType: "image/jpeg"}, true, ""},
		{"png at limit", model.SourceFile{Name: "b.png", Size: MaxFileSize, MimeType: "image/png"}, true, ""},
		{"webp", model.SourceFile{Name: "c.webp", Size: 10, MimeType: "image/webp"}, true, ""},
		{"one byte over", model.SourceFile{Name: "big.jpg", Size: MaxFileSize + 1, MimeType: "image/jpeg"}, false, "exceeds 10MB limit"},
		{"gif", model.SourceFile{Name: "anim.gif", Size: 10, MimeType: "image/gif"}, false, "not a supported image format"},
		{"pdf", model.SourceFile{Name: "doc.pdf", Size: 10, MimeType: "application/pdf"}, false, "not a supported image format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateFile(tt.file)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.Empty(t, got.Error)
				return
			}
			assert.Contains(t, got.Error, tt.errPart)
		})
	}
}
