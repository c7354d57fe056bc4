package gcsstorage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicURL(t *testing.T) {
	s := NewWithClient(nil, "walls", "")
	assert.Equal(t, "https://storage.googleapis.com/walls/wallpapers/a%20b.jpg", s.PublicURL("wallpapers/a b.jpg"))

	s = NewWithClient(nil, "walls", "https://cdn.example.com/")
	assert.Equal(t, "https://cdn.example.com/wallpapers/a.jpg", s.PublicURL("wallpapers/a.jpg"))
}
