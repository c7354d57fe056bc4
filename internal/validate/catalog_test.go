package validate

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceAcceptsNumbersAndStrings(t *testing.T) {
	var in CatalogInput
	require.NoError(t, json.Unmarshal([]byte(`{"price":"4.99"}`), &in))
	assert.Equal(t, Price(4.99), in.Price)

	require.NoError(t, json.Unmarshal([]byte(`{"price":3}`), &in))
	assert.Equal(t, Price(3), in.Price)

	assert.Error(t, json.Unmarshal([]byte(`{"price":"cheap"}`), &in))
	assert.Error(t, json.Unmarshal([]byte(`{"price":"NaN"}`), &in))
	assert.Error(t, json.Unmarshal([]byte(`{"price":"+Inf"}`), &in))
}

func TestCatalogValidation(t *testing.T) {
	v := NewValidator()

	valid := CatalogInput{
		Title:    "Aurora",
		Category: "nature",
		Tags:     []string{"sky", "night"},
		Price:    1.5,
		ImageURL: "https://cdn.example.com/wallpapers/aurora.jpg",
	}
	require.NoError(t, v.Catalog(valid))

	invalid := valid
	invalid.Title = ""
	invalid.Price = -1
	invalid.ImageURL = "not a url"
	invalid.Tags = []string{strings.Repeat("x", 31)}

	err := v.Catalog(invalid)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))

	fields := map[string]string{}
	for _, f := range ve.Fields {
		fields[f.Field] = f.Rule
	}
	assert.Equal(t, "required", fields["title"])
	assert.Equal(t, "gte", fields["price"])
	assert.Equal(t, "url", fields["imageUrl"])
	assert.Equal(t, "max", fields["tags[0]"])
}

func TestCatalogInputMetadataNormalizes(t *testing.T) {
	md := CatalogInput{Title: " Aurora ", Category: " Nature", Tags: []string{" sky", ""}, Price: 2}.Metadata()
	assert.Equal(t, "Aurora", md.Title)
	assert.Equal(t, "nature", md.Category)
	assert.Equal(t, []string{"sky"}, md.Tags)
	assert.Equal(t, 2.0, md.Price)
}
