package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/WallDrop/internal/model"
)

func TestValidateCSVRow(t *testing.T) {
	known := []string{"sunset.jpg", "forest_night.png"}
	categories := []string{"nature", "space"}

	t.Run("valid", func(t *testing.T) {
		v := ValidateCSVRow(model.CSVRow{"filename": "sunset.jpg", "title": "Sunset", "price": "2.50", "category": "Nature"}, 0, known, categories)
		assert.True(t, v.Valid)
		assert.Empty(t, v.Errors)
		assert.Empty(t, v.NewCategory)
	})

	t.Run("missing fields", func(t *testing.T) {
		v := ValidateCSVRow(model.CSVRow{"filename": " ", "title": ""}, 2, nil, nil)
		assert.False(t, v.Valid)
		assert.Equal(t, []string{"Row 3: Missing title", "Row 3: Missing filename"}, v.Errors)
	})

	t.Run("negative price", func(t *testing.T) {
		v := ValidateCSVRow(model.CSVRow{"filename": "sunset.jpg", "title": "Sunset", "price": "-5"}, 0, known, nil)
		assert.False(t, v.Valid)
		require.Len(t, v.Errors, 1)
		assert.Contains(t, v.Errors[0], "Invalid price")
	})

	t.Run("non numeric price", func(t *testing.T) {
		v := ValidateCSVRow(model.CSVRow{"filename": "sunset.jpg", "title": "Sunset", "price": "free"}, 0, nil, nil)
		assert.False(t, v.Valid)
	})

	for _, raw := range []string{"NaN", "Inf", "+Inf", "-Inf", "infinity"} {
		t.Run("non finite price "+raw, func(t *testing.T) {
			v := ValidateCSVRow(model.CSVRow{"filename": "sunset.jpg", "title": "Sunset", "price": raw}, 0, known, nil)
			assert.False(t, v.Valid)
			require.Len(t, v.Errors, 1)
			assert.Contains(t, v.Errors[0], "Invalid price")
		})
	}

	t.Run("partial filename is known", func(t *testing.T) {
		v := ValidateCSVRow(model.CSVRow{"filename": "forest", "title": "Forest"}, 0, known, nil)
		assert.True(t, v.Valid)
	})

	t.Run("filename match is case sensitive", func(t *testing.T) {
		v := ValidateCSVRow(model.CSVRow{"filename": "SUNSET.JPG", "title": "Sunset"}, 0, known, nil)
		assert.False(t, v.Valid)
		assert.Contains(t, v.Errors[0], "No uploaded file matches")
	})

	t.Run("new category is not an error", func(t *testing.T) {
		v := ValidateCSVRow(model.CSVRow{"filename": "sunset.jpg", "title": "Sunset", "category": "Retro"}, 0, known, categories)
		assert.True(t, v.Valid)
		assert.Equal(t, "retro", v.NewCategory)
	})
}

func TestEvaluateImport(t *testing.T) {
	good := RowVerdict{Index: 0, Valid: true, NewCategory: "retro"}
	bad := RowVerdict{Index: 1, Errors: []string{"Row 2: Invalid price \"-5\""}}

	report, err := EvaluateImport([]RowVerdict{good, bad, {Index: 2, Valid: true, NewCategory: "retro"}}, ModeWarning)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, report.ValidRows)
	assert.Len(t, report.Skipped, 1)
	assert.Equal(t, []string{"retro"}, report.NewCategory)

	report, err = EvaluateImport([]RowVerdict{bad}, ModeWarning)
	require.NoError(t, err)
	assert.Empty(t, report.ValidRows)
	assert.Equal(t, bad.Errors, report.Errors)

	_, err = EvaluateImport([]RowVerdict{bad}, ModeStrict)
	assert.True(t, errors.Is(err, ErrImportRejected))

	_, err = EvaluateImport([]RowVerdict{good, bad}, ModeStrict)
	assert.NoError(t, err)
}

func TestParseImportMode(t *testing.T) {
	assert.Equal(t, ModeStrict, ParseImportMode(" STRICT"))
	assert.Equal(t, ModeWarning, ParseImportMode(""))
	assert.Equal(t, ModeWarning, ParseImportMode("lenient"))
}

func TestParsePriceRejectsNonFinite(t *testing.T) {
	for _, raw := range []string{"NaN", "nan", "Inf", "+Inf", "-Inf"} {
		_, err := ParsePrice(raw)
		assert.Error(t, err, raw)
	}
	p, err := ParsePrice(" 3.5 ")
	require.NoError(t, err)
	assert.Equal(t, 3.5, p)
}
