package validate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/WallDrop/internal/categories"
	"github.com/dharsanguruparan/WallDrop/internal/model"
)

// ErrImportRejected is returned when a strict import yields no usable rows.
var ErrImportRejected = errors.New("metadata import rejected")

// ImportMode selects how row errors affect an import.
type ImportMode string

const (
	// ModeWarning imports valid rows and lists the rest as skipped.
	ModeWarning ImportMode = "warning"
	// ModeStrict rejects the whole import when no valid row remains.
	ModeStrict ImportMode = "strict"
)

// ParseImportMode maps user input to an ImportMode, defaulting to warning.
func ParseImportMode(s string) ImportMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeStrict)) {
		return ModeStrict
	}
	return ModeWarning
}

// RowVerdict is the outcome of ValidateCSVRow.
type RowVerdict struct {
	Index       int      `json:"index"`
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	NewCategory string   `json:"newCategory,omitempty"`
}

// ValidateCSVRow checks one metadata row. knownFiles and knownCategories are
// optional; a nil slice skips the corresponding check. A category missing from
// knownCategories is not an error, it is surfaced through NewCategory.
func ValidateCSVRow(row model.CSVRow, index int, knownFiles, knownCategories []string) RowVerdict {
	n := index + 1
	v := RowVerdict{Index: index}
	title := row.Get("title")
	filename := row.Get("filename")
	if title == "" {
		v.Errors = append(v.Errors, fmt.Sprintf("Row %d: Missing title", n))
	}
	if filename == "" {
		v.Errors = append(v.Errors, fmt.Sprintf("Row %d: Missing filename", n))
	} else if knownFiles != nil && !fileKnown(filename, knownFiles) {
		v.Errors = append(v.Errors, fmt.Sprintf("Row %d: No uploaded file matches %q", n, filename))
	}
	if category := categories.Normalize(row.Get("category")); category != "" && knownCategories != nil {
		found := false
		for _, c := range knownCategories {
			if c == category {
				found = true
				break
			}
		}
		if !found {
			v.NewCategory = category
		}
	}
	if raw := row.Get("price"); raw != "" {
		if _, err := ParsePrice(raw); err != nil {
			v.Errors = append(v.Errors, fmt.Sprintf("Row %d: Invalid price %q", n, raw))
		}
	}
	v.Valid = len(v.Errors) == 0
	return v
}

// ParsePrice parses a non-negative decimal price.
func ParsePrice(raw string) (float64, error) {
	p, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse price: %w", err)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("price %q is not a finite number", raw)
	}
	if p < 0 {
		return 0, fmt.Errorf("price %v is negative", p)
	}
	return p, nil
}

// fileKnown matches case-sensitively: equal, substring of, or containing.
func fileKnown(filename string, known []string) bool {
	for _, k := range known {
		if k == filename || strings.Contains(k, filename) || strings.Contains(filename, k) {
			return true
		}
	}
	return false
}

// ImportReport aggregates row verdicts.
type ImportReport struct {
	Mode        ImportMode   `json:"mode"`
	ValidRows   []int        `json:"validRows"`
	Skipped     []RowVerdict `json:"skipped,omitempty"`
	Errors      []string     `json:"errors,omitempty"`
	NewCategory []string     `json:"newCategories,omitempty"`
}

// EvaluateImport decides which rows proceed. In strict mode it returns
// ErrImportRejected when no row is valid; the report is returned either way.
func EvaluateImport(verdicts []RowVerdict, mode ImportMode) (ImportReport, error) {
	report := ImportReport{Mode: mode, ValidRows: []int{}}
	seen := map[string]bool{}
	for _, v := range verdicts {
		if v.Valid {
			report.ValidRows = append(report.ValidRows, v.Index)
			if v.NewCategory != "" && !seen[v.NewCategory] {
				seen[v.NewCategory] = true
				report.NewCategory = append(report.NewCategory, v.NewCategory)
			}
			continue
		}
		report.Skipped = append(report.Skipped, v)
		report.Errors = append(report.Errors, v.Errors...)
	}
	if mode == ModeStrict && len(report.ValidRows) == 0 && len(verdicts) > 0 {
		return report, fmt.Errorf("%w: %d of %d rows invalid", ErrImportRejected, len(report.Skipped), len(verdicts))
	}
	return report, nil
}
