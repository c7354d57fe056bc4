// Package metadata reads metadata sheets and associates their rows with
// queued wallpapers.
package metadata

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dharsanguruparan/WallDrop/internal/model"
)

// ErrMissingColumns is returned when a sheet lacks filename or title.
var ErrMissingColumns = errors.New("metadata sheet must have filename and title columns")

// Columns lists the recognised headers in template order.
var Columns = []string{"filename", "title", "description", "category", "price", "tags"}

// Parse reads a CSV or, when name ends in .xlsx, an Excel workbook.
func Parse(name string, r io.Reader) ([]model.CSVRow, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return ParseXLSX(r)
	}
	return ParseCSV(r)
}

// ParseCSV reads a header row followed by data rows. Blank lines are skipped
// and short rows are padded.
func ParseCSV(r io.Reader) ([]model.CSVRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRecords(records)
}

// ParseXLSX reads the first sheet of a workbook using the same layout as the
// CSV template.
func ParseXLSX(r io.Reader) ([]model.CSVRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrMissingColumns
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromRecords(records)
}

func fromRecords(records [][]string) ([]model.CSVRow, error) {
	if len(records) == 0 {
		return nil, ErrMissingColumns
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimPrefix(h, "\ufeff")
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	if !contains(header, "filename") || !contains(header, "title") {
		return nil, ErrMissingColumns
	}
	rows := make([]model.CSVRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make(model.CSVRow, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// TemplateCSV returns a sample sheet with the expected header and three
// example rows.
func TemplateCSV() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(Columns)
	_ = w.Write([]string{"aurora.jpg", "Northern Lights", "Aurora over a frozen lake", "nature", "0", "aurora,night,sky"})
	_ = w.Write([]string{"nebula.png", "Carina Nebula", "Deep field capture", "space", "1.99", "nebula,stars"})
	_ = w.Write([]string{"skyline.webp", "Neon Skyline", "", "city", "", "city,neon"})
	w.Flush()
	return buf.Bytes()
}

// TemplateXLSX returns the template as an Excel workbook.
func TemplateXLSX() ([]byte, error) {
	records, err := csv.NewReader(bytes.NewReader(TemplateCSV())).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"
	for r, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return nil, err
		}
		row := make([]interface{}, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write template row: %w", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
