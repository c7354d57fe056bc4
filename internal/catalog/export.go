package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []interface{}{"id", "title", "description", "category", "price", "tags", "imageUrl", "dimensions", "createdAt"}

// ExportXLSX writes the full catalog as a single-sheet workbook.
func (s *Service) ExportXLSX(ctx context.Context, w io.Writer) (int, error) {
	docs, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"
	if err := f.SetSheetName(sheet, "Wallpapers"); err != nil {
		return 0, fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow("Wallpapers", "A1", &exportHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for i, d := range docs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		row := []interface{}{d.ID, d.Title, d.Description, d.Category, d.Price, strings.Join(d.Tags, ","), d.ImageURL, d.Dimensions, d.CreatedAt.Format(time.RFC3339)}
		if err := f.SetSheetRow("Wallpapers", cell, &row); err != nil {
			return 0, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(docs), nil
}
