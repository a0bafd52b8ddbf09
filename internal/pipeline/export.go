package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"kila/internal"
)

// ExportHistoryToXLSX writes the stored validation history to an XLSX
// workbook, one row per validation.
func ExportHistoryToXLSX(rows []internal.ValidationRow, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"validation_id", "invoice_number", "filename", "created_at",
		"status", "passed", "source", "conflicts",
		"error_count", "warning_count", "errors", "warnings",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.ValidationID)
		set(2, row.InvoiceNumber)
		set(3, row.Filename)
		set(4, row.CreatedAt)
		set(5, row.Status)
		set(6, row.Passed)
		set(7, row.Source)
		set(8, row.ConflictCount)
		set(9, len(row.Errors))
		set(10, len(row.Warnings))
		set(11, joinFindings(row.Errors))
		set(12, joinFindings(row.Warnings))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func joinFindings(findings []internal.Finding) string {
	out := ""
	for i, f := range findings {
		if i > 0 {
			out += "; "
		}
		out += f.Field + ": " + f.Message
	}
	return out
}
