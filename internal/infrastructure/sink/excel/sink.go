// Package excel maintains an XLSX workbook with one summary row per
// extracted document. Rows are keyed by run id, so replays overwrite
// in place instead of appending duplicates.
package excel

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/antonkurs/docextract/internal/core/domain"
)

const sheet = "Documents"

var headers = []string{
	"Run ID",
	"Vendor",
	"Client",
	"Invoice Number",
	"Invoice Date",
	"Due Date",
	"Subtotal",
	"Tax",
	"Discount",
	"Grand Total",
	"Currency",
	"Line Items",
	"Valid",
	"Confidence",
}

type Sink struct {
	path string

	// The workbook is read-modify-written as a whole file; writes from
	// concurrent runs must not interleave.
	mu sync.Mutex
}

func NewSink(path string) *Sink {
	return &Sink{path: path}
}

func (s *Sink) Name() string { return "spreadsheet" }

func (s *Sink) Write(ctx context.Context, runID string, doc *domain.StructuredDocument, res *domain.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := s.openWorkbook()
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	row, err := s.rowFor(f, runID)
	if err != nil {
		return err
	}

	values := []any{
		runID,
		fieldText(doc.Vendor.Name),
		fieldText(doc.Client.Name),
		fieldText(doc.InvoiceNumber),
		fieldDate(doc.InvoiceDate),
		fieldDate(doc.DueDate),
		fieldAmount(doc.Summary.Subtotal),
		fieldAmount(doc.Summary.Tax),
		fieldAmount(doc.Summary.Discount),
		fieldAmount(doc.Summary.GrandTotal),
		doc.Summary.Currency,
		len(doc.LineItems),
		res.IsValid,
		res.OverallConfidence,
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("cell name col %d row %d: %w", i+1, row, err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}

	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", s.path, err)
	}
	return nil
}

func (s *Sink) openWorkbook() (*excelize.File, error) {
	if _, err := os.Stat(s.path); err == nil {
		f, err := excelize.OpenFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("open workbook %s: %w", s.path, err)
		}
		return f, nil
	}

	f := excelize.NewFile()
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet: %w", err)
		}
	}
	index, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell %d: %w", i+1, err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("set header %q: %w", h, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 38); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "F", 22); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	return f, nil
}

// rowFor returns the 1-based row holding runID, or the first free row
// below the existing data.
func (s *Sink) rowFor(f *excelize.File, runID string) (int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("read rows: %w", err)
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) > 0 && row[0] == runID {
			return i + 1, nil
		}
	}
	return len(rows) + 1, nil
}

func fieldText(rf *domain.ResolvedField) string {
	if rf == nil {
		return ""
	}
	return rf.Value.Text
}

func fieldDate(rf *domain.ResolvedField) string {
	if rf == nil {
		return ""
	}
	return rf.Value.Date
}

func fieldAmount(rf *domain.ResolvedField) any {
	if rf == nil {
		return ""
	}
	return rf.Value.Amount
}
