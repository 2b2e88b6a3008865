// Package pdftext turns born-digital PDFs into the OCR input contract.
// Text with embedded glyph positions needs no OCR engine; the extracted
// runs enter the pipeline as fragments with full confidence.
package pdftext

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/antonkurs/docextract/internal/core/domain"
)

// US letter, the fallback when a page carries no usable MediaBox.
const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
)

// ExtractDocument reads the first page of the PDF at path and returns
// its text runs as an OCR document. Multi-page files are deliberately
// cut to one page; financial documents are ingested page-wise upstream.
func ExtractDocument(path string) (*domain.OCRDocument, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	if reader.NumPage() < 1 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract pdf text", errors.New("pdf has no pages"))
	}

	page := reader.Page(1)
	if page.V.IsNull() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract pdf text", errors.New("pdf page unreadable"))
	}

	width, height := pageSize(page)
	fragments := groupRuns(page.Content().Text, height)
	if len(fragments) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract pdf text", errors.New("pdf page carries no text"))
	}

	return &domain.OCRDocument{
		Page:      domain.Page{Width: width, Height: height},
		Fragments: fragments,
	}, nil
}

func pageSize(page pdf.Page) (float64, float64) {
	box := page.V.Key("MediaBox")
	if box.Kind() != pdf.Array || box.Len() < 4 {
		return defaultPageWidth, defaultPageHeight
	}
	width := numeric(box.Index(2)) - numeric(box.Index(0))
	height := numeric(box.Index(3)) - numeric(box.Index(1))
	if width <= 0 || height <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return width, height
}

func numeric(v pdf.Value) float64 {
	switch v.Kind() {
	case pdf.Integer:
		return float64(v.Int64())
	case pdf.Real:
		return v.Float64()
	}
	return 0
}

// groupRuns merges glyph-level text items into word runs. PDF positions
// grow bottom-up, fragments are top-down, so y flips against the page
// height.
func groupRuns(texts []pdf.Text, pageHeight float64) []domain.TextFragment {
	items := make([]pdf.Text, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t.S) == "" && t.S != " " {
			continue
		}
		items = append(items, t)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Y != items[j].Y {
			return items[i].Y > items[j].Y
		}
		return items[i].X < items[j].X
	})

	var fragments []domain.TextFragment
	var run []pdf.Text
	flush := func() {
		if frag, ok := buildFragment(run, pageHeight); ok {
			fragments = append(fragments, frag)
		}
		run = run[:0]
	}

	for _, t := range items {
		if len(run) > 0 && !continuesRun(run[len(run)-1], t) {
			flush()
		}
		run = append(run, t)
	}
	flush()
	return fragments
}

func continuesRun(prev, next pdf.Text) bool {
	sameLine := abs(prev.Y-next.Y) <= prev.FontSize*0.3
	if !sameLine {
		return false
	}
	gap := next.X - (prev.X + prev.W)
	// A gap wider than roughly two spaces starts a new run; narrower
	// gaps are word spacing inside the same visual chunk.
	return gap <= maxF(prev.FontSize, 1)*1.2
}

func buildFragment(run []pdf.Text, pageHeight float64) (domain.TextFragment, bool) {
	if len(run) == 0 {
		return domain.TextFragment{}, false
	}

	var text strings.Builder
	minX, maxX := run[0].X, run[0].X+run[0].W
	fontSize := run[0].FontSize
	baseline := run[0].Y
	for i, t := range run {
		if i > 0 {
			gap := t.X - (run[i-1].X + run[i-1].W)
			if gap > maxF(fontSize, 1)*0.25 && !strings.HasSuffix(text.String(), " ") {
				text.WriteByte(' ')
			}
		}
		text.WriteString(t.S)
		minX = minF(minX, t.X)
		maxX = maxF(maxX, t.X+t.W)
		fontSize = maxF(fontSize, t.FontSize)
	}

	trimmed := strings.TrimSpace(text.String())
	if trimmed == "" {
		return domain.TextFragment{}, false
	}

	height := fontSize
	if height <= 0 {
		height = 10
	}
	return domain.TextFragment{
		Text: trimmed,
		BBox: domain.BBox{
			X: minX,
			Y: pageHeight - baseline - height,
			W: maxX - minX,
			H: height,
		},
		Confidence: 1.0,
	}, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
