package extract

import (
	"reflect"
	"testing"

	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/table"
)

func frag(text string, x, y, w float64) domain.TextFragment {
	return domain.TextFragment{
		Text:       text,
		BBox:       domain.BBox{X: x, Y: y, W: w, H: 12},
		Confidence: 0.9,
	}
}

func region(kind domain.RegionKind, frags ...domain.TextFragment) domain.Region {
	r := domain.Region{Kind: kind, Fragments: frags}
	for _, f := range frags {
		r.BBox = r.BBox.Union(f.BBox)
	}
	return r
}

func testRegions() []domain.Region {
	return []domain.Region{
		region(domain.RegionVendor,
			frag("Acme Co.", 40, 40, 70),
			frag("12 Main St", 40, 58, 80),
			frag("Invoice # 8842", 40, 120, 110),
			frag("Invoice Date", 40, 140, 95),
			frag("03/14/2024", 150, 140, 80),
		),
		region(domain.RegionClient,
			frag("Bill To", 380, 100, 55),
			frag("Jane Smith", 380, 120, 85),
		),
		region(domain.RegionTotals,
			frag("Subtotal", 360, 640, 65),
			frag("$100.00", 482, 640, 58),
			frag("Tax", 360, 665, 28),
			frag("$10.00", 482, 665, 50),
			frag("Grand Total", 360, 690, 88),
			frag("$110.00", 482, 690, 58),
		),
	}
}

func candidateValues(cands []domain.FieldCandidate, field string) []domain.FieldValue {
	var out []domain.FieldValue
	for _, c := range cands {
		if c.FieldName == field {
			out = append(out, c.Value)
		}
	}
	return out
}

func TestExtractLabelledFields(t *testing.T) {
	cands := Extract(testRegions(), table.Table{}, Rules{})

	if got := candidateValues(cands, domain.FieldInvoiceNumber); len(got) != 1 || got[0].Text != "8842" {
		t.Fatalf("invoice_number candidates = %+v", got)
	}
	if got := candidateValues(cands, domain.FieldSubtotal); len(got) != 1 || got[0].Amount != 100 {
		t.Fatalf("subtotal candidates = %+v", got)
	}
	if got := candidateValues(cands, domain.FieldGrandTotal); len(got) != 1 || got[0].Amount != 110 {
		t.Fatalf("grand_total candidates = %+v", got)
	}
	if got := candidateValues(cands, domain.FieldTax); len(got) != 1 || got[0].Amount != 10 {
		t.Fatalf("tax candidates = %+v", got)
	}
	if got := candidateValues(cands, domain.FieldInvoiceDate); len(got) != 1 || got[0].Date != "2024-03-14" {
		t.Fatalf("invoice_date candidates = %+v", got)
	}
}

func TestExtractPartyFields(t *testing.T) {
	cands := Extract(testRegions(), table.Table{}, Rules{})

	if got := candidateValues(cands, domain.FieldVendorName); len(got) != 1 || got[0].Text != "Acme Co." {
		t.Fatalf("vendor_name candidates = %+v", got)
	}
	if got := candidateValues(cands, domain.FieldClientName); len(got) != 1 || got[0].Text != "Jane Smith" {
		t.Fatalf("client_name candidates = %+v (bill-to label must be dropped)", got)
	}
}

func TestExtractDocumentCurrency(t *testing.T) {
	cands := Extract(testRegions(), table.Table{}, Rules{})
	if got := candidateValues(cands, domain.FieldCurrency); len(got) != 1 || got[0].Text != "USD" {
		t.Fatalf("currency candidates = %+v", got)
	}
}

func TestExtractLineItems(t *testing.T) {
	tbl := table.Table{
		Columns: []table.Column{
			{Index: 0, Role: table.RoleDescription},
			{Index: 1, Role: table.RoleQuantity},
			{Index: 2, Role: table.RoleUnitPrice},
			{Index: 3, Role: table.RoleLineTotal},
		},
		HeaderRows: 1,
		Cells: []domain.TableCell{
			{Row: 0, Col: 0, Text: "Description", Confidence: 0.9},
			{Row: 0, Col: 1, Text: "Qty", Confidence: 0.9},
			{Row: 0, Col: 2, Text: "Unit Price", Confidence: 0.9},
			{Row: 0, Col: 3, Text: "Amount", Confidence: 0.9},
			{Row: 1, Col: 0, Text: "Widget A", Confidence: 0.9},
			{Row: 1, Col: 1, Text: "2", Confidence: 0.95},
			{Row: 1, Col: 2, Text: "50.00", Confidence: 0.92},
			{Row: 1, Col: 3, Text: "100.00", Confidence: 0.91},
		},
	}
	cands := Extract(nil, tbl, Rules{})

	if got := candidateValues(cands, "line_items[0].description"); len(got) != 1 || got[0].Text != "Widget A" {
		t.Fatalf("description candidates = %+v", got)
	}
	if got := candidateValues(cands, "line_items[0].quantity"); len(got) != 1 || got[0].Amount != 2 {
		t.Fatalf("quantity candidates = %+v", got)
	}
	if got := candidateValues(cands, "line_items[0].unit_price"); len(got) != 1 || got[0].Amount != 50 {
		t.Fatalf("unit_price candidates = %+v", got)
	}
	if got := candidateValues(cands, "line_items[0].line_total"); len(got) != 1 || got[0].Amount != 100 {
		t.Fatalf("line_total candidates = %+v", got)
	}
	if got := candidateValues(cands, "line_items[0].amount"); got != nil {
		t.Fatalf("header row must not produce candidates: %+v", got)
	}
}

func TestExtractIdempotent(t *testing.T) {
	regions := testRegions()
	first := Extract(regions, table.Table{}, Rules{})
	second := Extract(regions, table.Table{}, Rules{})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("extraction differs between identical runs")
	}
}

func TestDominantDateFormatBreaksAmbiguity(t *testing.T) {
	// 25/12/2023 is unambiguously day-first, so 01/02/2024 must read as
	// 1 February rather than 2 January.
	got := resolveDates([]string{"25/12/2023", "01/02/2024"}, nil)
	if got[0] != "2023-12-25" {
		t.Fatalf("resolveDates[0] = %q", got[0])
	}
	if got[1] != "2024-02-01" {
		t.Fatalf("resolveDates[1] = %q, want day-first reading", got[1])
	}

	// Without contrary evidence the month-first reading is the default.
	got = resolveDates([]string{"01/02/2024"}, nil)
	if got[0] != "2024-01-02" {
		t.Fatalf("resolveDates default = %q, want month-first reading", got[0])
	}
}
