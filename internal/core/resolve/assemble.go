package resolve

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antonkurs/docextract/internal/core/domain"
)

var reLineItemField = regexp.MustCompile(`^line_items\[(\d+)\]\.(description|quantity|unit_price|line_total)$`)

var creditMarkers = []string{"credit", "refund", "return"}

// Assemble builds the structured document from resolved fields. Totals
// with no supporting candidate stay absent (nil), never zero.
func Assemble(fields []domain.ResolvedField) *domain.StructuredDocument {
	doc := &domain.StructuredDocument{LineItems: []domain.LineItem{}}
	items := make(map[int]*domain.LineItem)

	for _, f := range fields {
		field := f
		if m := reLineItemField.FindStringSubmatch(field.FieldName); m != nil {
			idx, _ := strconv.Atoi(m[1])
			item, ok := items[idx]
			if !ok {
				item = &domain.LineItem{}
				items[idx] = item
			}
			switch m[2] {
			case "description":
				item.Description = field
			case "quantity":
				item.Quantity = field
			case "unit_price":
				item.UnitPrice = field
			case "line_total":
				item.LineTotal = field
			}
			continue
		}

		switch field.FieldName {
		case domain.FieldVendorName:
			doc.Vendor.Name = &field
		case domain.FieldVendorAddress:
			doc.Vendor.Address = &field
		case domain.FieldClientName:
			doc.Client.Name = &field
		case domain.FieldClientAddress:
			doc.Client.Address = &field
		case domain.FieldInvoiceNumber:
			doc.InvoiceNumber = &field
		case domain.FieldInvoiceDate:
			doc.InvoiceDate = &field
		case domain.FieldDueDate:
			doc.DueDate = &field
		case domain.FieldSubtotal:
			doc.Summary.Subtotal = &field
		case domain.FieldTax:
			doc.Summary.Tax = &field
		case domain.FieldDiscount:
			doc.Summary.Discount = &field
		case domain.FieldGrandTotal:
			doc.Summary.GrandTotal = &field
		case domain.FieldCurrency:
			doc.Summary.Currency = field.Value.Text
		}
	}

	indexes := make([]int, 0, len(items))
	for idx := range items {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		item := items[idx]
		item.Credit = isCredit(item.Description.Value.Text)
		doc.LineItems = append(doc.LineItems, *item)
	}

	if doc.Summary.Currency == "" {
		doc.Summary.Currency = inferCurrency(doc)
	}
	return doc
}

func isCredit(description string) bool {
	lower := strings.ToLower(description)
	for _, marker := range creditMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// inferCurrency falls back to the first currency code carried by an
// assembled amount when no document-level candidate existed.
func inferCurrency(doc *domain.StructuredDocument) string {
	for _, f := range []*domain.ResolvedField{doc.Summary.GrandTotal, doc.Summary.Subtotal, doc.Summary.Tax, doc.Summary.Discount} {
		if f != nil && f.Value.Currency != "" {
			return f.Value.Currency
		}
	}
	for _, item := range doc.LineItems {
		if item.LineTotal.Value.Currency != "" {
			return item.LineTotal.Value.Currency
		}
	}
	return ""
}
