package validate

import (
	"math"
	"testing"
	"time"

	"github.com/antonkurs/docextract/internal/core/domain"
)

func amountField(name string, amount float64) domain.ResolvedField {
	return domain.ResolvedField{FieldName: name, Value: domain.AmountValue(amount, "USD"), Confidence: 0.9}
}

func amountFieldPtr(name string, amount float64) *domain.ResolvedField {
	f := amountField(name, amount)
	return &f
}

func textFieldPtr(name, text string) *domain.ResolvedField {
	return &domain.ResolvedField{FieldName: name, Value: domain.TextValue(text), Confidence: 0.9}
}

func dateFieldPtr(name, iso string) *domain.ResolvedField {
	return &domain.ResolvedField{FieldName: name, Value: domain.DateValue(iso), Confidence: 0.9}
}

func lineItem(desc string, qty, unit, total float64) domain.LineItem {
	return domain.LineItem{
		Description: domain.ResolvedField{FieldName: "line_items[0].description", Value: domain.TextValue(desc), Confidence: 0.9},
		Quantity:    amountField("line_items[0].quantity", qty),
		UnitPrice:   amountField("line_items[0].unit_price", unit),
		LineTotal:   amountField("line_items[0].line_total", total),
	}
}

func cleanInvoice() *domain.StructuredDocument {
	return &domain.StructuredDocument{
		Vendor:    domain.Party{Name: textFieldPtr(domain.FieldVendorName, "Acme Co.")},
		Client:    domain.Party{Name: textFieldPtr(domain.FieldClientName, "Jane Smith")},
		LineItems: []domain.LineItem{lineItem("Widget A", 2, 50, 100)},
		Summary: domain.FinancialSummary{
			Subtotal:   amountFieldPtr(domain.FieldSubtotal, 100),
			Tax:        amountFieldPtr(domain.FieldTax, 10),
			GrandTotal: amountFieldPtr(domain.FieldGrandTotal, 110),
			Currency:   "USD",
		},
	}
}

func testConfig() Config {
	return Config{Today: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func hasIssue(issues []domain.Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func TestValidateCleanInvoice(t *testing.T) {
	res := Validate(cleanInvoice(), testConfig())
	if !res.IsValid {
		t.Fatalf("clean invoice must be valid, errors = %+v", res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", res.Errors)
	}
	// Every section carries 0.9 fields, so with no penalty the weighted
	// mean must come out at exactly 0.9.
	if math.Abs(res.OverallConfidence-0.9) > 1e-9 {
		t.Fatalf("overall confidence = %v, want 0.9", res.OverallConfidence)
	}
	for _, section := range []string{SectionVendor, SectionClient, SectionLineItems, SectionSummary} {
		if math.Abs(res.SectionConfidence[section]-0.9) > 1e-9 {
			t.Fatalf("section %s confidence = %v, want 0.9", section, res.SectionConfidence[section])
		}
	}
}

func TestValidateGrandTotalMismatch(t *testing.T) {
	doc := cleanInvoice()
	doc.Summary.GrandTotal = amountFieldPtr(domain.FieldGrandTotal, 115)

	res := Validate(doc, testConfig())
	if res.IsValid {
		t.Fatal("mismatched grand total must invalidate the document")
	}
	if len(res.Errors) != 1 || res.Errors[0].Code != domain.IssueGrandTotalMismatch {
		t.Fatalf("errors = %+v, want exactly one grand-total mismatch", res.Errors)
	}
	clean := Validate(cleanInvoice(), testConfig())
	if res.OverallConfidence >= clean.OverallConfidence {
		t.Fatalf("error must lower overall confidence: %v >= %v", res.OverallConfidence, clean.OverallConfidence)
	}
}

func TestValidateToleranceBoundary(t *testing.T) {
	doc := &domain.StructuredDocument{
		Summary: domain.FinancialSummary{
			Subtotal:   amountFieldPtr(domain.FieldSubtotal, 100),
			GrandTotal: amountFieldPtr(domain.FieldGrandTotal, 99),
		},
	}
	res := Validate(doc, testConfig())
	if hasIssue(res.Errors, domain.IssueGrandTotalMismatch) {
		t.Fatalf("difference exactly at the tolerance must be accepted, errors = %+v", res.Errors)
	}

	doc.Summary.GrandTotal = amountFieldPtr(domain.FieldGrandTotal, 98.99)
	res = Validate(doc, testConfig())
	if !hasIssue(res.Errors, domain.IssueGrandTotalMismatch) {
		t.Fatalf("difference beyond the tolerance must be flagged, errors = %+v", res.Errors)
	}
}

func TestValidateDuplicateLineItems(t *testing.T) {
	doc := cleanInvoice()
	doc.LineItems = append(doc.LineItems, lineItem("Widget A", 2, 50, 100))
	doc.Summary.Subtotal = amountFieldPtr(domain.FieldSubtotal, 200)
	doc.Summary.GrandTotal = amountFieldPtr(domain.FieldGrandTotal, 210)

	res := Validate(doc, testConfig())
	if len(res.Errors) != 0 {
		t.Fatalf("duplicates alone must not produce errors: %+v", res.Errors)
	}
	count := 0
	for _, w := range res.Warnings {
		if w.Code == domain.IssueDuplicateLineItem {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("duplicate warnings = %d, want 1", count)
	}
	if len(doc.LineItems) != 2 {
		t.Fatal("validator must not remove line items")
	}
}

func TestValidateLineItemMismatchSeverity(t *testing.T) {
	// Document-level arithmetic still holds, so the per-item mismatch is
	// treated as rounding.
	doc := cleanInvoice()
	doc.LineItems[0].UnitPrice = amountField("line_items[0].unit_price", 30)
	res := Validate(doc, testConfig())
	if !hasIssue(res.Warnings, domain.IssueLineTotalMismatch) {
		t.Fatalf("expected line-total warning, warnings = %+v", res.Warnings)
	}
	if hasIssue(res.Errors, domain.IssueLineTotalMismatch) {
		t.Fatalf("line-total mismatch must stay a warning while document arithmetic holds")
	}

	// Break the document-level identity too and the same mismatch
	// becomes an error.
	doc.Summary.Subtotal = amountFieldPtr(domain.FieldSubtotal, 90)
	res = Validate(doc, testConfig())
	if !hasIssue(res.Errors, domain.IssueLineTotalMismatch) {
		t.Fatalf("expected line-total error, errors = %+v", res.Errors)
	}
}

func TestValidateDateRules(t *testing.T) {
	doc := cleanInvoice()
	doc.InvoiceDate = dateFieldPtr(domain.FieldInvoiceDate, "2024-05-01")
	doc.DueDate = dateFieldPtr(domain.FieldDueDate, "2024-04-01")
	res := Validate(doc, testConfig())
	if !hasIssue(res.Warnings, domain.IssueDateOrder) {
		t.Fatalf("expected date-order warning, warnings = %+v", res.Warnings)
	}
	if !res.IsValid {
		t.Fatal("date issues are warnings, not errors")
	}

	doc = cleanInvoice()
	doc.InvoiceDate = dateFieldPtr(domain.FieldInvoiceDate, "2030-01-01")
	res = Validate(doc, testConfig())
	if !hasIssue(res.Warnings, domain.IssueDateInFuture) {
		t.Fatalf("expected future-date warning, warnings = %+v", res.Warnings)
	}
}

func TestValidateNegativeAmounts(t *testing.T) {
	doc := cleanInvoice()
	doc.LineItems[0].LineTotal = amountField("line_items[0].line_total", -100)
	res := Validate(doc, testConfig())
	if !hasIssue(res.Errors, domain.IssueNegativeAmount) {
		t.Fatalf("expected negative-amount error, errors = %+v", res.Errors)
	}

	// The same negative amount on a credit row is legitimate.
	doc.LineItems[0].Credit = true
	res = Validate(doc, testConfig())
	if hasIssue(res.Errors, domain.IssueNegativeAmount) {
		t.Fatalf("credit rows may carry negative amounts, errors = %+v", res.Errors)
	}
}

func TestValidateMissingFieldsAreWarnings(t *testing.T) {
	res := Validate(&domain.StructuredDocument{}, testConfig())
	if !res.IsValid {
		t.Fatal("extraction gaps must not invalidate the document")
	}
	if !hasIssue(res.Warnings, domain.IssueMissingField) {
		t.Fatalf("expected missing-field warnings, warnings = %+v", res.Warnings)
	}
	if res.OverallConfidence != 0 {
		t.Fatalf("empty document confidence = %v, want 0", res.OverallConfidence)
	}
}
