// Package validate applies business rules to an assembled structured
// document and scores it. Rules are independent and individually
// reportable; the validator never mutates the document and never aborts
// a pipeline run, it only records what it found.
package validate

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/antonkurs/docextract/internal/core/domain"
)

// Section names used in ValidationResult.SectionConfidence.
const (
	SectionVendor    = "vendor"
	SectionClient    = "client"
	SectionLineItems = "line_items"
	SectionSummary   = "financial_summary"
)

// Financial sections carry the most business weight.
var sectionWeights = map[string]float64{
	SectionVendor:    0.15,
	SectionClient:    0.15,
	SectionLineItems: 0.35,
	SectionSummary:   0.35,
}

// errorPenalty is applied multiplicatively to a section's confidence for
// each error attributed to it.
const errorPenalty = 0.75

// Config tunes the validator. Zero values select the defaults.
type Config struct {
	// Tolerance is the relative tolerance for arithmetic identities.
	// A difference exactly at the threshold is accepted.
	Tolerance float64
	// FutureGrace is how far past Today a document date may lie before
	// it is flagged as implausible. Due dates routinely sit months out,
	// so the default is generous.
	FutureGrace time.Duration
	// Today anchors the future-date check. Injected so the rules stay
	// pure and testable.
	Today time.Time
}

func (c Config) withDefaults() Config {
	if c.Tolerance <= 0 {
		c.Tolerance = 0.01
	}
	if c.FutureGrace <= 0 {
		c.FutureGrace = 365 * 24 * time.Hour
	}
	if c.Today.IsZero() {
		c.Today = time.Now().UTC()
	}
	return c
}

// Validate runs every business rule against doc and returns the scored
// result. IsValid means no rule produced an error; warnings never make a
// document invalid on their own.
func Validate(doc *domain.StructuredDocument, cfg Config) domain.ValidationResult {
	cfg = cfg.withDefaults()
	c := &checker{cfg: cfg, doc: doc}

	c.checkRequiredFields()
	docArithmeticOK := c.checkDocumentArithmetic()
	c.checkLineItemArithmetic(docArithmeticOK)
	c.checkDates()
	c.checkDuplicates()
	c.checkNonNegativity()

	sections := c.sectionConfidences()
	overall := 0.0
	for name, weight := range sectionWeights {
		overall += weight * sections[name]
	}

	return domain.ValidationResult{
		IsValid:           len(c.errors) == 0,
		Errors:            c.errors,
		Warnings:          c.warnings,
		SectionConfidence: sections,
		OverallConfidence: overall,
	}
}

type checker struct {
	cfg      Config
	doc      *domain.StructuredDocument
	errors   []domain.Issue
	warnings []domain.Issue

	// errors per section, used to penalize section confidence
	sectionErrors map[string]int
}

func (c *checker) addError(section, code, field, format string, args ...any) {
	c.errors = append(c.errors, domain.Issue{
		Code:         code,
		Message:      fmt.Sprintf(format, args...),
		Severity:     domain.SeverityError,
		RelatedField: field,
	})
	if c.sectionErrors == nil {
		c.sectionErrors = make(map[string]int)
	}
	c.sectionErrors[section]++
}

func (c *checker) addWarning(code, field, format string, args ...any) {
	c.warnings = append(c.warnings, domain.Issue{
		Code:         code,
		Message:      fmt.Sprintf(format, args...),
		Severity:     domain.SeverityWarning,
		RelatedField: field,
	})
}

// within reports whether a and b agree under the relative tolerance. The
// comparison scale is the larger magnitude of the two, floored at 1 so
// near-zero values do not collapse the tolerance window.
func (c *checker) within(a, b float64) bool {
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale < 1 {
		scale = 1
	}
	return math.Abs(a-b) <= c.cfg.Tolerance*scale
}

func (c *checker) checkRequiredFields() {
	if c.doc.Vendor.Name == nil {
		c.addWarning(domain.IssueMissingField, domain.FieldVendorName, "vendor name not extracted")
	}
	if c.doc.Summary.GrandTotal == nil {
		c.addWarning(domain.IssueMissingField, domain.FieldGrandTotal, "grand total not extracted")
	}
	if len(c.doc.LineItems) == 0 {
		c.addWarning(domain.IssueMissingField, "line_items", "no line items extracted")
	}
}

// checkDocumentArithmetic verifies the two document-level identities and
// reports whether both held (or were unverifiable due to absent fields).
func (c *checker) checkDocumentArithmetic() bool {
	ok := true
	summary := c.doc.Summary

	if summary.Subtotal != nil && len(c.doc.LineItems) > 0 {
		sum := 0.0
		counted := 0
		for _, item := range c.doc.LineItems {
			if item.LineTotal.Value.Kind == domain.ValueAmount {
				sum += item.LineTotal.Value.Amount
				counted++
			}
		}
		if counted > 0 && !c.within(sum, summary.Subtotal.Value.Amount) {
			ok = false
			c.addError(SectionSummary, domain.IssueSubtotalMismatch, domain.FieldSubtotal,
				"line totals sum to %.2f but subtotal is %.2f", sum, summary.Subtotal.Value.Amount)
		}
	}

	if summary.GrandTotal != nil && summary.Subtotal != nil {
		expected := summary.Subtotal.Value.Amount
		if summary.Tax != nil {
			expected += summary.Tax.Value.Amount
		}
		if summary.Discount != nil {
			expected -= summary.Discount.Value.Amount
		}
		if !c.within(expected, summary.GrandTotal.Value.Amount) {
			ok = false
			c.addError(SectionSummary, domain.IssueGrandTotalMismatch, domain.FieldGrandTotal,
				"subtotal + tax - discount is %.2f but grand total is %.2f", expected, summary.GrandTotal.Value.Amount)
		}
	}

	return ok
}

// checkLineItemArithmetic verifies quantity * unit price against each
// line total. When the document-level identities hold the per-item
// mismatch is likely rounding and is downgraded to a warning.
func (c *checker) checkLineItemArithmetic(docArithmeticOK bool) {
	for i, item := range c.doc.LineItems {
		if item.Quantity.Value.Kind != domain.ValueAmount ||
			item.UnitPrice.Value.Kind != domain.ValueAmount ||
			item.LineTotal.Value.Kind != domain.ValueAmount {
			continue
		}
		product := item.Quantity.Value.Amount * item.UnitPrice.Value.Amount
		if c.within(product, item.LineTotal.Value.Amount) {
			continue
		}
		field := fmt.Sprintf("line_items[%d].line_total", i)
		if docArithmeticOK {
			c.addWarning(domain.IssueLineTotalMismatch, field,
				"quantity * unit price is %.2f but line total is %.2f", product, item.LineTotal.Value.Amount)
		} else {
			c.addError(SectionLineItems, domain.IssueLineTotalMismatch, field,
				"quantity * unit price is %.2f but line total is %.2f", product, item.LineTotal.Value.Amount)
		}
	}
}

func (c *checker) checkDates() {
	invoice, invoiceOK := c.parseDate(c.doc.InvoiceDate)
	due, dueOK := c.parseDate(c.doc.DueDate)

	if invoiceOK && dueOK && invoice.After(due) {
		c.addWarning(domain.IssueDateOrder, domain.FieldDueDate,
			"invoice date %s is after due date %s", invoice.Format(time.DateOnly), due.Format(time.DateOnly))
	}

	horizon := c.cfg.Today.Add(c.cfg.FutureGrace)
	if invoiceOK && invoice.After(horizon) {
		c.addWarning(domain.IssueDateInFuture, domain.FieldInvoiceDate,
			"invoice date %s is implausibly far in the future", invoice.Format(time.DateOnly))
	}
	if dueOK && due.After(horizon) {
		c.addWarning(domain.IssueDateInFuture, domain.FieldDueDate,
			"due date %s is implausibly far in the future", due.Format(time.DateOnly))
	}
}

func (c *checker) parseDate(f *domain.ResolvedField) (time.Time, bool) {
	if f == nil || f.Value.Kind != domain.ValueDate {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, f.Value.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// checkDuplicates flags repeated (description, quantity, unit price)
// triples, the usual signature of the same physical row read twice. The
// rows themselves are kept.
func (c *checker) checkDuplicates() {
	seen := make(map[string]int)
	for i, item := range c.doc.LineItems {
		key := duplicateKey(item)
		if first, ok := seen[key]; ok {
			c.addWarning(domain.IssueDuplicateLineItem, fmt.Sprintf("line_items[%d]", i),
				"line item %d duplicates line item %d", i, first)
			continue
		}
		seen[key] = i
	}
}

func duplicateKey(item domain.LineItem) string {
	desc := strings.ToLower(strings.Join(strings.Fields(item.Description.Value.Text), " "))
	return fmt.Sprintf("%s|%.2f|%.2f", desc, item.Quantity.Value.Amount, item.UnitPrice.Value.Amount)
}

func (c *checker) checkNonNegativity() {
	for i, item := range c.doc.LineItems {
		if item.Credit {
			continue
		}
		for _, part := range []struct {
			name  string
			field domain.ResolvedField
		}{
			{"quantity", item.Quantity},
			{"unit_price", item.UnitPrice},
			{"line_total", item.LineTotal},
		} {
			if part.field.Value.Kind == domain.ValueAmount && part.field.Value.Amount < 0 {
				c.addError(SectionLineItems, domain.IssueNegativeAmount,
					fmt.Sprintf("line_items[%d].%s", i, part.name),
					"negative %s %.2f on a non-credit line item", part.name, part.field.Value.Amount)
			}
		}
	}

	summary := c.doc.Summary
	for _, part := range []struct {
		name  string
		field *domain.ResolvedField
	}{
		{domain.FieldSubtotal, summary.Subtotal},
		{domain.FieldTax, summary.Tax},
		{domain.FieldDiscount, summary.Discount},
		{domain.FieldGrandTotal, summary.GrandTotal},
	} {
		if part.field != nil && part.field.Value.Kind == domain.ValueAmount && part.field.Value.Amount < 0 {
			c.addError(SectionSummary, domain.IssueNegativeAmount, part.name,
				"negative %s %.2f", part.name, part.field.Value.Amount)
		}
	}
}

// sectionConfidences averages the extraction confidences present in each
// section, then applies the error penalty for issues attributed to it.
// An entirely absent section scores zero.
func (c *checker) sectionConfidences() map[string]float64 {
	sections := map[string]float64{
		SectionVendor:    meanConfidence(optional(c.doc.Vendor.Name), optional(c.doc.Vendor.Address)),
		SectionClient:    meanConfidence(optional(c.doc.Client.Name), optional(c.doc.Client.Address)),
		SectionLineItems: c.lineItemConfidence(),
		SectionSummary: meanConfidence(
			optional(c.doc.Summary.Subtotal), optional(c.doc.Summary.Tax),
			optional(c.doc.Summary.Discount), optional(c.doc.Summary.GrandTotal)),
	}
	for name, count := range c.sectionErrors {
		sections[name] *= math.Pow(errorPenalty, float64(count))
	}
	return sections
}

func (c *checker) lineItemConfidence() float64 {
	fields := make([]domain.ResolvedField, 0, len(c.doc.LineItems)*4)
	for _, item := range c.doc.LineItems {
		fields = append(fields, item.Description, item.Quantity, item.UnitPrice, item.LineTotal)
	}
	return meanConfidence(fields...)
}

// optional flattens a pointer field into a zero value so meanConfidence
// can skip it by its empty field name.
func optional(f *domain.ResolvedField) domain.ResolvedField {
	if f == nil {
		return domain.ResolvedField{}
	}
	return *f
}

func meanConfidence(fields ...domain.ResolvedField) float64 {
	sum, n := 0.0, 0
	for _, f := range fields {
		if f.FieldName == "" {
			continue
		}
		sum += f.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
