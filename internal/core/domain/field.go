package domain

import (
	"fmt"
	"math"
	"strings"
)

// Canonical field names produced by the extractor and consumed by the
// resolver and assembler. Line-item fields use indexed names, e.g.
// "line_items[2].unit_price".
const (
	FieldVendorName    = "vendor_name"
	FieldVendorAddress = "vendor_address"
	FieldClientName    = "client_name"
	FieldClientAddress = "client_address"
	FieldInvoiceNumber = "invoice_number"
	FieldInvoiceDate   = "invoice_date"
	FieldDueDate       = "due_date"
	FieldSubtotal      = "subtotal"
	FieldTax           = "tax"
	FieldDiscount      = "discount"
	FieldGrandTotal    = "grand_total"
	FieldCurrency      = "currency"
)

// ValueKind tags the scalar type carried by a FieldValue.
type ValueKind string

const (
	ValueText   ValueKind = "text"
	ValueAmount ValueKind = "amount"
	ValueDate   ValueKind = "date"
)

// FieldValue is the typed scalar extracted for a field: free text, a
// monetary amount with its currency code, or an ISO date (yyyy-mm-dd).
type FieldValue struct {
	Kind     ValueKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Amount   float64   `json:"amount,omitempty"`
	Currency string    `json:"currency,omitempty"`
	Date     string    `json:"date,omitempty"`
}

func TextValue(s string) FieldValue {
	return FieldValue{Kind: ValueText, Text: s}
}

func AmountValue(amount float64, currency string) FieldValue {
	return FieldValue{Kind: ValueAmount, Amount: amount, Currency: currency}
}

func DateValue(isoDate string) FieldValue {
	return FieldValue{Kind: ValueDate, Date: isoDate}
}

// Normalized returns a comparison key: candidates whose keys match are
// treated as agreeing on the value.
func (v FieldValue) Normalized() string {
	switch v.Kind {
	case ValueAmount:
		return fmt.Sprintf("amount:%.2f", v.Amount)
	case ValueDate:
		return "date:" + v.Date
	default:
		return "text:" + strings.ToLower(strings.Join(strings.Fields(v.Text), " "))
	}
}

// Equal reports agreement after normalization.
func (v FieldValue) Equal(other FieldValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	if v.Kind == ValueAmount {
		return math.Abs(v.Amount-other.Amount) < 0.005
	}
	return v.Normalized() == other.Normalized()
}

func (v FieldValue) String() string {
	switch v.Kind {
	case ValueAmount:
		if v.Currency != "" {
			return fmt.Sprintf("%.2f %s", v.Amount, v.Currency)
		}
		return fmt.Sprintf("%.2f", v.Amount)
	case ValueDate:
		return v.Date
	default:
		return v.Text
	}
}

// FieldCandidate is one proposed value for a logical field. Several
// candidates for the same field name are expected, not an error; Origin
// records which extraction source produced it and carries no special
// treatment downstream.
type FieldCandidate struct {
	FieldName  string     `json:"field_name"`
	Value      FieldValue `json:"value"`
	Confidence float64    `json:"confidence"`
	SourceBBox BBox       `json:"source_bbox"`
	Origin     string     `json:"origin,omitempty"`
}

// ResolvedField is the single value chosen for a field after reconciling
// all of its candidates.
type ResolvedField struct {
	FieldName  string           `json:"field_name"`
	Value      FieldValue       `json:"value"`
	Confidence float64          `json:"confidence"`
	Candidates []FieldCandidate `json:"contributing_candidates,omitempty"`
}
