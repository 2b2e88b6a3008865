package resolve

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/antonkurs/docextract/internal/core/domain"
)

func amountCand(field string, amount, conf float64) domain.FieldCandidate {
	return domain.FieldCandidate{
		FieldName:  field,
		Value:      domain.AmountValue(amount, "USD"),
		Confidence: conf,
	}
}

func TestResolveAgreementRewardsWitnesses(t *testing.T) {
	cands := []domain.FieldCandidate{
		amountCand("grand_total", 110, 0.8),
		amountCand("grand_total", 110, 0.7),
	}
	fields := Resolve(cands)
	if len(fields) != 1 {
		t.Fatalf("expected 1 resolved field, got %d", len(fields))
	}
	want := 1 - (1-0.8)*(1-0.7)
	if math.Abs(fields[0].Confidence-want) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", fields[0].Confidence, want)
	}
	if fields[0].Confidence < 0.8 {
		t.Fatalf("agreement must not lower the best confidence")
	}
}

func TestResolveIdenticalWitnessesNeverBelowSingle(t *testing.T) {
	for _, c := range []float64{0.1, 0.5, 0.9} {
		cands := []domain.FieldCandidate{
			amountCand("tax", 10, c),
			amountCand("tax", 10, c),
			amountCand("tax", 10, c),
		}
		got := Resolve(cands)[0].Confidence
		if got < c {
			t.Fatalf("aggregate %v < individual %v", got, c)
		}
		if got < 0 || got > 1 {
			t.Fatalf("confidence out of bounds: %v", got)
		}
	}
}

func TestResolveDisagreementPenalizesSpread(t *testing.T) {
	cands := []domain.FieldCandidate{
		amountCand("grand_total", 110, 0.9),
		amountCand("grand_total", 55, 0.6),
	}
	field := Resolve(cands)[0]
	if field.Value.Amount != 110 {
		t.Fatalf("winner = %v, want highest-confidence candidate", field.Value.Amount)
	}
	if field.Confidence >= 0.9 {
		t.Fatalf("disagreement must penalize confidence, got %v", field.Confidence)
	}
	if field.Confidence < 0.45 {
		t.Fatalf("penalty must floor at half the best confidence, got %v", field.Confidence)
	}
}

func TestResolveSymmetricUnderReordering(t *testing.T) {
	cands := []domain.FieldCandidate{
		amountCand("grand_total", 110, 0.9),
		amountCand("grand_total", 115, 0.6),
		amountCand("grand_total", 110, 0.4),
		{FieldName: "vendor_name", Value: domain.TextValue("Acme Co."), Confidence: 0.8},
	}
	want := Resolve(cands)

	rng := rand.New(rand.NewSource(7))
	for range 10 {
		shuffled := make([]domain.FieldCandidate, len(cands))
		copy(shuffled, cands)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if got := Resolve(shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("resolution depends on candidate order")
		}
	}
}

func TestResolveConfidenceBounds(t *testing.T) {
	cands := []domain.FieldCandidate{
		amountCand("subtotal", 100, 0.99),
		amountCand("subtotal", 100, 0.99),
		amountCand("subtotal", 100, 0.99),
		amountCand("subtotal", 100, 0.99),
	}
	got := Resolve(cands)[0].Confidence
	if got < 0 || got > 1 {
		t.Fatalf("confidence out of bounds: %v", got)
	}
}

func TestAssembleBuildsDocument(t *testing.T) {
	fields := Resolve([]domain.FieldCandidate{
		{FieldName: domain.FieldVendorName, Value: domain.TextValue("Acme Co."), Confidence: 0.9},
		{FieldName: domain.FieldClientName, Value: domain.TextValue("Jane Smith"), Confidence: 0.9},
		amountCand(domain.FieldSubtotal, 100, 0.9),
		amountCand(domain.FieldTax, 10, 0.9),
		amountCand(domain.FieldGrandTotal, 110, 0.9),
		{FieldName: "line_items[0].description", Value: domain.TextValue("Widget A"), Confidence: 0.9},
		amountCand("line_items[0].quantity", 2, 0.9),
		amountCand("line_items[0].unit_price", 50, 0.9),
		amountCand("line_items[0].line_total", 100, 0.9),
	})
	doc := Assemble(fields)

	if doc.Vendor.Name == nil || doc.Vendor.Name.Value.Text != "Acme Co." {
		t.Fatalf("vendor = %+v", doc.Vendor)
	}
	if len(doc.LineItems) != 1 {
		t.Fatalf("line items = %d, want 1", len(doc.LineItems))
	}
	item := doc.LineItems[0]
	if item.Description.Value.Text != "Widget A" || item.Quantity.Value.Amount != 2 ||
		item.UnitPrice.Value.Amount != 50 || item.LineTotal.Value.Amount != 100 {
		t.Fatalf("line item = %+v", item)
	}
	if doc.Summary.GrandTotal == nil || doc.Summary.GrandTotal.Value.Amount != 110 {
		t.Fatalf("grand total = %+v", doc.Summary.GrandTotal)
	}
	if doc.Summary.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", doc.Summary.Currency)
	}
	if doc.Summary.Discount != nil {
		t.Fatalf("absent discount must stay nil, got %+v", doc.Summary.Discount)
	}
}

func TestAssembleMarksCreditItems(t *testing.T) {
	fields := Resolve([]domain.FieldCandidate{
		{FieldName: "line_items[0].description", Value: domain.TextValue("Credit for returned goods"), Confidence: 0.9},
		amountCand("line_items[0].line_total", -25, 0.9),
	})
	doc := Assemble(fields)
	if len(doc.LineItems) != 1 || !doc.LineItems[0].Credit {
		t.Fatalf("credit row not flagged: %+v", doc.LineItems)
	}
}
