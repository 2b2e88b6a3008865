package domain

// Party is an invoice participant (vendor or client) assembled from
// resolved fields. Missing fields stay nil.
type Party struct {
	Name    *ResolvedField `json:"name,omitempty"`
	Address *ResolvedField `json:"address,omitempty"`
}

// LineItem is one reconstructed table row. The Credit flag marks rows
// explicitly tagged as credits/refunds, which are allowed to carry
// negative amounts.
type LineItem struct {
	Description ResolvedField `json:"description"`
	Quantity    ResolvedField `json:"quantity"`
	UnitPrice   ResolvedField `json:"unit_price"`
	LineTotal   ResolvedField `json:"line_total"`
	Credit      bool          `json:"credit,omitempty"`
}

// FinancialSummary holds the document totals. A nil field means no
// candidate supported it; an absent total is never reported as zero.
type FinancialSummary struct {
	Subtotal   *ResolvedField `json:"subtotal,omitempty"`
	Tax        *ResolvedField `json:"tax,omitempty"`
	Discount   *ResolvedField `json:"discount,omitempty"`
	GrandTotal *ResolvedField `json:"grand_total,omitempty"`
	Currency   string         `json:"currency,omitempty"`
}

// StructuredDocument is the assembled extraction output.
type StructuredDocument struct {
	Vendor        Party            `json:"vendor"`
	Client        Party            `json:"client"`
	InvoiceNumber *ResolvedField   `json:"invoice_number,omitempty"`
	InvoiceDate   *ResolvedField   `json:"invoice_date,omitempty"`
	DueDate       *ResolvedField   `json:"due_date,omitempty"`
	LineItems     []LineItem       `json:"line_items"`
	Summary       FinancialSummary `json:"financial_summary"`
}
