package semantic

import (
	"fmt"
	"strings"

	"github.com/antonkurs/docextract/internal/core/domain"
)

// Text sent to the model is capped per region; invoices that legitimately
// overflow this are dominated by line items the deterministic table path
// already handles.
const maxRegionChars = 2000

func buildExtractionPrompt(regions []domain.Region) string {
	var blocks strings.Builder
	for _, region := range regions {
		var text strings.Builder
		for _, f := range region.Fragments {
			if text.Len() > 0 {
				text.WriteByte(' ')
			}
			text.WriteString(f.Text)
		}
		snippet := text.String()
		if len(snippet) > maxRegionChars {
			snippet = snippet[:maxRegionChars]
		}
		blocks.WriteString(fmt.Sprintf("[%s]\n%s\n\n", region.Kind, snippet))
	}

	return `You are an invoice field extractor.
Return a strict JSON object with a single key "fields": an array of objects with keys
field_name (one of: vendor_name, vendor_address, client_name, client_address, invoice_number, invoice_date, due_date, subtotal, tax, discount, grand_total, currency),
kind ("text", "amount" or "date"),
value (string, dates as yyyy-mm-dd),
confidence (number from 0 to 1).
Only include fields actually present in the document. No markdown, no extra keys.

Document regions:
` + blocks.String()
}
