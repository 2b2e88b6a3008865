// Package extract applies declarative per-region rules to pull typed
// field candidates out of clustered fragments and reconstructed table
// cells. It never deduplicates: conflicting candidates for one field are
// expected and left to the confidence aggregator.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/money"
	"github.com/antonkurs/docextract/internal/core/table"
)

// OriginHeuristic marks candidates produced by this package, as opposed
// to the semantic-extractor collaborator. Downstream treatment is
// identical either way.
const OriginHeuristic = "heuristic"

// LabelRule declares one field: trigger labels, the value type to parse,
// and the regions searched. An empty region list searches everywhere.
type LabelRule struct {
	Field   string              `yaml:"field"`
	Kind    domain.ValueKind    `yaml:"kind"`
	Labels  []string            `yaml:"labels"`
	Regions []domain.RegionKind `yaml:"regions"`
	// ValuePattern, when set, filters captured values; it keeps generic
	// labels like "invoice" from swallowing neighbouring field labels.
	ValuePattern string `yaml:"value_pattern,omitempty"`
}

// Rules is the full declarative rule set, overridable from configuration.
type Rules struct {
	Fields      []LabelRule `yaml:"fields"`
	DateLayouts []string    `yaml:"date_layouts"`
}

func DefaultRules() Rules {
	totalsish := []domain.RegionKind{domain.RegionTotals, domain.RegionTax, domain.RegionUnknown}
	return Rules{
		Fields: []LabelRule{
			{Field: domain.FieldInvoiceNumber, Kind: domain.ValueText,
				Labels:       []string{"invoice number", "invoice no", "invoice #", "inv #", "invoice"},
				ValuePattern: `\d`},
			{Field: domain.FieldInvoiceDate, Kind: domain.ValueDate,
				Labels: []string{"invoice date", "date of issue", "issued", "date"}},
			{Field: domain.FieldDueDate, Kind: domain.ValueDate,
				Labels: []string{"due date", "payment due", "due"}},
			{Field: domain.FieldSubtotal, Kind: domain.ValueAmount,
				Labels: []string{"subtotal", "sub-total", "sub total"}, Regions: totalsish},
			{Field: domain.FieldTax, Kind: domain.ValueAmount,
				Labels: []string{"sales tax", "tax", "vat", "gst", "hst"}, Regions: totalsish},
			{Field: domain.FieldDiscount, Kind: domain.ValueAmount,
				Labels: []string{"discount"}, Regions: totalsish},
			{Field: domain.FieldGrandTotal, Kind: domain.ValueAmount,
				Labels: []string{"grand total", "total due", "amount due", "balance due", "total"}, Regions: totalsish},
		},
	}
}

// Extract runs every rule over the regions and table, returning the raw
// candidate list. Output order is deterministic for identical input.
func Extract(regions []domain.Region, tbl table.Table, rules Rules) []domain.FieldCandidate {
	if len(rules.Fields) == 0 {
		rules = Rules{Fields: DefaultRules().Fields, DateLayouts: rules.DateLayouts}
	}

	var candidates []domain.FieldCandidate
	candidates = append(candidates, partyCandidates(regions)...)

	var dateRaw []string
	var dateIdx []int
	for _, rule := range rules.Fields {
		for _, region := range regions {
			if !ruleApplies(rule, region.Kind) {
				continue
			}
			for _, hit := range captureLabelled(region, rule.Labels) {
				cand, ok := typedCandidate(rule, hit)
				if !ok {
					continue
				}
				if rule.Kind == domain.ValueDate {
					// Final date value needs the document-wide format vote.
					dateRaw = append(dateRaw, hit.value)
					dateIdx = append(dateIdx, len(candidates))
				}
				candidates = append(candidates, cand)
			}
		}
	}

	resolved := resolveDates(dateRaw, rules.DateLayouts)
	// Walk backwards so dropped unparsable dates do not shift later indexes.
	for i := len(dateIdx) - 1; i >= 0; i-- {
		if resolved[i] == "" {
			candidates = append(candidates[:dateIdx[i]], candidates[dateIdx[i]+1:]...)
			continue
		}
		candidates[dateIdx[i]].Value = domain.DateValue(resolved[i])
	}

	candidates = append(candidates, lineItemCandidates(tbl)...)

	if code := dominantCurrency(candidates); code != "" {
		candidates = append(candidates, domain.FieldCandidate{
			FieldName:  domain.FieldCurrency,
			Value:      domain.TextValue(code),
			Confidence: 0.9,
			Origin:     OriginHeuristic,
		})
	}
	return candidates
}

func ruleApplies(rule LabelRule, kind domain.RegionKind) bool {
	if len(rule.Regions) == 0 {
		return true
	}
	for _, k := range rule.Regions {
		if k == kind {
			return true
		}
	}
	return false
}

// labelHit is one trigger match with its captured value fragment.
type labelHit struct {
	value      string
	confidence float64
	bbox       domain.BBox
}

// captureLabelled finds label fragments and captures the adjacent value:
// the remainder of the label fragment itself, else the nearest fragment
// to the right on the same line, else the nearest fragment below.
func captureLabelled(region domain.Region, labels []string) []labelHit {
	var hits []labelHit
	for i, f := range region.Fragments {
		_, rest, ok := matchLabel(f.Text, labels)
		if !ok {
			continue
		}
		if rest != "" {
			hits = append(hits, labelHit{value: rest, confidence: f.Confidence, bbox: f.BBox})
			continue
		}
		if v, ok := nearestRight(region, i); ok {
			hits = append(hits, v)
			continue
		}
		if v, ok := nearestBelow(region, i); ok {
			hits = append(hits, v)
		}
	}
	return hits
}

// matchLabel prefers the longest label so "grand total" wins over
// "total". The remainder after the label (minus separator junk) is the
// inline value, if any.
func matchLabel(text string, labels []string) (string, string, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	best := ""
	for _, label := range labels {
		if strings.HasPrefix(lower, label) && len(label) > len(best) {
			best = label
		}
	}
	if best == "" {
		return "", "", false
	}
	rest := strings.TrimSpace(trimmed[len(best):])
	rest = strings.TrimLeft(rest, ":#.- \t")
	return best, rest, true
}

func nearestRight(region domain.Region, labelIdx int) (labelHit, bool) {
	label := region.Fragments[labelIdx]
	bestDist := 0.0
	found := false
	var hit labelHit
	for j, f := range region.Fragments {
		if j == labelIdx {
			continue
		}
		sameLine := abs(f.BBox.CenterY()-label.BBox.CenterY()) <= label.BBox.H
		if !sameLine || f.BBox.X < label.BBox.Right() {
			continue
		}
		dist := f.BBox.X - label.BBox.Right()
		if !found || dist < bestDist {
			found = true
			bestDist = dist
			hit = labelHit{value: f.Text, confidence: f.Confidence, bbox: f.BBox}
		}
	}
	return hit, found
}

func nearestBelow(region domain.Region, labelIdx int) (labelHit, bool) {
	label := region.Fragments[labelIdx]
	found := false
	bestDy := 0.0
	var hit labelHit
	for j, f := range region.Fragments {
		if j == labelIdx || f.BBox.CenterY() <= label.BBox.Bottom() {
			continue
		}
		if f.BBox.HorizontalOverlap(label.BBox) <= 0 {
			continue
		}
		dy := f.BBox.CenterY() - label.BBox.Bottom()
		if !found || dy < bestDy {
			found = true
			bestDy = dy
			// Captured one line down; slightly less certain than inline.
			hit = labelHit{value: f.Text, confidence: f.Confidence * 0.9, bbox: f.BBox}
		}
	}
	return hit, found
}

func typedCandidate(rule LabelRule, hit labelHit) (domain.FieldCandidate, bool) {
	if rule.ValuePattern != "" {
		re, err := regexp.Compile(rule.ValuePattern)
		if err != nil || !re.MatchString(hit.value) {
			return domain.FieldCandidate{}, false
		}
	}
	cand := domain.FieldCandidate{
		FieldName:  rule.Field,
		Confidence: hit.confidence,
		SourceBBox: hit.bbox,
		Origin:     OriginHeuristic,
	}
	switch rule.Kind {
	case domain.ValueAmount:
		amount, code, err := money.ParseAmount(hit.value)
		if err != nil {
			return domain.FieldCandidate{}, false
		}
		cand.Value = domain.AmountValue(amount, code)
	case domain.ValueDate:
		// Placeholder; finalized after the document-wide format vote.
		cand.Value = domain.DateValue(hit.value)
	default:
		if strings.TrimSpace(hit.value) == "" {
			return domain.FieldCandidate{}, false
		}
		cand.Value = domain.TextValue(strings.TrimSpace(hit.value))
	}
	return cand, true
}

// partyCandidates extracts vendor/client names and addresses from their
// regions: the first text line is the name, following lines the address.
func partyCandidates(regions []domain.Region) []domain.FieldCandidate {
	var out []domain.FieldCandidate
	for _, region := range regions {
		var nameField, addrField string
		switch region.Kind {
		case domain.RegionVendor:
			nameField, addrField = domain.FieldVendorName, domain.FieldVendorAddress
		case domain.RegionClient:
			nameField, addrField = domain.FieldClientName, domain.FieldClientAddress
		default:
			continue
		}

		lines := textLines(region)
		lines = dropLabelLines(lines)
		if len(lines) == 0 {
			continue
		}
		out = append(out, domain.FieldCandidate{
			FieldName:  nameField,
			Value:      domain.TextValue(lines[0].text),
			Confidence: lines[0].confidence,
			SourceBBox: lines[0].bbox,
			Origin:     OriginHeuristic,
		})
		if len(lines) > 1 {
			var parts []string
			conf := 0.0
			box := lines[1].bbox
			for _, l := range lines[1:] {
				parts = append(parts, l.text)
				conf += l.confidence
				box = box.Union(l.bbox)
			}
			out = append(out, domain.FieldCandidate{
				FieldName:  addrField,
				Value:      domain.TextValue(strings.Join(parts, ", ")),
				Confidence: conf / float64(len(lines)-1),
				SourceBBox: box,
				Origin:     OriginHeuristic,
			})
		}
	}
	return out
}

type regionLine struct {
	text       string
	confidence float64
	bbox       domain.BBox
}

func textLines(region domain.Region) []regionLine {
	var lines []regionLine
	for _, f := range region.Fragments {
		if n := len(lines); n > 0 && abs(f.BBox.CenterY()-lines[n-1].bbox.CenterY()) <= lines[n-1].bbox.H {
			lines[n-1].text += " " + f.Text
			lines[n-1].confidence = (lines[n-1].confidence + f.Confidence) / 2
			lines[n-1].bbox = lines[n-1].bbox.Union(f.BBox)
			continue
		}
		lines = append(lines, regionLine{text: f.Text, confidence: f.Confidence, bbox: f.BBox})
	}
	return lines
}

var partyLabels = []string{"bill to", "ship to", "sold to", "invoice to", "customer", "client", "attn", "from"}

func dropLabelLines(lines []regionLine) []regionLine {
	out := lines[:0]
	for _, l := range lines {
		lower := strings.ToLower(strings.TrimSpace(l.text))
		isLabel := false
		for _, lb := range partyLabels {
			if lower == lb || lower == lb+":" {
				isLabel = true
				break
			}
		}
		if !isLabel {
			out = append(out, l)
		}
	}
	return out
}

// lineItemCandidates turns body table rows into indexed line-item
// candidates, e.g. line_items[0].unit_price.
func lineItemCandidates(tbl table.Table) []domain.FieldCandidate {
	var out []domain.FieldCandidate
	rows := tbl.Rows()
	for rowIdx, row := range rows {
		if rowIdx < tbl.HeaderRows {
			continue
		}
		item := rowIdx - tbl.HeaderRows
		for _, cell := range row {
			if cell.Text == "" {
				continue
			}
			role := tbl.Columns[cell.Col].Role
			name, kind := roleField(item, role)
			if name == "" {
				continue
			}
			cand := domain.FieldCandidate{
				FieldName:  name,
				Confidence: cell.Confidence,
				SourceBBox: cell.BBox,
				Origin:     OriginHeuristic,
			}
			if kind == domain.ValueAmount {
				amount, code, err := money.ParseAmount(cell.Text)
				if err != nil {
					// Degraded cell: keep the raw text so the row survives.
					cand.Value = domain.TextValue(cell.Text)
					cand.Confidence = cell.Confidence / 2
				} else {
					cand.Value = domain.AmountValue(amount, code)
				}
			} else {
				cand.Value = domain.TextValue(cell.Text)
			}
			out = append(out, cand)
		}
	}
	return out
}

// LineItemField names the candidate for one line-item column.
func LineItemField(index int, column string) string {
	return fmt.Sprintf("line_items[%d].%s", index, column)
}

func roleField(item int, role table.ColumnRole) (string, domain.ValueKind) {
	switch role {
	case table.RoleDescription:
		return LineItemField(item, "description"), domain.ValueText
	case table.RoleQuantity:
		return LineItemField(item, "quantity"), domain.ValueAmount
	case table.RoleUnitPrice:
		return LineItemField(item, "unit_price"), domain.ValueAmount
	case table.RoleLineTotal:
		return LineItemField(item, "line_total"), domain.ValueAmount
	default:
		return "", domain.ValueText
	}
}

// dominantCurrency picks the most frequent currency code carried by the
// amount candidates; ties resolve alphabetically for determinism.
func dominantCurrency(cands []domain.FieldCandidate) string {
	counts := make(map[string]int)
	for _, c := range cands {
		if c.Value.Kind == domain.ValueAmount && c.Value.Currency != "" {
			counts[c.Value.Currency]++
		}
	}
	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	best, bestN := "", 0
	for _, code := range codes {
		if counts[code] > bestN {
			best, bestN = code, counts[code]
		}
	}
	return best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
