// Package cluster groups unordered OCR fragments into semantic page
// regions (vendor, client, line items, tax, totals) using bounding-box
// geometry plus a small configurable keyword table. Clustering is a pure
// function of its input: identical fragments and page dimensions always
// produce the identical partition.
package cluster

import (
	"sort"
	"strings"

	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/money"
)

// Keywords are the per-region keyword families biasing classification.
// Multi-word phrases count as strong matches on their own.
type Keywords struct {
	Vendor    []string `yaml:"vendor"`
	Client    []string `yaml:"client"`
	LineItems []string `yaml:"line_items"`
	Tax       []string `yaml:"tax"`
	Totals    []string `yaml:"totals"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		Vendor:    []string{"inc", "ltd", "llc", "gmbh", "corp", "co.", "company", "from:"},
		Client:    []string{"bill to", "ship to", "sold to", "invoice to", "customer", "client", "attn"},
		LineItems: []string{"description", "item", "qty", "quantity", "unit price", "price", "rate", "amount"},
		Tax:       []string{"tax", "vat", "gst", "hst", "sales tax"},
		Totals:    []string{"subtotal", "sub-total", "total", "grand total", "total due", "amount due", "balance due", "discount"},
	}
}

// Config tunes the clusterer. LineTolerance is the vertical window (in
// page units) within which fragments are considered the same text line;
// zero derives it from the page height.
type Config struct {
	Keywords      Keywords
	LineTolerance float64
}

func (c Config) withDefaults(page domain.Page) Config {
	if len(c.Keywords.Totals) == 0 {
		c.Keywords = DefaultKeywords()
	}
	if c.LineTolerance <= 0 {
		c.LineTolerance = page.Height * 0.011
		if c.LineTolerance < 4 {
			c.LineTolerance = 4
		}
	}
	return c
}

type line struct {
	fragments []domain.TextFragment
	bbox      domain.BBox
	kind      domain.RegionKind
}

func (l *line) text() string {
	parts := make([]string, 0, len(l.fragments))
	for _, f := range l.fragments {
		parts = append(parts, f.Text)
	}
	return strings.Join(parts, " ")
}

// Cluster partitions the fragment list into regions. The empty input
// yields an empty region list. When page dimensions are missing they are
// derived from the union of the fragment boxes.
func Cluster(fragments []domain.TextFragment, page domain.Page, cfg Config) []domain.Region {
	if len(fragments) == 0 {
		return nil
	}
	if page.Width <= 0 || page.Height <= 0 {
		page = derivePage(fragments)
	}
	cfg = cfg.withDefaults(page)

	lines := groupLines(fragments, cfg.LineTolerance)
	for i := range lines {
		lines[i].kind = classifyLine(&lines[i], page, cfg.Keywords)
	}
	propagateLineItems(lines)

	return buildRegions(lines)
}

func derivePage(fragments []domain.TextFragment) domain.Page {
	var box domain.BBox
	for _, f := range fragments {
		box = box.Union(f.BBox)
	}
	return domain.Page{Width: box.Right(), Height: box.Bottom()}
}

// groupLines walks fragments top-to-bottom and bundles those whose
// vertical centers fall within the tolerance of the line anchor. Sorting
// keys include text so equal geometry cannot reorder between runs.
func groupLines(fragments []domain.TextFragment, tolerance float64) []line {
	sorted := make([]domain.TextFragment, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.BBox.CenterY() != b.BBox.CenterY() {
			return a.BBox.CenterY() < b.BBox.CenterY()
		}
		if a.BBox.X != b.BBox.X {
			return a.BBox.X < b.BBox.X
		}
		return a.Text < b.Text
	})

	var lines []line
	for _, frag := range sorted {
		if n := len(lines); n > 0 {
			anchor := lines[n-1].fragments[0].BBox.CenterY()
			if frag.BBox.CenterY()-anchor <= tolerance {
				lines[n-1].fragments = append(lines[n-1].fragments, frag)
				lines[n-1].bbox = lines[n-1].bbox.Union(frag.BBox)
				continue
			}
		}
		lines = append(lines, line{fragments: []domain.TextFragment{frag}, bbox: frag.BBox})
	}

	for i := range lines {
		frags := lines[i].fragments
		sort.SliceStable(frags, func(a, b int) bool {
			if frags[a].BBox.X != frags[b].BBox.X {
				return frags[a].BBox.X < frags[b].BBox.X
			}
			return frags[a].Text < frags[b].Text
		})
	}
	return lines
}

// classifyLine combines keyword and positional evidence. Multiple keyword
// hits on one line outrank position; a single generic keyword yields to
// position whenever position has an opinion of its own.
func classifyLine(l *line, page domain.Page, kw Keywords) domain.RegionKind {
	kwKind, strength := keywordKind(strings.ToLower(l.text()), kw)
	posKind := positionalKind(l, page)

	switch {
	case strength >= 2:
		return kwKind
	case strength == 1:
		if posKind != domain.RegionUnknown {
			return posKind
		}
		return kwKind
	default:
		return posKind
	}
}

// keywordKind scores the line against each keyword family. The kind with
// the most hits wins; ties resolve in a fixed precedence order so the
// result never depends on map iteration.
func keywordKind(text string, kw Keywords) (domain.RegionKind, int) {
	families := []struct {
		kind  domain.RegionKind
		words []string
	}{
		{domain.RegionTotals, kw.Totals},
		{domain.RegionTax, kw.Tax},
		{domain.RegionClient, kw.Client},
		{domain.RegionLineItems, kw.LineItems},
		{domain.RegionVendor, kw.Vendor},
	}

	bestKind := domain.RegionUnknown
	bestScore := 0
	total := 0
	for _, fam := range families {
		score := 0
		for _, word := range fam.words {
			if !containsKeyword(text, word) {
				continue
			}
			if strings.Contains(word, " ") {
				score += 2
			} else {
				score++
			}
		}
		total += score
		if score > bestScore {
			bestScore = score
			bestKind = fam.kind
		}
	}
	if bestScore == 0 {
		return domain.RegionUnknown, 0
	}
	return bestKind, total
}

func containsKeyword(text, word string) bool {
	idx := strings.Index(text, word)
	if idx < 0 {
		return false
	}
	// Reject matches inside a larger word ("total" in "totally").
	before := idx == 0 || !isWordChar(text[idx-1])
	end := idx + len(word)
	after := end == len(text) || !isWordChar(text[end])
	return before && after
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// positionalKind assigns a kind from the line's relative page position.
// A line spanning most of the page height has no meaningful position and
// stays unknown.
func positionalKind(l *line, page domain.Page) domain.RegionKind {
	if l.bbox.H >= page.Height*0.5 {
		return domain.RegionUnknown
	}
	cy := l.bbox.CenterY() / page.Height
	cx := l.bbox.CenterX() / page.Width

	switch {
	case cy < 0.30:
		if cx < 0.55 {
			return domain.RegionVendor
		}
		return domain.RegionClient
	case cy < 0.72:
		if numericHeavy(l) {
			return domain.RegionLineItems
		}
		return domain.RegionUnknown
	default:
		if hasAmount(l) {
			return domain.RegionTotals
		}
		return domain.RegionUnknown
	}
}

// numericHeavy reports whether at least half of a multi-fragment line
// reads as numbers, the signature of a table body row.
func numericHeavy(l *line) bool {
	if len(l.fragments) < 2 {
		return false
	}
	numeric := 0
	for _, f := range l.fragments {
		if money.LooksNumeric(f.Text) {
			numeric++
		}
	}
	return numeric*2 >= len(l.fragments)
}

func hasAmount(l *line) bool {
	for _, f := range l.fragments {
		if money.LooksNumeric(f.Text) {
			return true
		}
	}
	return false
}

// propagateLineItems extends the line-item region to unclassified lines
// lying between the table header (or first body row) and the totals
// block, catching wrapped description rows with no numeric content.
func propagateLineItems(lines []line) {
	itemsTop, itemsFound := 0.0, false
	totalsTop, totalsFound := 0.0, false
	for _, l := range lines {
		switch l.kind {
		case domain.RegionLineItems:
			if !itemsFound || l.bbox.Y < itemsTop {
				itemsTop = l.bbox.Y
				itemsFound = true
			}
		case domain.RegionTotals, domain.RegionTax:
			if !totalsFound || l.bbox.Y < totalsTop {
				totalsTop = l.bbox.Y
				totalsFound = true
			}
		}
	}
	if !itemsFound {
		return
	}
	for i := range lines {
		if lines[i].kind != domain.RegionUnknown {
			continue
		}
		y := lines[i].bbox.Y
		if y > itemsTop && (!totalsFound || y < totalsTop) {
			lines[i].kind = domain.RegionLineItems
		}
	}
}

func buildRegions(lines []line) []domain.Region {
	order := []domain.RegionKind{
		domain.RegionVendor,
		domain.RegionClient,
		domain.RegionLineItems,
		domain.RegionTax,
		domain.RegionTotals,
		domain.RegionUnknown,
	}

	var regions []domain.Region
	for _, kind := range order {
		var region domain.Region
		region.Kind = kind
		for _, l := range lines {
			if l.kind != kind {
				continue
			}
			region.Fragments = append(region.Fragments, l.fragments...)
			region.BBox = region.BBox.Union(l.bbox)
		}
		if len(region.Fragments) == 0 {
			continue
		}
		sortFragments(region.Fragments)
		regions = append(regions, region)
	}
	return regions
}

func sortFragments(frags []domain.TextFragment) {
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].BBox.Y != frags[j].BBox.Y {
			return frags[i].BBox.Y < frags[j].BBox.Y
		}
		if frags[i].BBox.X != frags[j].BBox.X {
			return frags[i].BBox.X < frags[j].BBox.X
		}
		return frags[i].Text < frags[j].Text
	})
}
