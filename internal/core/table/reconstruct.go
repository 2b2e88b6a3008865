// Package table recovers row/column structure from the fragments of a
// line-items region. Rows come from vertical proximity clustering, the
// column schema from header keywords when a header row exists, and from
// x-position clustering otherwise; body cells map to columns by
// horizontal overlap so missing cells do not shift their neighbours.
package table

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/money"
)

// ColumnRole is the semantic meaning assigned to a reconstructed column.
type ColumnRole string

const (
	RoleDescription ColumnRole = "description"
	RoleQuantity    ColumnRole = "quantity"
	RoleUnitPrice   ColumnRole = "unit_price"
	RoleLineTotal   ColumnRole = "line_total"
	RoleUnknown     ColumnRole = "unknown"
)

// Column is one inferred column with its horizontal bounds.
type Column struct {
	Index int
	Role  ColumnRole
	MinX  float64
	MaxX  float64
}

// Table is the reconstruction output: a dense cell grid (gaps are explicit
// empty-text cells) plus the column schema and the number of leading
// header rows to skip when reading line items.
type Table struct {
	Cells      []domain.TableCell
	Columns    []Column
	HeaderRows int
}

// Rows regroups the dense cell list by row index.
func (t Table) Rows() [][]domain.TableCell {
	if len(t.Columns) == 0 {
		return nil
	}
	cols := len(t.Columns)
	rows := make([][]domain.TableCell, len(t.Cells)/cols)
	for _, c := range t.Cells {
		rows[c.Row] = append(rows[c.Row], c)
	}
	return rows
}

// Config tunes reconstruction. RowTolerance is the vertical window (page
// units) within which fragments belong to the same row; ColumnGap is the
// minimum horizontal gap starting a new column when no header exists.
type Config struct {
	RowTolerance float64
	ColumnGap    float64
}

func (c Config) withDefaults() Config {
	if c.RowTolerance <= 0 {
		c.RowTolerance = 8
	}
	if c.ColumnGap <= 0 {
		c.ColumnGap = 24
	}
	return c
}

var headerRoles = []struct {
	role  ColumnRole
	words []string
}{
	{RoleQuantity, []string{"qty", "quantity", "hours", "units"}},
	{RoleUnitPrice, []string{"unit price", "unit", "price", "rate", "each"}},
	{RoleLineTotal, []string{"line total", "amount", "total", "subtotal", "extended"}},
	{RoleDescription, []string{"description", "item", "service", "product", "details"}},
}

// Reconstruct builds the cell grid for a line-items region. A region
// without fragments yields an empty table, not an error; errors indicate
// a defect in the reconstruction itself.
func Reconstruct(region domain.Region, cfg Config) (Table, error) {
	if len(region.Fragments) == 0 {
		return Table{}, nil
	}
	cfg = cfg.withDefaults()

	rows := groupRows(region.Fragments, cfg.RowTolerance)
	columns, headerRows := inferColumns(rows, region, cfg)
	if len(columns) == 0 {
		return Table{}, nil
	}

	grid, err := buildGrid(rows, columns, headerRows)
	if err != nil {
		return Table{}, err
	}
	return Table{Cells: grid, Columns: columns, HeaderRows: headerRows}, nil
}

type rawRow struct {
	fragments []domain.TextFragment
}

func groupRows(fragments []domain.TextFragment, tolerance float64) []rawRow {
	sorted := make([]domain.TextFragment, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.BBox.CenterY() != b.BBox.CenterY() {
			return a.BBox.CenterY() < b.BBox.CenterY()
		}
		return a.BBox.X < b.BBox.X
	})

	var rows []rawRow
	for _, frag := range sorted {
		if n := len(rows); n > 0 {
			anchor := rows[n-1].fragments[0].BBox.CenterY()
			if frag.BBox.CenterY()-anchor <= tolerance {
				rows[n-1].fragments = append(rows[n-1].fragments, frag)
				continue
			}
		}
		rows = append(rows, rawRow{fragments: []domain.TextFragment{frag}})
	}
	for i := range rows {
		frags := rows[i].fragments
		sort.SliceStable(frags, func(a, b int) bool { return frags[a].BBox.X < frags[b].BBox.X })
	}
	return rows
}

// inferColumns prefers a keyword header within the first two rows; header
// fragment bounds become column bounds, widened to the midpoints between
// neighbours. Without a header, columns come from x-clustering all
// fragments and roles from a positional fallback.
func inferColumns(rows []rawRow, region domain.Region, cfg Config) ([]Column, int) {
	for i := 0; i < len(rows) && i < 2; i++ {
		if cols, ok := headerColumns(rows[i], region); ok {
			return cols, i + 1
		}
	}
	return clusteredColumns(rows, region, cfg.ColumnGap), 0
}

func headerColumns(row rawRow, region domain.Region) ([]Column, bool) {
	matched := 0
	roles := make([]ColumnRole, len(row.fragments))
	for i, f := range row.fragments {
		roles[i] = headerRole(f.Text)
		if roles[i] != RoleUnknown {
			matched++
		}
	}
	if matched < 2 {
		return nil, false
	}

	cols := make([]Column, len(row.fragments))
	for i, f := range row.fragments {
		minX := region.BBox.X
		if i > 0 {
			minX = (row.fragments[i-1].BBox.Right() + f.BBox.X) / 2
		}
		maxX := region.BBox.Right()
		if i+1 < len(row.fragments) {
			maxX = (f.BBox.Right() + row.fragments[i+1].BBox.X) / 2
		}
		cols[i] = Column{Index: i, Role: roles[i], MinX: minX, MaxX: maxX}
	}
	return cols, true
}

func headerRole(text string) ColumnRole {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, hr := range headerRoles {
		for _, w := range hr.words {
			if strings.Contains(lower, w) {
				return hr.role
			}
		}
	}
	return RoleUnknown
}

func clusteredColumns(rows []rawRow, region domain.Region, gap float64) []Column {
	type span struct {
		minX, maxX float64
		numeric    int
		total      int
	}

	var frags []domain.TextFragment
	for _, r := range rows {
		frags = append(frags, r.fragments...)
	}
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].BBox.X < frags[j].BBox.X })

	var spans []*span
	for _, f := range frags {
		var cur *span
		if n := len(spans); n > 0 && f.BBox.X-spans[n-1].maxX <= gap {
			cur = spans[n-1]
		} else {
			cur = &span{minX: f.BBox.X, maxX: f.BBox.Right()}
			spans = append(spans, cur)
		}
		if f.BBox.X < cur.minX {
			cur.minX = f.BBox.X
		}
		if f.BBox.Right() > cur.maxX {
			cur.maxX = f.BBox.Right()
		}
		cur.total++
		if money.LooksNumeric(f.Text) {
			cur.numeric++
		}
	}

	cols := make([]Column, len(spans))
	numericIdx := make([]int, 0, len(spans))
	for i, sp := range spans {
		minX := region.BBox.X
		if i > 0 {
			minX = (spans[i-1].maxX + sp.minX) / 2
		}
		maxX := region.BBox.Right()
		if i+1 < len(spans) {
			maxX = (sp.maxX + spans[i+1].minX) / 2
		}
		cols[i] = Column{Index: i, Role: RoleUnknown, MinX: minX, MaxX: maxX}
		if sp.numeric*2 > sp.total {
			numericIdx = append(numericIdx, i)
		}
	}

	// Positional fallback: rightmost numeric column is the line total,
	// preceded by unit price and quantity; the leftmost non-numeric
	// column carries the description.
	fallback := []ColumnRole{RoleLineTotal, RoleUnitPrice, RoleQuantity}
	for k := 0; k < len(fallback) && k < len(numericIdx); k++ {
		cols[numericIdx[len(numericIdx)-1-k]].Role = fallback[k]
	}
	for i := range cols {
		if cols[i].Role == RoleUnknown {
			cols[i].Role = RoleDescription
			break
		}
	}
	return cols
}

func buildGrid(rows []rawRow, columns []Column, headerRows int) ([]domain.TableCell, error) {
	monetary := monetaryColumns(columns)

	type cellAcc struct {
		texts []string
		bbox  domain.BBox
		conf  float64
		n     int
	}

	var cells []domain.TableCell
	outRow := 0
	for rowIdx, row := range rows {
		acc := make([]cellAcc, len(columns))
		for _, f := range row.fragments {
			col := assignColumn(f.BBox, columns)
			if col < 0 || col >= len(columns) {
				return nil, fmt.Errorf("fragment %q mapped to out-of-range column %d", f.Text, col)
			}
			acc[col].texts = append(acc[col].texts, f.Text)
			acc[col].bbox = acc[col].bbox.Union(f.BBox)
			acc[col].conf += f.Confidence
			acc[col].n++
		}

		if rowIdx >= headerRows {
			hasMonetary := false
			for _, col := range monetary {
				if acc[col].n > 0 && money.LooksNumeric(strings.Join(acc[col].texts, " ")) {
					hasMonetary = true
					break
				}
			}
			if !hasMonetary {
				// Stray page header/footer text that leaked into the region.
				continue
			}
		}

		for colIdx := range columns {
			cell := domain.TableCell{Row: outRow, Col: colIdx}
			if a := acc[colIdx]; a.n > 0 {
				cell.Text = strings.Join(a.texts, " ")
				cell.BBox = a.bbox
				cell.Confidence = a.conf / float64(a.n)
				if isAmountColumn(columns[colIdx].Role) && !money.LooksNumeric(cell.Text) {
					// Keep the text but mark the failed numeric parse.
					cell.Confidence /= 2
				}
			}
			cells = append(cells, cell)
		}
		outRow++
	}
	return cells, nil
}

func monetaryColumns(columns []Column) []int {
	var idx []int
	for _, c := range columns {
		if c.Role == RoleUnitPrice || c.Role == RoleLineTotal {
			idx = append(idx, c.Index)
		}
	}
	if len(idx) == 0 && len(columns) > 0 {
		idx = append(idx, columns[len(columns)-1].Index)
	}
	return idx
}

func isAmountColumn(role ColumnRole) bool {
	return role == RoleQuantity || role == RoleUnitPrice || role == RoleLineTotal
}

func assignColumn(box domain.BBox, columns []Column) int {
	best, bestOverlap := -1, 0.0
	for _, c := range columns {
		span := domain.BBox{X: c.MinX, Y: box.Y, W: c.MaxX - c.MinX, H: box.H}
		if ov := box.HorizontalOverlap(span); ov > bestOverlap {
			bestOverlap = ov
			best = c.Index
		}
	}
	if best >= 0 {
		return best
	}
	// No overlap at all: nearest column center.
	cx := box.CenterX()
	bestDist := 0.0
	for _, c := range columns {
		d := cx - (c.MinX+c.MaxX)/2
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best = c.Index
			bestDist = d
		}
	}
	return best
}
