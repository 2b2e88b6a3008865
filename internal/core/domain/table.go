package domain

// TableCell is one cell of the reconstructed line-item grid. Rows and
// columns are zero-based and dense: a cell with empty text is an explicit
// gap, never an omitted coordinate.
type TableCell struct {
	Row        int     `json:"row"`
	Col        int     `json:"col"`
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}
