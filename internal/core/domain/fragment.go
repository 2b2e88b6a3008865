package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BBox is an axis-aligned bounding rectangle in page coordinates.
// X/Y is the top-left corner; Y grows downward.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// UnmarshalJSON accepts both the named-field object form and the input
// contract's compact [x, y, w, h] array form.
func (b *BBox) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var coords []float64
		if err := json.Unmarshal(trimmed, &coords); err != nil {
			return err
		}
		if len(coords) != 4 {
			return fmt.Errorf("bbox array needs 4 elements, got %d", len(coords))
		}
		b.X, b.Y, b.W, b.H = coords[0], coords[1], coords[2], coords[3]
		return nil
	}

	type bare BBox
	var v bare
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = BBox(v)
	return nil
}

func (b BBox) Right() float64   { return b.X + b.W }
func (b BBox) Bottom() float64  { return b.Y + b.H }
func (b BBox) CenterX() float64 { return b.X + b.W/2 }
func (b BBox) CenterY() float64 { return b.Y + b.H/2 }

// Union returns the smallest rectangle covering both boxes.
func (b BBox) Union(other BBox) BBox {
	if b.W == 0 && b.H == 0 {
		return other
	}
	minX := min(b.X, other.X)
	minY := min(b.Y, other.Y)
	maxX := max(b.Right(), other.Right())
	maxY := max(b.Bottom(), other.Bottom())
	return BBox{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// HorizontalOverlap returns the overlapping width between the two boxes'
// x-extents, zero when they are disjoint.
func (b BBox) HorizontalOverlap(other BBox) float64 {
	left := max(b.X, other.X)
	right := min(b.Right(), other.Right())
	if right <= left {
		return 0
	}
	return right - left
}

// TextFragment is one OCR-recognized text span. It is an immutable value
// produced by the external OCR collaborator; the fragment list is the sole
// input to the extraction core.
type TextFragment struct {
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// Page carries the source page dimensions used for relative positioning.
type Page struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OCRDocument is the input contract delivered by the OCR collaborator.
type OCRDocument struct {
	Fragments []TextFragment `json:"fragments"`
	Page      Page           `json:"page"`
}
