// Package payload decodes and validates the OCR input contract. The
// schema is enforced before anything touches the pipeline, so malformed
// uploads fail at the API boundary with a field-level reason instead of
// surfacing later as a confusing stage failure.
package payload

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/antonkurs/docextract/internal/core/domain"
)

const schemaJSON = `{
	"type": "object",
	"required": ["fragments"],
	"properties": {
		"fragments": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["text", "bbox", "confidence"],
				"properties": {
					"text": {"type": "string"},
					"bbox": {
						"oneOf": [
							{
								"type": "array",
								"minItems": 4,
								"maxItems": 4,
								"prefixItems": [
									{"type": "number"},
									{"type": "number"},
									{"type": "number", "minimum": 0},
									{"type": "number", "minimum": 0}
								]
							},
							{
								"type": "object",
								"required": ["x", "y", "w", "h"],
								"properties": {
									"x": {"type": "number"},
									"y": {"type": "number"},
									"w": {"type": "number", "minimum": 0},
									"h": {"type": "number", "minimum": 0}
								}
							}
						]
					},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		},
		"page": {
			"type": "object",
			"properties": {
				"width": {"type": "number", "minimum": 0},
				"height": {"type": "number", "minimum": 0}
			}
		}
	}
}`

var schema = jsonschema.MustCompileString("ocr-document.json", schemaJSON)

// Decode validates raw bytes against the input contract and unmarshals
// them. Violations come back as invalid-input errors carrying the
// schema's own description of what is wrong.
func Decode(data []byte) (*domain.OCRDocument, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode ocr payload", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate ocr payload", err)
	}

	var doc domain.OCRDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode ocr payload", err)
	}
	trimFragments(&doc)
	return &doc, nil
}

// OCR engines routinely emit trailing whitespace and empty fragments;
// both are noise to the clusterer.
func trimFragments(doc *domain.OCRDocument) {
	kept := doc.Fragments[:0]
	for _, f := range doc.Fragments {
		f.Text = strings.TrimSpace(f.Text)
		if f.Text == "" {
			continue
		}
		kept = append(kept, f)
	}
	doc.Fragments = kept
}
