// Command extract runs the pipeline over a single PDF without any
// backing services: positioned text is pulled from the file, pushed
// through clustering, extraction and validation in process, and the
// structured result is printed as JSON. Useful for rule tuning and
// spot checks.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antonkurs/docextract/internal/core/cluster"
	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/extract"
	"github.com/antonkurs/docextract/internal/core/resolve"
	"github.com/antonkurs/docextract/internal/core/table"
	"github.com/antonkurs/docextract/internal/core/validate"
	"github.com/antonkurs/docextract/internal/infrastructure/ocr/payload"
	"github.com/antonkurs/docextract/internal/infrastructure/ocr/pdftext"
	"github.com/antonkurs/docextract/internal/infrastructure/rules"
)

func main() {
	rulesPath := flag.String("rules", "", "path to a YAML rules file (compiled defaults when empty)")
	pretty := flag.Bool("pretty", true, "indent the JSON output")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: extract [-rules file] [-pretty] <invoice.pdf | payload.json>")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *rulesPath, *pretty); err != nil {
		fmt.Fprintln(os.Stderr, "extract:", err)
		os.Exit(1)
	}
}

// loadDocument accepts either a PDF with embedded text or an OCR
// payload JSON that already matches the input contract.
func loadDocument(path string) (*domain.OCRDocument, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return payload.Decode(raw)
	}

	doc, err := pdftext.ExtractDocument(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return doc, nil
}

type output struct {
	Document   *domain.StructuredDocument `json:"structured_document"`
	Validation domain.ValidationResult    `json:"validation_result"`
	Regions    []domain.RegionKind        `json:"detected_regions"`
}

func run(path, rulesPath string, pretty bool) error {
	cfg, err := rules.Load(rulesPath)
	if err != nil {
		return err
	}

	doc, err := loadDocument(path)
	if err != nil {
		return err
	}

	regions := cluster.Cluster(doc.Fragments, doc.Page, cfg.Cluster)

	var itemTable table.Table
	for _, region := range regions {
		if region.Kind == domain.RegionLineItems {
			itemTable, err = table.Reconstruct(region, cfg.Table)
			if err != nil {
				return fmt.Errorf("reconstruct table: %w", err)
			}
			break
		}
	}

	ruleSet := cfg.Rules
	if len(ruleSet.Fields) == 0 {
		ruleSet = extract.DefaultRules()
	}
	candidates := extract.Extract(regions, itemTable, ruleSet)

	resolved := resolve.Resolve(candidates)
	structured := resolve.Assemble(resolved)

	validateCfg := cfg.Validate
	validateCfg.Today = time.Now().UTC()
	validation := validate.Validate(structured, validateCfg)

	kinds := make([]domain.RegionKind, 0, len(regions))
	for _, region := range regions {
		kinds = append(kinds, region.Kind)
	}

	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(output{
		Document:   structured,
		Validation: validation,
		Regions:    kinds,
	})
}
