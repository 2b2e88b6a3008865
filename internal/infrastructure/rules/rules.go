// Package rules loads the declarative pipeline tuning file: region
// keyword families, field extraction rules, table geometry and
// validation tolerances. Every section is optional; omitted sections
// fall back to the compiled defaults.
package rules

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/antonkurs/docextract/internal/core/cluster"
	"github.com/antonkurs/docextract/internal/core/extract"
	"github.com/antonkurs/docextract/internal/core/table"
	"github.com/antonkurs/docextract/internal/core/usecase"
	"github.com/antonkurs/docextract/internal/core/validate"
)

type file struct {
	Keywords      cluster.Keywords `yaml:"keywords"`
	LineTolerance float64          `yaml:"line_tolerance"`

	Table struct {
		RowTolerance float64 `yaml:"row_tolerance"`
		ColumnGap    float64 `yaml:"column_gap"`
	} `yaml:"table"`

	Fields      []extract.LabelRule `yaml:"fields"`
	DateLayouts []string            `yaml:"date_layouts"`

	Validation struct {
		ArithmeticTolerance float64 `yaml:"arithmetic_tolerance"`
		FutureGraceDays     int     `yaml:"future_grace_days"`
	} `yaml:"validation"`

	ReviewThreshold float64 `yaml:"review_threshold"`
}

// Load reads the tuning file at path and maps it onto the pipeline
// configuration. An empty path yields the compiled defaults without
// touching the filesystem.
func Load(path string) (usecase.ExecutePipelineConfig, error) {
	var cfg usecase.ExecutePipelineConfig
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read rules file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return cfg, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	cfg.Cluster = cluster.Config{
		Keywords:      f.Keywords,
		LineTolerance: f.LineTolerance,
	}
	cfg.Table = table.Config{
		RowTolerance: f.Table.RowTolerance,
		ColumnGap:    f.Table.ColumnGap,
	}
	cfg.Rules = extract.Rules{
		Fields:      f.Fields,
		DateLayouts: f.DateLayouts,
	}
	cfg.Validate = validate.Config{
		Tolerance:   f.Validation.ArithmeticTolerance,
		FutureGrace: time.Duration(f.Validation.FutureGraceDays) * 24 * time.Hour,
	}
	cfg.ReviewThreshold = f.ReviewThreshold
	return cfg, nil
}
