// Package postgres persists finished extractions into a relational
// table keyed by run id. Repeated writes for the same run upsert, so
// replays never produce duplicate rows.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/antonkurs/docextract/internal/core/domain"
)

type Sink struct {
	db *sql.DB
}

func NewSink(db *sql.DB) *Sink {
	return &Sink{db: db}
}

func (s *Sink) Name() string { return "relational" }

// EnsureSchema creates the target table. Concurrent callers serialize
// on an advisory lock, mirroring the run repository migration.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2026083102)`); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS extracted_documents (
			run_id             TEXT PRIMARY KEY,
			document           JSONB NOT NULL,
			validation         JSONB NOT NULL,
			is_valid           BOOLEAN NOT NULL,
			overall_confidence DOUBLE PRECISION NOT NULL,
			loaded_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create extracted_documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_extracted_documents_loaded_at
			ON extracted_documents (loaded_at DESC)`); err != nil {
		return fmt.Errorf("create loaded_at index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *Sink) Write(ctx context.Context, runID string, doc *domain.StructuredDocument, res *domain.ValidationResult) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal validation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO extracted_documents (run_id, document, validation, is_valid, overall_confidence, loaded_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (run_id) DO UPDATE SET
			document = EXCLUDED.document,
			validation = EXCLUDED.validation,
			is_valid = EXCLUDED.is_valid,
			overall_confidence = EXCLUDED.overall_confidence,
			loaded_at = EXCLUDED.loaded_at`,
		runID, docJSON, resJSON, res.IsValid, res.OverallConfidence)
	if err != nil {
		return fmt.Errorf("upsert extracted document %s: %w", runID, err)
	}
	return nil
}
