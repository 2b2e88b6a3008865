package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/antonkurs/docextract/internal/core/domain"
)

// RunRepository persists pipeline runs and their per-stage metadata in
// two tables: one row per run, one row per completed stage.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	stage TEXT NOT NULL,
	error_stage TEXT,
	error_message TEXT,
	error_details TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_run_stages (
	run_id TEXT NOT NULL REFERENCES pipeline_runs(id) ON DELETE CASCADE,
	stage TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	payload JSONB,
	PRIMARY KEY (run_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_stage ON pipeline_runs(stage);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_created_at ON pipeline_runs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RunRepository) Create(ctx context.Context, run *domain.PipelineRun) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO pipeline_runs (id, stage, created_at, updated_at)
VALUES ($1,$2,$3,$4)
`, run.ID, string(run.Stage), run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}

	for stage, meta := range run.StageMeta {
		if err := upsertStage(ctx, tx, run.ID, stage, meta); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, stage, error_stage, error_message, error_details, created_at, updated_at
FROM pipeline_runs
WHERE id = $1
`, id)

	var run domain.PipelineRun
	var stage string
	var errStage, errMessage, errDetails sql.NullString

	err := row.Scan(&run.ID, &stage, &errStage, &errMessage, &errDetails, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan pipeline run: %w", err)
	}

	run.Stage, err = domain.ParseStage(stage)
	if err != nil {
		return nil, fmt.Errorf("stored stage: %w", err)
	}
	if errStage.Valid {
		failedAt, err := domain.ParseStage(errStage.String)
		if err != nil {
			return nil, fmt.Errorf("stored error stage: %w", err)
		}
		run.Error = &domain.StageError{
			Stage:   failedAt,
			Message: errMessage.String,
			Details: errDetails.String,
		}
	}

	if err := r.loadStageMeta(ctx, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *RunRepository) loadStageMeta(ctx context.Context, run *domain.PipelineRun) error {
	rows, err := r.db.QueryContext(ctx, `
SELECT stage, completed_at, duration_ms, payload
FROM pipeline_run_stages
WHERE run_id = $1
ORDER BY completed_at
`, run.ID)
	if err != nil {
		return fmt.Errorf("query stage metadata: %w", err)
	}
	defer rows.Close()

	run.StageMeta = make(map[domain.Stage]domain.StageMeta)
	for rows.Next() {
		var stageName string
		var meta domain.StageMeta
		var payload []byte
		if err := rows.Scan(&stageName, &meta.CompletedAt, &meta.DurationMS, &payload); err != nil {
			return fmt.Errorf("scan stage metadata: %w", err)
		}
		stage, err := domain.ParseStage(stageName)
		if err != nil {
			return fmt.Errorf("stored stage metadata: %w", err)
		}
		meta.Payload = payload
		run.StageMeta[stage] = meta
	}
	return rows.Err()
}

// UpdateStage records a completed stage and moves the run forward. Any
// stale failure marker from a previous attempt is cleared.
func (r *RunRepository) UpdateStage(ctx context.Context, id string, stage domain.Stage, meta domain.StageMeta) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stage tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE pipeline_runs
SET stage = $2, error_stage = NULL, error_message = NULL, error_details = NULL, updated_at = $3
WHERE id = $1
`, id, string(stage), meta.CompletedAt)
	if err != nil {
		return fmt.Errorf("update run stage: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrRunNotFound, "update run stage", fmt.Errorf("id %s", id))
	}

	if err := upsertStage(ctx, tx, id, stage, meta); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stage tx: %w", err)
	}
	return nil
}

func upsertStage(ctx context.Context, tx *sql.Tx, runID string, stage domain.Stage, meta domain.StageMeta) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO pipeline_run_stages (run_id, stage, completed_at, duration_ms, payload)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (run_id, stage) DO UPDATE
SET completed_at = EXCLUDED.completed_at, duration_ms = EXCLUDED.duration_ms, payload = EXCLUDED.payload
`, runID, string(stage), meta.CompletedAt, meta.DurationMS, []byte(meta.Payload))
	if err != nil {
		return fmt.Errorf("upsert stage metadata: %w", err)
	}
	return nil
}

func (r *RunRepository) MarkFailed(ctx context.Context, id string, stageErr domain.StageError) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET stage = $2, error_stage = $3, error_message = $4, error_details = $5, updated_at = $6
WHERE id = $1
`, id, string(domain.StageFailed), string(stageErr.Stage), stageErr.Message, stageErr.Details, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark run failed: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrRunNotFound, "mark run failed", fmt.Errorf("id %s", id))
	}
	return nil
}
