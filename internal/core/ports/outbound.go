package ports

import (
	"context"

	"github.com/antonkurs/docextract/internal/core/domain"
)

// RunRepository persists pipeline runs and their per-stage metadata.
type RunRepository interface {
	Create(ctx context.Context, run *domain.PipelineRun) error
	GetByID(ctx context.Context, id string) (*domain.PipelineRun, error)
	UpdateStage(ctx context.Context, id string, stage domain.Stage, meta domain.StageMeta) error
	MarkFailed(ctx context.Context, id string, stageErr domain.StageError) error
}

// RunQueue publishes/consumes run-created events for asynchronous
// execution by workers.
type RunQueue interface {
	PublishRunCreated(ctx context.Context, runID string) error
	SubscribeRunCreated(ctx context.Context, handler func(context.Context, string) error) error
}

// SemanticExtractor proposes field candidates from region text using an
// external model. It is an optional second opinion alongside the
// deterministic extractor; implementations may be slow or flaky and are
// called through the resilience layer.
type SemanticExtractor interface {
	ExtractFields(ctx context.Context, regions []domain.Region) ([]domain.FieldCandidate, error)
}

// Sink receives the validated document. Implementations must tolerate
// being called more than once for the same run; the run id is the
// de-duplication key.
type Sink interface {
	Name() string
	Write(ctx context.Context, runID string, doc *domain.StructuredDocument, res *domain.ValidationResult) error
}

// CorrectionLog is the append-only side channel for documents that need
// human review.
type CorrectionLog interface {
	Append(ctx context.Context, record domain.CorrectionRecord) error
}
