package ports

import (
	"context"

	"github.com/antonkurs/docextract/internal/core/domain"
)

// RunStarter is the inbound contract for accepting a new OCR document
// and creating its pipeline run.
type RunStarter interface {
	Start(ctx context.Context, doc *domain.OCRDocument) (*domain.PipelineRun, error)
}

// RunExecutor drives a persisted run through its remaining stages.
type RunExecutor interface {
	Execute(ctx context.Context, runID string) (*domain.RunResult, error)
}

// RunReplayer mints a fresh run reusing the source run's persisted
// stage payloads and resumes it from the first incomplete stage. The
// source run is left untouched.
type RunReplayer interface {
	Replay(ctx context.Context, runID string) (*domain.RunResult, error)
}

// RunReader is the inbound read model for run state and results.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error)
	GetResult(ctx context.Context, runID string) (*domain.RunResult, error)
}
