package usecase

import (
	"context"
	"fmt"

	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/ports"
)

// RunQueryUseCase is the read model behind the API: run state lookups and
// the output contract for completed runs.
type RunQueryUseCase struct {
	repo ports.RunRepository
}

func NewRunQueryUseCase(repo ports.RunRepository) *RunQueryUseCase {
	return &RunQueryUseCase{repo: repo}
}

func (uc *RunQueryUseCase) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	run, err := uc.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("fetch run by id: %w", err)
	}
	return run, nil
}

// GetResult returns the output contract built from whatever stages the
// run has completed so far; callers decide whether a partial result is
// useful to them.
func (uc *RunQueryUseCase) GetResult(ctx context.Context, runID string) (*domain.RunResult, error) {
	run, err := uc.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("fetch run by id: %w", err)
	}
	return buildResult(run)
}
