package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/antonkurs/docextract/internal/core/domain"
)

// ReplayRunUseCase re-runs a pipeline execution by minting a fresh run
// that reuses the source run's persisted stage payloads. The source run
// is never mutated: a failed run stays failed, and the clone resumes
// from the last stage the source actually completed. Completed stages
// are never recomputed, so replaying a loaded run reproduces its stored
// result without touching the sinks again.
type ReplayRunUseCase struct {
	exec *ExecuteRunUseCase
}

func NewReplayRunUseCase(exec *ExecuteRunUseCase) *ReplayRunUseCase {
	return &ReplayRunUseCase{exec: exec}
}

func (uc *ReplayRunUseCase) Replay(ctx context.Context, runID string) (*domain.RunResult, error) {
	source, err := uc.exec.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("fetch run by id: %w", err)
	}

	resumeFrom := lastCompletedStage(source)
	now := uc.exec.now()
	clone := &domain.PipelineRun{
		ID:        uuid.NewString(),
		Stage:     resumeFrom,
		CreatedAt: now,
		UpdatedAt: now,
		StageMeta: completedStageMeta(source, resumeFrom),
	}
	if err := uc.exec.repo.Create(ctx, clone); err != nil {
		return nil, fmt.Errorf("create replay run: %w", err)
	}

	return uc.exec.resume(ctx, clone)
}

var replayStages = []domain.Stage{
	domain.StageIngested,
	domain.StageClassified,
	domain.StageExtracted,
	domain.StageTransformed,
	domain.StageValidated,
	domain.StageLoaded,
}

func lastCompletedStage(run *domain.PipelineRun) domain.Stage {
	last := domain.StageIngested
	for _, stage := range replayStages {
		if _, ok := run.StageMeta[stage]; ok {
			last = stage
		}
	}
	return last
}

// completedStageMeta copies the source metadata up to and including the
// resume point. A failed run carries metadata only for stages that
// finished, but the cut keeps the clone's history consistent either way.
func completedStageMeta(run *domain.PipelineRun, upTo domain.Stage) map[domain.Stage]domain.StageMeta {
	meta := make(map[domain.Stage]domain.StageMeta, len(run.StageMeta))
	for _, stage := range replayStages {
		if m, ok := run.StageMeta[stage]; ok {
			meta[stage] = m
		}
		if stage == upTo {
			break
		}
	}
	return meta
}
