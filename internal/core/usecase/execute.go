package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/antonkurs/docextract/internal/core/cluster"
	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/extract"
	"github.com/antonkurs/docextract/internal/core/ports"
	"github.com/antonkurs/docextract/internal/core/resolve"
	"github.com/antonkurs/docextract/internal/core/table"
	"github.com/antonkurs/docextract/internal/core/validate"
)

// ExecutePipelineConfig tunes the stage computations of a run.
type ExecutePipelineConfig struct {
	Cluster  cluster.Config
	Table    table.Config
	Rules    extract.Rules
	Validate validate.Config
	// ReviewThreshold is the overall-confidence floor below which a
	// correction record is exported even for valid documents.
	ReviewThreshold float64
}

func (c ExecutePipelineConfig) withDefaults() ExecutePipelineConfig {
	if len(c.Rules.Fields) == 0 {
		c.Rules = extract.DefaultRules()
	}
	if c.ReviewThreshold <= 0 {
		c.ReviewThreshold = 0.5
	}
	return c
}

// ExecuteRunUseCase drives one persisted run through its remaining
// stages. Stages whose metadata already exists are reused, not recomputed,
// so re-executing a partially completed run never repeats side effects.
type ExecuteRunUseCase struct {
	repo        ports.RunRepository
	semantic    ports.SemanticExtractor
	sinks       []ports.Sink
	corrections ports.CorrectionLog
	cfg         ExecutePipelineConfig
	now         func() time.Time
}

func NewExecuteRunUseCase(
	repo ports.RunRepository,
	semantic ports.SemanticExtractor,
	sinks []ports.Sink,
	corrections ports.CorrectionLog,
	cfg ExecutePipelineConfig,
) *ExecuteRunUseCase {
	return &ExecuteRunUseCase{
		repo:        repo,
		semantic:    semantic,
		sinks:       sinks,
		corrections: corrections,
		cfg:         cfg.withDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ExecuteRunUseCase) Execute(ctx context.Context, runID string) (*domain.RunResult, error) {
	run, err := uc.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("fetch run by id: %w", err)
	}
	if run.Stage == domain.StageFailed {
		return nil, domain.WrapError(domain.ErrInvalidInput, "execute run",
			fmt.Errorf("run %s already failed at stage %s", run.ID, run.Error.Stage))
	}
	return uc.resume(ctx, run)
}

// resume advances run until a terminal stage. A stage whose metadata is
// already recorded is replayed from that metadata.
func (uc *ExecuteRunUseCase) resume(ctx context.Context, run *domain.PipelineRun) (*domain.RunResult, error) {
	for !run.Stage.Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := run.Stage.Next()

		meta, ok := run.StageMeta[next]
		if !ok {
			started := uc.now()
			payload, err := uc.computeStage(ctx, run, next)
			if err != nil {
				return nil, uc.failRun(ctx, run, next, err)
			}
			completed := uc.now()
			meta = domain.StageMeta{
				CompletedAt: completed,
				DurationMS:  completed.Sub(started).Milliseconds(),
				Payload:     payload,
			}
		}

		if err := run.Advance(next, meta); err != nil {
			return nil, domain.WrapError(domain.ErrInternal, "advance run", err)
		}
		if err := uc.repo.UpdateStage(ctx, run.ID, next, meta); err != nil {
			return nil, fmt.Errorf("persist stage %s: %w", next, err)
		}
	}
	return buildResult(run)
}

func (uc *ExecuteRunUseCase) computeStage(ctx context.Context, run *domain.PipelineRun, next domain.Stage) (json.RawMessage, error) {
	switch next {
	case domain.StageClassified:
		return uc.classifyStage(run)
	case domain.StageExtracted:
		return uc.extractStage(ctx, run)
	case domain.StageTransformed:
		return uc.transformStage(run)
	case domain.StageValidated:
		return uc.validateStage(run)
	case domain.StageLoaded:
		return uc.loadStage(ctx, run)
	}
	return nil, domain.WrapError(domain.ErrInternal, "compute stage", fmt.Errorf("no computation for stage %s", next))
}

func (uc *ExecuteRunUseCase) classifyStage(run *domain.PipelineRun) (json.RawMessage, error) {
	doc, err := stagePayload[*domain.OCRDocument](run, domain.StageIngested)
	if err != nil {
		return nil, err
	}
	regions := cluster.Cluster(doc.Fragments, doc.Page, uc.cfg.Cluster)
	return encodePayload(regions)
}

func (uc *ExecuteRunUseCase) extractStage(ctx context.Context, run *domain.PipelineRun) (json.RawMessage, error) {
	regions, err := stagePayload[[]domain.Region](run, domain.StageClassified)
	if err != nil {
		return nil, err
	}

	tbl := table.Table{}
	for _, region := range regions {
		if region.Kind != domain.RegionLineItems {
			continue
		}
		tbl, err = table.Reconstruct(region, uc.cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("reconstruct line-items table: %w", err)
		}
		break
	}

	candidates := extract.Extract(regions, tbl, uc.cfg.Rules)

	if uc.semantic != nil {
		proposed, err := uc.semantic.ExtractFields(ctx, regions)
		if err != nil {
			return nil, fmt.Errorf("semantic field extraction: %w", err)
		}
		candidates = append(candidates, proposed...)
	}

	return encodePayload(extractedPayload{Table: tbl, Candidates: candidates})
}

func (uc *ExecuteRunUseCase) transformStage(run *domain.PipelineRun) (json.RawMessage, error) {
	payload, err := stagePayload[extractedPayload](run, domain.StageExtracted)
	if err != nil {
		return nil, err
	}
	fields := resolve.Resolve(payload.Candidates)
	doc := resolve.Assemble(fields)
	return encodePayload(doc)
}

func (uc *ExecuteRunUseCase) validateStage(run *domain.PipelineRun) (json.RawMessage, error) {
	doc, err := stagePayload[*domain.StructuredDocument](run, domain.StageTransformed)
	if err != nil {
		return nil, err
	}
	res := validate.Validate(doc, uc.cfg.Validate)
	return encodePayload(validatedPayload{Validation: res})
}

// loadStage fans the validated document out to every configured sink.
// One sink failing is recorded in its result and does not roll back
// sinks that already succeeded.
func (uc *ExecuteRunUseCase) loadStage(ctx context.Context, run *domain.PipelineRun) (json.RawMessage, error) {
	doc, err := stagePayload[*domain.StructuredDocument](run, domain.StageTransformed)
	if err != nil {
		return nil, err
	}
	payload, err := stagePayload[validatedPayload](run, domain.StageValidated)
	if err != nil {
		return nil, err
	}
	validation := payload.Validation

	results := make([]domain.SinkResult, 0, len(uc.sinks))
	for _, sink := range uc.sinks {
		result := domain.SinkResult{SinkName: sink.Name(), Success: true}
		if err := sink.Write(ctx, run.ID, doc, &validation); err != nil {
			result.Success = false
			result.Error = err.Error()
		}
		results = append(results, result)
	}

	uc.exportCorrection(ctx, run.ID, doc, &validation)

	return encodePayload(loadedPayload{SinkResults: results})
}

// exportCorrection feeds the active-learning channel for documents that
// need human review. The channel is fire-and-forget: a write failure
// never affects the run.
func (uc *ExecuteRunUseCase) exportCorrection(ctx context.Context, runID string, doc *domain.StructuredDocument, res *domain.ValidationResult) {
	if uc.corrections == nil {
		return
	}
	if res.IsValid && res.OverallConfidence >= uc.cfg.ReviewThreshold {
		return
	}
	_ = uc.corrections.Append(ctx, domain.CorrectionRecord{
		RunID:      runID,
		Document:   doc,
		Validation: res,
	})
}

// failRun records the stage failure on the run and returns the original
// error so the caller sees what broke.
func (uc *ExecuteRunUseCase) failRun(ctx context.Context, run *domain.PipelineRun, stage domain.Stage, cause error) error {
	stageErr := domain.StageError{Stage: stage, Message: cause.Error()}
	if failErr := run.Fail(stageErr, uc.now()); failErr != nil {
		return fmt.Errorf("%w; record failure: %v", cause, failErr)
	}
	if persistErr := uc.repo.MarkFailed(ctx, run.ID, stageErr); persistErr != nil {
		return fmt.Errorf("%w; persist failure: %v", cause, persistErr)
	}
	return cause
}
