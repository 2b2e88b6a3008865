package usecase

import (
	"encoding/json"
	"fmt"

	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/table"
)

// extractedPayload is the persisted output of the extraction stage: the
// reconstructed line-items table plus every field candidate gathered from
// the deterministic and semantic extractors.
type extractedPayload struct {
	Table      table.Table             `json:"table"`
	Candidates []domain.FieldCandidate `json:"candidates"`
}

// validatedPayload keeps the validation result next to the document it
// scored so the result can be rebuilt without re-running earlier stages.
type validatedPayload struct {
	Validation domain.ValidationResult `json:"validation_result"`
}

type loadedPayload struct {
	SinkResults []domain.SinkResult `json:"sink_results"`
}

func stagePayload[T any](run *domain.PipelineRun, stage domain.Stage) (T, error) {
	var out T
	meta, ok := run.StageMeta[stage]
	if !ok || len(meta.Payload) == 0 {
		return out, domain.WrapError(domain.ErrInternal, "load stage payload",
			fmt.Errorf("run %s has no %s payload", run.ID, stage))
	}
	if err := json.Unmarshal(meta.Payload, &out); err != nil {
		return out, domain.WrapError(domain.ErrInternal, "decode stage payload",
			fmt.Errorf("run %s stage %s: %w", run.ID, stage, err))
	}
	return out, nil
}

func encodePayload(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "encode stage payload", err)
	}
	return raw, nil
}

// buildResult assembles the output contract from whatever stages the run
// has completed. Earlier-stage runs simply carry nil for the missing
// parts.
func buildResult(run *domain.PipelineRun) (*domain.RunResult, error) {
	result := &domain.RunResult{Run: run}

	if _, ok := run.StageMeta[domain.StageTransformed]; ok {
		doc, err := stagePayload[*domain.StructuredDocument](run, domain.StageTransformed)
		if err != nil {
			return nil, err
		}
		result.Document = doc
	}
	if _, ok := run.StageMeta[domain.StageValidated]; ok {
		payload, err := stagePayload[validatedPayload](run, domain.StageValidated)
		if err != nil {
			return nil, err
		}
		result.Validation = &payload.Validation
	}
	if _, ok := run.StageMeta[domain.StageLoaded]; ok {
		payload, err := stagePayload[loadedPayload](run, domain.StageLoaded)
		if err != nil {
			return nil, err
		}
		result.SinkResults = payload.SinkResults
	}
	return result, nil
}
