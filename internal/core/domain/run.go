package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage is one state of the pipeline state machine. The set is closed and
// transitions only move forward through stageOrder, or sideways to
// StageFailed, which is terminal.
type Stage string

const (
	StageIngested    Stage = "ingested"
	StageClassified  Stage = "classified"
	StageExtracted   Stage = "extracted"
	StageTransformed Stage = "transformed"
	StageValidated   Stage = "validated"
	StageLoaded      Stage = "loaded"
	StageFailed      Stage = "failed"
)

var stageOrder = []Stage{
	StageIngested,
	StageClassified,
	StageExtracted,
	StageTransformed,
	StageValidated,
	StageLoaded,
}

// ParseStage maps a persisted stage string back to the closed enum.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageIngested, StageClassified, StageExtracted, StageTransformed, StageValidated, StageLoaded, StageFailed:
		return Stage(s), nil
	}
	return "", fmt.Errorf("unknown pipeline stage %q", s)
}

// Terminal reports whether no further transitions are allowed.
func (s Stage) Terminal() bool {
	return s == StageLoaded || s == StageFailed
}

// Next returns the following stage in the forward sequence, or empty when
// the stage is terminal.
func (s Stage) Next() Stage {
	for i, stage := range stageOrder {
		if stage == s && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return ""
}

// CanAdvanceTo enforces the transition table: strictly sequential forward
// moves, plus any non-terminal stage to failed.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return s.Next() == next
}

// StageError is the error payload carried by a failed run.
type StageError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// StageMeta is the persisted output of one completed stage. Payload holds
// the stage's serialized result so a replayed run can reuse it instead of
// recomputing.
type StageMeta struct {
	CompletedAt time.Time       `json:"completed_at"`
	DurationMS  int64           `json:"duration_ms"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// PipelineRun tracks one document's progress through the stage machine.
// The record is owned exclusively by its run; no cross-run locking exists.
type PipelineRun struct {
	ID        string              `json:"run_id"`
	Stage     Stage               `json:"stage"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	StageMeta map[Stage]StageMeta `json:"per_stage_metadata,omitempty"`
	Error     *StageError         `json:"error,omitempty"`
}

// Advance applies a forward transition and records the stage metadata.
func (r *PipelineRun) Advance(next Stage, meta StageMeta) error {
	if !r.Stage.CanAdvanceTo(next) {
		return fmt.Errorf("illegal stage transition %s -> %s", r.Stage, next)
	}
	if r.StageMeta == nil {
		r.StageMeta = make(map[Stage]StageMeta, len(stageOrder))
	}
	r.Stage = next
	r.StageMeta[next] = meta
	r.UpdatedAt = meta.CompletedAt
	return nil
}

// Fail moves the run to the terminal failed stage with the error payload.
func (r *PipelineRun) Fail(stageErr StageError, at time.Time) error {
	if !r.Stage.CanAdvanceTo(StageFailed) {
		return fmt.Errorf("illegal stage transition %s -> %s", r.Stage, StageFailed)
	}
	r.Stage = StageFailed
	r.Error = &stageErr
	r.UpdatedAt = at
	return nil
}

// SinkResult reports the outcome of one sink write during fan-out.
type SinkResult struct {
	SinkName string `json:"sink_name"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// RunResult is the output contract handed to the API layer: the consumer
// always receives the structured document plus validation metadata, even
// when validation found business-rule violations.
type RunResult struct {
	Run         *PipelineRun        `json:"run_metadata"`
	Document    *StructuredDocument `json:"structured_document"`
	Validation  *ValidationResult   `json:"validation_result"`
	SinkResults []SinkResult        `json:"sink_results,omitempty"`
}

// CorrectionRecord is the active-learning export emitted for invalid or
// low-confidence runs; a human-correction tool later fills Correction with
// the same shape as the structured document.
type CorrectionRecord struct {
	RunID      string              `json:"run_id"`
	Document   *StructuredDocument `json:"structured_document"`
	Validation *ValidationResult   `json:"validation_result"`
	Correction *StructuredDocument `json:"correction"`
}
