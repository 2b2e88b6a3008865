package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/ports"
)

// StartRunUseCase accepts an OCR document, persists the ingested run and
// hands it to the worker pool through the queue.
type StartRunUseCase struct {
	repo  ports.RunRepository
	queue ports.RunQueue
}

func NewStartRunUseCase(repo ports.RunRepository, queue ports.RunQueue) *StartRunUseCase {
	return &StartRunUseCase{repo: repo, queue: queue}
}

// Start validates the payload, creates the run in the ingested stage with
// the document stored as stage metadata, and publishes the run for
// asynchronous execution. Malformed input fails here, before any run
// record exists.
func (uc *StartRunUseCase) Start(ctx context.Context, doc *domain.OCRDocument) (*domain.PipelineRun, error) {
	if err := validateInput(doc); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode ingested document: %w", err)
	}

	now := time.Now().UTC()
	run := &domain.PipelineRun{
		ID:        uuid.NewString(),
		Stage:     domain.StageIngested,
		CreatedAt: now,
		UpdatedAt: now,
		StageMeta: map[domain.Stage]domain.StageMeta{
			domain.StageIngested: {CompletedAt: now, Payload: payload},
		},
	}

	if err := uc.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create pipeline run: %w", err)
	}

	if err := uc.queue.PublishRunCreated(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("publish run created event: %w", err)
	}

	return run, nil
}

func validateInput(doc *domain.OCRDocument) error {
	if doc == nil || len(doc.Fragments) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "start run", errors.New("document carries no text fragments"))
	}
	for i, f := range doc.Fragments {
		if f.Confidence < 0 || f.Confidence > 1 {
			return domain.WrapError(domain.ErrInvalidInput, "start run",
				fmt.Errorf("fragment %d confidence %v outside [0,1]", i, f.Confidence))
		}
		if f.BBox.W < 0 || f.BBox.H < 0 {
			return domain.WrapError(domain.ErrInvalidInput, "start run",
				fmt.Errorf("fragment %d has a negative bounding box", i))
		}
	}
	return nil
}
