package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/antonkurs/docextract/internal/core/domain"
)

// CorrectionPublisher appends correction records to the active-learning
// subject. Consumers (a human-review tool) subscribe independently; the
// pipeline never reads this channel back.
type CorrectionPublisher struct {
	queue   *Queue
	subject string
}

func NewCorrectionPublisher(queue *Queue, subject string) *CorrectionPublisher {
	return &CorrectionPublisher{queue: queue, subject: subject}
}

func (p *CorrectionPublisher) Append(ctx context.Context, record domain.CorrectionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode correction record: %w", err)
	}

	call := func(_ context.Context) error {
		if err := p.queue.conn.Publish(p.subject, payload); err != nil {
			return fmt.Errorf("nats publish correction: %w", err)
		}
		return nil
	}

	if p.queue.executor != nil {
		err = p.queue.executor.Execute(ctx, "nats.publish_correction", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}
