// Package sink decorates the concrete sinks with the shared retry and
// circuit-breaker policy. Sinks are plain writers; the wrapper keeps
// delivery semantics uniform without each sink carrying its own retry
// loop.
package sink

import (
	"context"
	"errors"

	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/ports"
	"github.com/antonkurs/docextract/internal/infrastructure/resilience"
)

// WithResilience wraps a sink so writes retry with backoff and count
// toward a per-sink breaker. Writes are keyed by run id and therefore
// idempotent, so retrying a half-applied write is safe.
func WithResilience(inner ports.Sink, executor *resilience.Executor) ports.Sink {
	if executor == nil {
		return inner
	}
	return &resilientSink{
		inner:     inner,
		executor:  executor,
		operation: "sink.write_" + inner.Name(),
	}
}

type resilientSink struct {
	inner     ports.Sink
	executor  *resilience.Executor
	operation string
}

func (s *resilientSink) Name() string { return s.inner.Name() }

func (s *resilientSink) Write(ctx context.Context, runID string, doc *domain.StructuredDocument, res *domain.ValidationResult) error {
	return s.executor.Execute(ctx, s.operation, func(callCtx context.Context) error {
		return s.inner.Write(callCtx, runID, doc, res)
	}, classifySinkError)
}

// classifySinkError treats every write failure as transient I/O worth
// retrying; the document was validated stages earlier, so there is no
// bad-input case to fail fast on. Context cancellation is the caller's
// decision and neither retries nor counts against the breaker.
func classifySinkError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{
		Retryable:     true,
		RecordFailure: true,
	}
}
