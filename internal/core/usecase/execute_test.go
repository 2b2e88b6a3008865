package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/antonkurs/docextract/internal/core/domain"
	"github.com/antonkurs/docextract/internal/core/ports"
)

type runRepoFake struct {
	runs      map[string]*domain.PipelineRun
	getErr    error
	updateErr error
}

func newRunRepoFake() *runRepoFake {
	return &runRepoFake{runs: make(map[string]*domain.PipelineRun)}
}

func (f *runRepoFake) Create(_ context.Context, run *domain.PipelineRun) error {
	f.runs[run.ID] = copyRun(run)
	return nil
}

func (f *runRepoFake) GetByID(_ context.Context, id string) (*domain.PipelineRun, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRunNotFound, "get run", errors.New(id))
	}
	return copyRun(run), nil
}

func (f *runRepoFake) UpdateStage(_ context.Context, id string, stage domain.Stage, meta domain.StageMeta) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	run := f.runs[id]
	run.Stage = stage
	run.StageMeta[stage] = meta
	run.UpdatedAt = meta.CompletedAt
	run.Error = nil
	return nil
}

func (f *runRepoFake) MarkFailed(_ context.Context, id string, stageErr domain.StageError) error {
	run := f.runs[id]
	run.Stage = domain.StageFailed
	run.Error = &stageErr
	return nil
}

func copyRun(run *domain.PipelineRun) *domain.PipelineRun {
	out := *run
	out.StageMeta = make(map[domain.Stage]domain.StageMeta, len(run.StageMeta))
	for k, v := range run.StageMeta {
		out.StageMeta[k] = v
	}
	return &out
}

type sinkFake struct {
	name   string
	err    error
	writes int
}

func (f *sinkFake) Name() string { return f.name }

func (f *sinkFake) Write(context.Context, string, *domain.StructuredDocument, *domain.ValidationResult) error {
	f.writes++
	return f.err
}

type semanticFake struct {
	candidates []domain.FieldCandidate
	err        error
	calls      int
}

func (f *semanticFake) ExtractFields(context.Context, []domain.Region) ([]domain.FieldCandidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

type correctionLogFake struct {
	records []domain.CorrectionRecord
}

func (f *correctionLogFake) Append(_ context.Context, record domain.CorrectionRecord) error {
	f.records = append(f.records, record)
	return nil
}

func invoiceFrag(text string, x, y float64) domain.TextFragment {
	return domain.TextFragment{
		Text:       text,
		BBox:       domain.BBox{X: x, Y: y, W: float64(8 * len(text)), H: 12},
		Confidence: 0.9,
	}
}

// invoiceDocument is a minimal but complete invoice page: vendor block,
// bill-to block, a headed one-row line-items table and a totals block.
func invoiceDocument(grandTotal string) *domain.OCRDocument {
	return &domain.OCRDocument{
		Page: domain.Page{Width: 600, Height: 800},
		Fragments: []domain.TextFragment{
			invoiceFrag("Acme Co.", 40, 40),
			invoiceFrag("Bill To", 380, 100),
			invoiceFrag("Jane Smith", 380, 120),
			invoiceFrag("Description", 40, 330),
			invoiceFrag("Qty", 280, 330),
			invoiceFrag("Unit Price", 360, 330),
			invoiceFrag("Amount", 480, 330),
			invoiceFrag("Widget A", 40, 360),
			invoiceFrag("2", 285, 360),
			invoiceFrag("50.00", 365, 360),
			invoiceFrag("100.00", 482, 360),
			invoiceFrag("Subtotal", 360, 640),
			invoiceFrag("100.00", 482, 640),
			invoiceFrag("Tax", 360, 665),
			invoiceFrag("10.00", 482, 665),
			invoiceFrag("Grand Total", 360, 690),
			invoiceFrag(grandTotal, 482, 690),
		},
	}
}

func seedIngestedRun(t *testing.T, repo *runRepoFake, doc *domain.OCRDocument) string {
	t.Helper()
	payload, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	now := time.Now().UTC()
	run := &domain.PipelineRun{
		ID:        "run-1",
		Stage:     domain.StageIngested,
		CreatedAt: now,
		UpdatedAt: now,
		StageMeta: map[domain.Stage]domain.StageMeta{
			domain.StageIngested: {CompletedAt: now, Payload: payload},
		},
	}
	if err := repo.Create(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	return run.ID
}

func TestExecuteCleanInvoiceReachesLoaded(t *testing.T) {
	repo := newRunRepoFake()
	sink := &sinkFake{name: "relational"}
	corrections := &correctionLogFake{}
	uc := NewExecuteRunUseCase(repo, nil, []ports.Sink{sink}, corrections, ExecutePipelineConfig{})

	id := seedIngestedRun(t, repo, invoiceDocument("110.00"))
	result, err := uc.Execute(context.Background(), id)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Run.Stage != domain.StageLoaded {
		t.Fatalf("stage = %s, want %s", result.Run.Stage, domain.StageLoaded)
	}
	if result.Document == nil || len(result.Document.LineItems) != 1 {
		t.Fatalf("document = %+v, want one line item", result.Document)
	}
	item := result.Document.LineItems[0]
	if item.Description.Value.Text != "Widget A" || item.Quantity.Value.Amount != 2 ||
		item.UnitPrice.Value.Amount != 50 || item.LineTotal.Value.Amount != 100 {
		t.Fatalf("line item = %+v", item)
	}
	if result.Validation == nil || !result.Validation.IsValid {
		t.Fatalf("validation = %+v, want valid", result.Validation)
	}
	if sink.writes != 1 {
		t.Fatalf("sink writes = %d, want 1", sink.writes)
	}
	if len(result.SinkResults) != 1 || !result.SinkResults[0].Success {
		t.Fatalf("sink results = %+v", result.SinkResults)
	}
	if len(corrections.records) != 0 {
		t.Fatalf("valid confident run must not export corrections: %+v", corrections.records)
	}
}

func TestExecuteArithmeticMismatchStillLoads(t *testing.T) {
	repo := newRunRepoFake()
	corrections := &correctionLogFake{}
	uc := NewExecuteRunUseCase(repo, nil, nil, corrections, ExecutePipelineConfig{})

	id := seedIngestedRun(t, repo, invoiceDocument("115.00"))
	result, err := uc.Execute(context.Background(), id)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Run.Stage != domain.StageLoaded {
		t.Fatalf("business-rule violations must not stop the pipeline, stage = %s", result.Run.Stage)
	}
	if result.Validation.IsValid {
		t.Fatal("mismatched grand total must invalidate the document")
	}
	if len(result.Validation.Errors) != 1 || result.Validation.Errors[0].Code != domain.IssueGrandTotalMismatch {
		t.Fatalf("errors = %+v, want exactly one grand-total mismatch", result.Validation.Errors)
	}
	if len(corrections.records) != 1 || corrections.records[0].RunID != id {
		t.Fatalf("invalid run must export a correction record, got %+v", corrections.records)
	}
	if corrections.records[0].Correction != nil {
		t.Fatal("correction field is filled by humans, not the pipeline")
	}
}

func TestExecuteSinkFailureReportedNotFatal(t *testing.T) {
	repo := newRunRepoFake()
	good := &sinkFake{name: "relational"}
	bad := &sinkFake{name: "graph", err: errors.New("connection refused")}
	uc := NewExecuteRunUseCase(repo, nil, []ports.Sink{good, bad}, nil, ExecutePipelineConfig{})

	id := seedIngestedRun(t, repo, invoiceDocument("110.00"))
	result, err := uc.Execute(context.Background(), id)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Run.Stage != domain.StageLoaded {
		t.Fatalf("stage = %s, want %s", result.Run.Stage, domain.StageLoaded)
	}
	if len(result.SinkResults) != 2 {
		t.Fatalf("sink results = %+v, want 2", result.SinkResults)
	}
	byName := make(map[string]domain.SinkResult)
	for _, r := range result.SinkResults {
		byName[r.SinkName] = r
	}
	if !byName["relational"].Success {
		t.Fatalf("healthy sink must succeed: %+v", byName)
	}
	if byName["graph"].Success || byName["graph"].Error == "" {
		t.Fatalf("failed sink must carry its error: %+v", byName["graph"])
	}
}

func TestExecuteSemanticCandidatesMerged(t *testing.T) {
	repo := newRunRepoFake()
	semantic := &semanticFake{candidates: []domain.FieldCandidate{{
		FieldName:  domain.FieldInvoiceNumber,
		Value:      domain.TextValue("8842"),
		Confidence: 0.95,
		Origin:     "semantic",
	}}}
	uc := NewExecuteRunUseCase(repo, semantic, nil, nil, ExecutePipelineConfig{})

	id := seedIngestedRun(t, repo, invoiceDocument("110.00"))
	result, err := uc.Execute(context.Background(), id)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if semantic.calls != 1 {
		t.Fatalf("semantic extractor calls = %d, want 1", semantic.calls)
	}
	if result.Document.InvoiceNumber == nil || result.Document.InvoiceNumber.Value.Text != "8842" {
		t.Fatalf("invoice number = %+v, want semantic candidate", result.Document.InvoiceNumber)
	}
}

func TestExecuteCollaboratorFailureFailsRun(t *testing.T) {
	repo := newRunRepoFake()
	semantic := &semanticFake{err: domain.WrapError(domain.ErrTemporary, "extract fields", errors.New("model timeout"))}
	uc := NewExecuteRunUseCase(repo, semantic, nil, nil, ExecutePipelineConfig{})

	id := seedIngestedRun(t, repo, invoiceDocument("110.00"))
	if _, err := uc.Execute(context.Background(), id); err == nil {
		t.Fatal("Execute() must surface the collaborator failure")
	}

	stored := repo.runs[id]
	if stored.Stage != domain.StageFailed {
		t.Fatalf("stage = %s, want %s", stored.Stage, domain.StageFailed)
	}
	if stored.Error == nil || stored.Error.Stage != domain.StageExtracted {
		t.Fatalf("failure payload = %+v, want extracted-stage error", stored.Error)
	}
}

func TestReplayLoadedRunIsNoop(t *testing.T) {
	repo := newRunRepoFake()
	sink := &sinkFake{name: "relational"}
	exec := NewExecuteRunUseCase(repo, nil, []ports.Sink{sink}, nil, ExecutePipelineConfig{})

	id := seedIngestedRun(t, repo, invoiceDocument("110.00"))
	first, err := exec.Execute(context.Background(), id)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	replayed, err := NewReplayRunUseCase(exec).Replay(context.Background(), id)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if sink.writes != 1 {
		t.Fatalf("replay of a loaded run must not write sinks again, writes = %d", sink.writes)
	}
	if replayed.Run.ID == id {
		t.Fatal("replay must mint a fresh run id")
	}
	if _, ok := repo.runs[replayed.Run.ID]; !ok {
		t.Fatal("replayed run must be persisted under its own id")
	}
	if !reflect.DeepEqual(first.Document, replayed.Document) {
		t.Fatal("replayed document differs from the original result")
	}
	if !reflect.DeepEqual(first.Validation, replayed.Validation) {
		t.Fatal("replayed validation differs from the original result")
	}
	if !reflect.DeepEqual(first.SinkResults, replayed.SinkResults) {
		t.Fatal("replayed sink results differ from the original result")
	}
}

func TestReplayResumesFailedRun(t *testing.T) {
	repo := newRunRepoFake()
	semantic := &semanticFake{err: errors.New("model timeout")}
	exec := NewExecuteRunUseCase(repo, semantic, nil, nil, ExecutePipelineConfig{})

	id := seedIngestedRun(t, repo, invoiceDocument("110.00"))
	if _, err := exec.Execute(context.Background(), id); err == nil {
		t.Fatal("first execution should fail")
	}

	// The collaborator recovers; replay clones the run and resumes from
	// the classification stage already on record instead of starting over.
	semantic.err = nil
	result, err := NewReplayRunUseCase(exec).Replay(context.Background(), id)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if result.Run.Stage != domain.StageLoaded {
		t.Fatalf("stage = %s, want %s", result.Run.Stage, domain.StageLoaded)
	}
	if result.Run.Error != nil {
		t.Fatalf("recovered run still carries error %+v", result.Run.Error)
	}
	if result.Run.ID == id {
		t.Fatal("replay must execute under a fresh run id")
	}
	if source := repo.runs[id]; source.Stage != domain.StageFailed {
		t.Fatalf("source run stage = %s, failed runs stay terminal", source.Stage)
	}
	if meta, ok := result.Run.StageMeta[domain.StageClassified]; !ok || len(meta.Payload) == 0 {
		t.Fatal("clone must reuse the source run's classified-stage payload")
	}
}

func TestExecuteFailedRunRejected(t *testing.T) {
	repo := newRunRepoFake()
	semantic := &semanticFake{err: errors.New("model timeout")}
	uc := NewExecuteRunUseCase(repo, semantic, nil, nil, ExecutePipelineConfig{})

	id := seedIngestedRun(t, repo, invoiceDocument("110.00"))
	if _, err := uc.Execute(context.Background(), id); err == nil {
		t.Fatal("first execution should fail")
	}
	if _, err := uc.Execute(context.Background(), id); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("executing a failed run = %v, want invalid-input error", err)
	}
}

func TestExecuteUnknownRun(t *testing.T) {
	uc := NewExecuteRunUseCase(newRunRepoFake(), nil, nil, nil, ExecutePipelineConfig{})
	if _, err := uc.Execute(context.Background(), "missing"); !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("Execute(missing) = %v, want run-not-found error", err)
	}
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	repo := newRunRepoFake()
	uc := NewExecuteRunUseCase(repo, nil, nil, nil, ExecutePipelineConfig{})
	id := seedIngestedRun(t, repo, invoiceDocument("110.00"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := uc.Execute(ctx, id); !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute(canceled ctx) = %v, want context.Canceled", err)
	}
	if repo.runs[id].Stage != domain.StageIngested {
		t.Fatalf("canceled run must not advance, stage = %s", repo.runs[id].Stage)
	}
}
