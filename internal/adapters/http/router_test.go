package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/antonkurs/docextract/internal/core/domain"
)

type starterFake struct {
	run  *domain.PipelineRun
	err  error
	docs []*domain.OCRDocument
}

func (f *starterFake) Start(_ context.Context, doc *domain.OCRDocument) (*domain.PipelineRun, error) {
	f.docs = append(f.docs, doc)
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

type readerFake struct {
	run    *domain.PipelineRun
	result *domain.RunResult
	err    error
}

func (f *readerFake) GetRun(context.Context, string) (*domain.PipelineRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

func (f *readerFake) GetResult(context.Context, string) (*domain.RunResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

const validPayload = `{
	"page": {"width": 600, "height": 800},
	"fragments": [
		{"text": "Grand Total", "bbox": {"x": 380, "y": 690, "w": 90, "h": 14}, "confidence": 0.95},
		{"text": "110.00", "bbox": {"x": 500, "y": 690, "w": 50, "h": 14}, "confidence": 0.9}
	]
}`

type replayerFake struct {
	result *domain.RunResult
	err    error
	calls  int
}

func (f *replayerFake) Replay(context.Context, string) (*domain.RunResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestRouter(starter *starterFake, reader *readerFake) http.Handler {
	return NewRouter(starter, reader, &replayerFake{}, nil, "api-test").Handler()
}

func TestSubmitDocumentAccepted(t *testing.T) {
	starter := &starterFake{run: &domain.PipelineRun{ID: "run-1", Stage: domain.StageIngested}}
	handler := newTestRouter(starter, &readerFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(validPayload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["run_id"] != "run-1" || body["stage"] != "ingested" {
		t.Fatalf("response = %v", body)
	}
	if len(starter.docs) != 1 || len(starter.docs[0].Fragments) != 2 {
		t.Fatalf("starter received %+v", starter.docs)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing request id header")
	}
}

func TestSubmitDocumentRejectsInvalidPayload(t *testing.T) {
	starter := &starterFake{}
	handler := newTestRouter(starter, &readerFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(`{"fragments": []}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(starter.docs) != 0 {
		t.Fatal("invalid payload must not reach the use case")
	}
}

func TestSubmitDocumentMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(&starterFake{}, &readerFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestGetRunReturnsState(t *testing.T) {
	reader := &readerFake{run: &domain.PipelineRun{ID: "run-1", Stage: domain.StageLoaded}}
	handler := newTestRouter(&starterFake{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var run domain.PipelineRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if run.ID != "run-1" || run.Stage != domain.StageLoaded {
		t.Fatalf("run = %+v", run)
	}
}

func TestGetRunNotFound(t *testing.T) {
	reader := &readerFake{err: domain.ErrRunNotFound}
	handler := newTestRouter(&starterFake{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetResultReturnsDocument(t *testing.T) {
	reader := &readerFake{result: &domain.RunResult{
		Run: &domain.PipelineRun{ID: "run-1", Stage: domain.StageLoaded},
		Validation: &domain.ValidationResult{
			IsValid:           true,
			OverallConfidence: 0.85,
		},
	}}
	handler := newTestRouter(&starterFake{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-1/result", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var result domain.RunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Validation == nil || !result.Validation.IsValid {
		t.Fatalf("validation = %+v", result.Validation)
	}
}

func TestReplayRun(t *testing.T) {
	replayer := &replayerFake{result: &domain.RunResult{
		Run: &domain.PipelineRun{ID: "run-1", Stage: domain.StageLoaded},
	}}
	handler := NewRouter(&starterFake{}, &readerFake{}, replayer, nil, "api-test").Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/runs/run-1/replay", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if replayer.calls != 1 {
		t.Fatalf("replayer calls = %d, want 1", replayer.calls)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/runs/run-1/replay", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET replay status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestRunSubtreeUnknownTail(t *testing.T) {
	handler := newTestRouter(&starterFake{}, &readerFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-1/bogus", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&starterFake{}, &readerFake{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
