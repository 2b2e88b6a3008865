// Package httpadapter exposes the pipeline over HTTP: OCR payload
// ingestion plus read access to run state and extraction results.
package httpadapter

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/antonkurs/docextract/internal/core/ports"
	"github.com/antonkurs/docextract/internal/infrastructure/ocr/payload"
	"github.com/antonkurs/docextract/internal/observability/metrics"
)

// maxPayloadBytes bounds the OCR payload body. Positioned invoice text
// for a single page is tiny; anything near this limit is garbage input.
const maxPayloadBytes = 8 << 20

type Router struct {
	starter  ports.RunStarter
	reader   ports.RunReader
	replayer ports.RunReplayer
	metrics  *metrics.HTTPServerMetrics
	service  string
}

func NewRouter(starter ports.RunStarter, reader ports.RunReader, replayer ports.RunReplayer, m *metrics.HTTPServerMetrics, service string) *Router {
	return &Router{
		starter:  starter,
		reader:   reader,
		replayer: replayer,
		metrics:  m,
		service:  service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.submitDocument)
	mux.HandleFunc("/v1/runs/", rt.runSubtree)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) submitDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	doc, err := payload.Decode(body)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordDocumentRejected(rt.service)
		}
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	run, err := rt.starter.Start(r.Context(), doc)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordDocumentRejected(rt.service)
		}
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordDocumentAccepted(rt.service)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": run.ID,
		"stage":  string(run.Stage),
	})
}

// runSubtree dispatches /v1/runs/{id}, /v1/runs/{id}/result and
// /v1/runs/{id}/replay.
func (rt *Router) runSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	runID, tail, _ := strings.Cut(rest, "/")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}

	switch tail {
	case "":
		rt.withMethod(w, r, http.MethodGet, runID, rt.getRun)
	case "result":
		rt.withMethod(w, r, http.MethodGet, runID, rt.getResult)
	case "replay":
		rt.withMethod(w, r, http.MethodPost, runID, rt.replayRun)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (rt *Router) withMethod(w http.ResponseWriter, r *http.Request, method, runID string, handle func(http.ResponseWriter, *http.Request, string)) {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	handle(w, r, runID)
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := rt.reader.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) getResult(w http.ResponseWriter, r *http.Request, runID string) {
	result, err := rt.reader.GetResult(r.Context(), runID)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// replayRun starts a fresh run that reuses the source run's persisted
// stage payloads and resumes where it left off. Completed stages are
// never recomputed, so replaying a finished run is side-effect free.
func (rt *Router) replayRun(w http.ResponseWriter, r *http.Request, runID string) {
	result, err := rt.replayer.Replay(r.Context(), runID)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
