package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/claimscope/claimscope/internal/executor"
	"github.com/claimscope/claimscope/internal/pipeline"
)

type generateRequest struct {
	Question string `json:"question"`
}

type generateResponse struct {
	RequestID    string             `json:"request_id"`
	SQL          string             `json:"sql"`
	Attempts     []pipeline.Attempt `json:"attempts"`
	Tables       []string           `json:"tables"`
	CatalogEpoch int64              `json:"catalog_epoch"`
	CatalogStale bool               `json:"catalog_stale"`
}

type executeResponse struct {
	generateResponse
	Columns    []string         `json:"columns"`
	Rows       []map[string]any `json:"rows"`
	RowCount   int              `json:"row_count"`
	Truncated  bool             `json:"truncated"`
	DurationMs int64            `json:"duration_ms"`
}

func handleGenerate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline dependencies are not configured", false, nil)
		return
	}

	question, ok := decodeQuestion(deps, w, r)
	if !ok {
		return
	}

	result, err := deps.Pipeline.Generate(r.Context(), question)
	if err != nil {
		writePipelineError(w, r, err, result.Attempts)
		return
	}
	writeJSON(w, http.StatusOK, toGenerateResponse(result))
}

func handleExecute(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline dependencies are not configured", false, nil)
		return
	}

	question, ok := decodeQuestion(deps, w, r)
	if !ok {
		return
	}

	result, err := deps.Pipeline.Execute(r.Context(), question)
	if err != nil {
		writePipelineError(w, r, err, result.Attempts)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{
		generateResponse: toGenerateResponse(result.GenerateResult),
		Columns:          result.Execution.Columns,
		Rows:             result.Execution.Rows,
		RowCount:         result.Execution.RowCount,
		Truncated:        result.Execution.Truncated,
		DurationMs:       result.Execution.Duration.Milliseconds(),
	})
}

func decodeQuestion(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, bool) {
	var request generateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return "", false
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return "", false
	}
	return request.Question, true
}

func toGenerateResponse(result pipeline.GenerateResult) generateResponse {
	return generateResponse{
		RequestID:    result.RequestID,
		SQL:          result.Query.SQL(),
		Attempts:     attemptHistory(result.Attempts),
		Tables:       result.Selection.TableNames(),
		CatalogEpoch: result.Selection.Epoch,
		CatalogStale: result.CatalogStale,
	}
}

func attemptHistory(attempts []pipeline.Attempt) []pipeline.Attempt {
	if attempts == nil {
		return []pipeline.Attempt{}
	}
	return attempts
}

func writePipelineError(w http.ResponseWriter, r *http.Request, err error, attempts []pipeline.Attempt) {
	extra := map[string]any{"attempts": attemptHistory(attempts)}

	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
	case errors.Is(err, pipeline.ErrRetryExhausted):
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "RETRY_EXHAUSTED", "no candidate passed validation within the attempt cap", false, extra)
	case errors.Is(err, executor.ErrTimeout):
		writeError(r.Context(), w, http.StatusGatewayTimeout, "QUERY_TIMEOUT", "query execution timed out", true, extra)
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		writeError(r.Context(), w, http.StatusServiceUnavailable, "REQUEST_CANCELED", "request canceled", true, nil)
	default:
		var execErr *executor.ExecutionError
		if errors.As(err, &execErr) {
			writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", execErr.Message, false, extra)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", err.Error(), true, nil)
	}
}
