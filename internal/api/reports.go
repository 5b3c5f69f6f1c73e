package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/claimscope/claimscope/internal/archive"
	"github.com/claimscope/claimscope/internal/report"
)

type reportRequest struct {
	Question string `json:"question"`
	Archive  bool   `json:"archive"`

	DateColumn            string `json:"date_column"`
	PrimaryAmountColumn   string `json:"primary_amount_column"`
	SecondaryAmountColumn string `json:"secondary_amount_column"`
	TertiaryAmountColumn  string `json:"tertiary_amount_column"`
	CaseIDColumn          string `json:"case_id_column"`
	CycleCountColumn      string `json:"cycle_count_column"`
}

type reportRow struct {
	Source            map[string]any `json:"source"`
	FinancialYear     string         `json:"financial_year,omitempty"`
	MonthName         string         `json:"month_name,omitempty"`
	MonthNumber       int            `json:"month_number,omitempty"`
	PrioritizedAmount *float64       `json:"prioritized_amount,omitempty"`
	CycleCount        int            `json:"cycle_count,omitempty"`
}

type reportResponse struct {
	generateResponse
	Rows        []reportRow `json:"rows"`
	RowCount    int         `json:"row_count"`
	Truncated   bool        `json:"truncated"`
	DurationMs  int64       `json:"duration_ms"`
	ArtifactKey string      `json:"artifact_key,omitempty"`
}

func handleReportRun(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline dependencies are not configured", false, nil)
		return
	}

	var request reportRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid report request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	opts := report.Options{
		DateColumn:            request.DateColumn,
		PrimaryAmountColumn:   request.PrimaryAmountColumn,
		SecondaryAmountColumn: request.SecondaryAmountColumn,
		TertiaryAmountColumn:  request.TertiaryAmountColumn,
		CaseIDColumn:          request.CaseIDColumn,
		CycleCountColumn:      request.CycleCountColumn,
	}

	result, err := deps.Pipeline.Report(r.Context(), request.Question, opts, request.Archive)
	if err != nil {
		writePipelineError(w, r, err, result.Attempts)
		return
	}

	rows := make([]reportRow, 0, len(result.Rows))
	for _, row := range result.Rows {
		serialized := reportRow{
			Source:        row.Source,
			FinancialYear: row.FinancialYear,
			MonthName:     row.MonthName,
			MonthNumber:   row.MonthNumber,
			CycleCount:    row.CycleCount,
		}
		if row.HasPrioritizedAmount {
			amount := row.PrioritizedAmount
			serialized.PrioritizedAmount = &amount
		}
		rows = append(rows, serialized)
	}

	writeJSON(w, http.StatusOK, reportResponse{
		generateResponse: toGenerateResponse(result.GenerateResult),
		Rows:             rows,
		RowCount:         result.Execution.RowCount,
		Truncated:        result.Execution.Truncated,
		DurationMs:       result.Execution.Duration.Milliseconds(),
		ArtifactKey:      result.ArtifactKey,
	})
}

func handleArtifactFetch(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archive == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "report archive is not configured", false, nil)
		return
	}

	key, err := archive.BuildReportKey(r.PathValue("year"), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARTIFACT_KEY", err.Error(), false, nil)
		return
	}

	object, err := deps.Archive.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, archive.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "ARTIFACT_NOT_FOUND", "report artifact was not found", false, map[string]any{"key": key})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "ARCHIVE_ERROR", "failed to fetch report artifact", true, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = object.Close() }()

	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, object)
}
