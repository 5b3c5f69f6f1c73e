package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claimscope/claimscope/internal/archive"
	"github.com/claimscope/claimscope/internal/auth"
	"github.com/claimscope/claimscope/internal/config"
	"github.com/claimscope/claimscope/internal/executor"
	"github.com/claimscope/claimscope/internal/pipeline"
	"github.com/claimscope/claimscope/internal/report"
	"github.com/claimscope/claimscope/internal/safety"
	"github.com/claimscope/claimscope/internal/schema"
)

type fakePipeline struct {
	generateResult pipeline.GenerateResult
	generateErr    error
	executeResult  pipeline.ExecuteResult
	executeErr     error
	reportResult   pipeline.ReportResult
	reportErr      error
	snapshot       schema.Snapshot
	snapshotErr    error
	refreshed      *schema.Catalog
	refreshErr     error

	lastQuestion string
	lastOpts     report.Options
	lastArchive  bool
}

func (f *fakePipeline) Generate(_ context.Context, question string) (pipeline.GenerateResult, error) {
	f.lastQuestion = question
	return f.generateResult, f.generateErr
}

func (f *fakePipeline) Execute(_ context.Context, question string) (pipeline.ExecuteResult, error) {
	f.lastQuestion = question
	return f.executeResult, f.executeErr
}

func (f *fakePipeline) Report(_ context.Context, question string, opts report.Options, archiveArtifact bool) (pipeline.ReportResult, error) {
	f.lastQuestion = question
	f.lastOpts = opts
	f.lastArchive = archiveArtifact
	return f.reportResult, f.reportErr
}

func (f *fakePipeline) Schema(context.Context) (schema.Snapshot, error) {
	return f.snapshot, f.snapshotErr
}

func (f *fakePipeline) RefreshSchema(context.Context) (*schema.Catalog, error) {
	return f.refreshed, f.refreshErr
}

type stubStore struct {
	key  string
	body []byte
}

func (s *stubStore) Put(_ context.Context, key string, _ io.Reader, size int64, _ archive.PutOptions) (archive.ObjectInfo, error) {
	return archive.ObjectInfo{Key: key, Size: size}, nil
}

func (s *stubStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if key != s.key {
		return nil, archive.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(s.body)), nil
}

func (s *stubStore) Stat(_ context.Context, key string) (archive.ObjectInfo, error) {
	if key != s.key {
		return archive.ObjectInfo{}, archive.ErrObjectNotFound
	}
	return archive.ObjectInfo{Key: key, Size: int64(len(s.body))}, nil
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Service.Name = "claimscope-api"
	return cfg
}

func newTestHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return NewHandler(cfg, deps)
}

func patientTable() schema.Table {
	return schema.Table{
		Name: "ASRIT_PATIENT",
		Columns: []schema.Column{
			{Name: "PATIENT_ID", Type: schema.TypeNumber},
			{Name: "PATIENT_NAME", Type: schema.TypeText},
		},
	}
}

func acceptedGeneration(t *testing.T) pipeline.GenerateResult {
	t.Helper()
	selection := schema.Selection{Epoch: 3, Tables: []schema.Table{patientTable()}}
	query, err := safety.NewValidator().Validate("SELECT PATIENT_ID FROM ASRIT_PATIENT", selection)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return pipeline.GenerateResult{
		RequestID: "req-1",
		Query:     query,
		Attempts: []pipeline.Attempt{
			{Index: 1, Outcome: pipeline.OutcomeAccepted, SQL: "SELECT PATIENT_ID FROM ASRIT_PATIENT"},
		},
		Selection: selection,
	}
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	payload := map[string]any{}
	if recorder.Body.Len() > 0 && strings.Contains(recorder.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder, payload
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: &fakePipeline{}})
	recorder, payload := doJSON(t, handler, http.MethodGet, "/v1/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["status"] != "ok" || payload["service"] != "claimscope-api" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	handler := newTestHandler(testConfig(), Dependencies{
		Pipeline:  &fakePipeline{},
		Readiness: func(context.Context) error { return errors.New("warehouse unreachable") },
	})
	recorder, payload := doJSON(t, handler, http.MethodGet, "/v1/ready", "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["error_code"] != "NOT_READY" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestReadyWithoutChecks(t *testing.T) {
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: &fakePipeline{}})
	recorder, _ := doJSON(t, handler, http.MethodGet, "/v1/ready", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestGenerateReturnsAcceptedQuery(t *testing.T) {
	fake := &fakePipeline{generateResult: acceptedGeneration(t)}
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: fake})

	recorder, payload := doJSON(t, handler, http.MethodPost, "/v1/sql/generate", `{"question":"list patients"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	if fake.lastQuestion != "list patients" {
		t.Fatalf("question = %q", fake.lastQuestion)
	}
	if payload["sql"] != "SELECT PATIENT_ID FROM ASRIT_PATIENT" {
		t.Fatalf("sql = %v", payload["sql"])
	}
	if payload["request_id"] != "req-1" {
		t.Fatalf("request_id = %v", payload["request_id"])
	}
	tables, _ := payload["tables"].([]any)
	if len(tables) != 1 || tables[0] != "ASRIT_PATIENT" {
		t.Fatalf("tables = %v", payload["tables"])
	}
	attempts, _ := payload["attempts"].([]any)
	if len(attempts) != 1 {
		t.Fatalf("attempts = %v", payload["attempts"])
	}
}

func TestGenerateRequiresQuestion(t *testing.T) {
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: &fakePipeline{}})
	recorder, payload := doJSON(t, handler, http.MethodPost, "/v1/sql/generate", `{"question":"  "}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["error_code"] != "QUESTION_REQUIRED" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestGenerateRejectsUnknownFields(t *testing.T) {
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: &fakePipeline{}})
	recorder, payload := doJSON(t, handler, http.MethodPost, "/v1/sql/generate", `{"prompt":"x"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["error_code"] != "INVALID_JSON" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestGenerateMapsRetryExhaustion(t *testing.T) {
	fake := &fakePipeline{
		generateResult: pipeline.GenerateResult{
			RequestID: "req-2",
			Attempts: []pipeline.Attempt{
				{Index: 1, Outcome: pipeline.OutcomeRejected, Reason: safety.ReasonNotSelect},
				{Index: 2, Outcome: pipeline.OutcomeRejected, Reason: safety.ReasonForbiddenKeyword},
				{Index: 3, Outcome: pipeline.OutcomeRejected, Reason: safety.ReasonUnknownIdentifier},
			},
		},
		generateErr: pipeline.ErrRetryExhausted,
	}
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: fake})

	recorder, payload := doJSON(t, handler, http.MethodPost, "/v1/sql/generate", `{"question":"wipe it all"}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["error_code"] != "RETRY_EXHAUSTED" {
		t.Fatalf("payload = %v", payload)
	}
	extra, _ := payload["context"].(map[string]any)
	attempts, _ := extra["attempts"].([]any)
	if len(attempts) != 3 {
		t.Fatalf("attempts = %v", extra)
	}
}

func TestExecuteReturnsRows(t *testing.T) {
	fake := &fakePipeline{executeResult: pipeline.ExecuteResult{
		GenerateResult: acceptedGeneration(t),
		Execution: executor.Result{
			Columns:  []string{"PATIENT_ID"},
			Rows:     []map[string]any{{"PATIENT_ID": float64(7)}},
			RowCount: 1,
			Duration: 42 * time.Millisecond,
		},
	}}
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: fake})

	recorder, payload := doJSON(t, handler, http.MethodPost, "/v1/sql/execute", `{"question":"list patients"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	if payload["row_count"] != float64(1) {
		t.Fatalf("row_count = %v", payload["row_count"])
	}
	if payload["duration_ms"] != float64(42) {
		t.Fatalf("duration_ms = %v", payload["duration_ms"])
	}
	rows, _ := payload["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("rows = %v", payload["rows"])
	}
}

func TestExecuteMapsQueryTimeout(t *testing.T) {
	fake := &fakePipeline{executeErr: executor.ErrTimeout}
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: fake})

	recorder, payload := doJSON(t, handler, http.MethodPost, "/v1/sql/execute", `{"question":"slow"}`)
	if recorder.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["error_code"] != "QUERY_TIMEOUT" || payload["retryable"] != true {
		t.Fatalf("payload = %v", payload)
	}
}

func TestExecuteMapsExecutionError(t *testing.T) {
	fake := &fakePipeline{executeErr: &executor.ExecutionError{Message: "column GHOST does not exist"}}
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: fake})

	recorder, payload := doJSON(t, handler, http.MethodPost, "/v1/sql/execute", `{"question":"ghost"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["error_code"] != "QUERY_EXECUTION_FAILED" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestReportRunPassesDerivationOptions(t *testing.T) {
	amount := 1400.0
	fake := &fakePipeline{reportResult: pipeline.ReportResult{
		ExecuteResult: pipeline.ExecuteResult{
			GenerateResult: acceptedGeneration(t),
			Execution:      executor.Result{RowCount: 1},
		},
		Rows: []report.Row{{
			Source:               map[string]any{"CASE_NO": "C-1"},
			FinancialYear:        "2024-2025",
			MonthName:            "APR",
			MonthNumber:          4,
			PrioritizedAmount:    amount,
			HasPrioritizedAmount: true,
			CycleCount:           3,
		}},
		ArtifactKey: "reports/2024-2025/req-1.parquet",
	}}
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: fake})

	body := `{"question":"dialysis report","archive":true,"date_column":"CLAIM_DATE","primary_amount_column":"PREAUTH_AMT_CMO","case_id_column":"CASE_NO"}`
	recorder, payload := doJSON(t, handler, http.MethodPost, "/v1/reports/run", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	if fake.lastOpts.DateColumn != "CLAIM_DATE" || fake.lastOpts.PrimaryAmountColumn != "PREAUTH_AMT_CMO" {
		t.Fatalf("opts = %+v", fake.lastOpts)
	}
	if !fake.lastArchive {
		t.Fatal("archive flag not forwarded")
	}
	if payload["artifact_key"] != "reports/2024-2025/req-1.parquet" {
		t.Fatalf("artifact_key = %v", payload["artifact_key"])
	}
	rows, _ := payload["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("rows = %v", payload["rows"])
	}
	row, _ := rows[0].(map[string]any)
	if row["financial_year"] != "2024-2025" || row["prioritized_amount"] != float64(1400) {
		t.Fatalf("row = %v", row)
	}
}

func TestArtifactFetchWithoutArchive(t *testing.T) {
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: &fakePipeline{}})
	recorder, payload := doJSON(t, handler, http.MethodGet, "/v1/reports/artifacts/2024-2025/req-1", "")
	if recorder.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["error_code"] != "ARCHIVE_NOT_CONFIGURED" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestArtifactFetchStreamsParquet(t *testing.T) {
	store := &stubStore{key: "reports/2024-2025/req-1.parquet", body: []byte("PAR1data")}
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: &fakePipeline{}, Archive: store})

	recorder, _ := doJSON(t, handler, http.MethodGet, "/v1/reports/artifacts/2024-2025/req-1", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/vnd.apache.parquet" {
		t.Fatalf("Content-Type = %q", got)
	}
	if recorder.Body.String() != "PAR1data" {
		t.Fatalf("body = %q", recorder.Body.String())
	}
}

func TestArtifactFetchNotFound(t *testing.T) {
	store := &stubStore{key: "reports/2024-2025/req-1.parquet"}
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: &fakePipeline{}, Archive: store})

	recorder, payload := doJSON(t, handler, http.MethodGet, "/v1/reports/artifacts/2024-2025/req-9", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["error_code"] != "ARTIFACT_NOT_FOUND" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	catalog := schema.NewCatalog(5, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), []schema.Table{patientTable()})
	fake := &fakePipeline{snapshot: schema.Snapshot{Catalog: catalog}}
	handler := newTestHandler(testConfig(), Dependencies{Pipeline: fake})

	recorder, payload := doJSON(t, handler, http.MethodGet, "/v1/schema", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["epoch"] != float64(5) {
		t.Fatalf("epoch = %v", payload["epoch"])
	}
	tables, _ := payload["tables"].([]any)
	if len(tables) != 1 {
		t.Fatalf("tables = %v", payload["tables"])
	}
}

func authedHandler(t *testing.T, fake *fakePipeline) http.Handler {
	t.Helper()
	validator, err := auth.NewStaticAPIKeyValidator(
		"reader-key:Asha Rao:asha.rao@example.org:report_reader," +
			"admin-key:Vikram Singh:vikram.singh@example.org:report_reader|schema_admin",
	)
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	cfg := testConfig()
	cfg.Auth.Required = true
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newTestHandler(cfg, Dependencies{
		Pipeline:       fake,
		AuthMiddleware: auth.Middleware(logger, validator),
	})
}

func TestProtectedEndpointsRequireKey(t *testing.T) {
	handler := authedHandler(t, &fakePipeline{})
	recorder, payload := doJSON(t, handler, http.MethodPost, "/v1/sql/generate", `{"question":"x"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", recorder.Code)
	}
	if payload["error_code"] != "UNAUTHORIZED" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestSchemaRefreshEnforcesAdminRole(t *testing.T) {
	catalog := schema.NewCatalog(6, time.Now().UTC(), []schema.Table{patientTable()})
	handler := authedHandler(t, &fakePipeline{refreshed: catalog})

	request := httptest.NewRequest(http.MethodPost, "/v1/schema/refresh", nil)
	request.Header.Set("X-API-Key", "reader-key")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("reader status = %d", recorder.Code)
	}

	request = httptest.NewRequest(http.MethodPost, "/v1/schema/refresh", nil)
	request.Header.Set("X-API-Key", "admin-key")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("admin status = %d, body = %s", recorder.Code, recorder.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	if payload["epoch"] != float64(6) {
		t.Fatalf("epoch = %v", payload["epoch"])
	}
}

func TestHealthBypassesAuth(t *testing.T) {
	handler := authedHandler(t, &fakePipeline{})
	recorder, _ := doJSON(t, handler, http.MethodGet, "/v1/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
}
