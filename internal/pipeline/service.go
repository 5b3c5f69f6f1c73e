package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claimscope/claimscope/internal/executor"
	"github.com/claimscope/claimscope/internal/observability"
	"github.com/claimscope/claimscope/internal/report"
	"github.com/claimscope/claimscope/internal/schema"
)

// ServiceConfig carries the per-request knobs the service applies uniformly.
type ServiceConfig struct {
	TopKTables int
	RowCap     int
	Timeout    time.Duration
}

// Service wires the full question-to-result flow. Generation and execution
// are separate phases so the API can expose generate-only alongside full runs.
type Service struct {
	cache      *schema.Cache
	selector   schema.Selector
	controller *Controller
	engine     executor.Engine
	exporter   *report.Exporter
	logger     *slog.Logger

	topK    int
	rowCap  int
	timeout time.Duration
}

func NewService(
	cache *schema.Cache,
	selector schema.Selector,
	controller *Controller,
	engine executor.Engine,
	exporter *report.Exporter,
	logger *slog.Logger,
	cfg ServiceConfig,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.TopKTables
	if topK < 1 {
		topK = 6
	}
	return &Service{
		cache:      cache,
		selector:   selector,
		controller: controller,
		engine:     engine,
		exporter:   exporter,
		logger:     logger,
		topK:       topK,
		rowCap:     cfg.RowCap,
		timeout:    cfg.Timeout,
	}
}

// ExecuteResult pairs the generation phase with its execution output.
type ExecuteResult struct {
	GenerateResult
	Execution executor.Result
}

// ReportResult adds derived report rows and the optional archive location.
type ReportResult struct {
	ExecuteResult
	Rows        []report.Row
	ArtifactKey string
}

// Generate runs selection and the generate-validate loop without touching the
// warehouse. The attempt history is returned even when the cap is exhausted.
func (s *Service) Generate(ctx context.Context, question string) (GenerateResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return GenerateResult{}, ErrEmptyQuestion
	}

	result := GenerateResult{RequestID: uuid.NewString()}

	snapshot, err := s.cache.Get(ctx)
	if err != nil {
		return result, fmt.Errorf("load schema catalog: %w", err)
	}
	result.CatalogStale = snapshot.Stale
	result.Selection = s.selector.Select(question, snapshot.Catalog, s.topK)

	query, attempts, err := s.controller.Run(ctx, question, result.Selection)
	result.Attempts = attempts
	if err != nil {
		return result, err
	}
	result.Query = query

	s.logger.Info("query accepted",
		slog.String("request_id", result.RequestID),
		slog.Int("attempts", len(attempts)),
		slog.Int64("catalog_epoch", result.Selection.Epoch),
	)
	return result, nil
}

// Execute generates a validated query and runs it.
func (s *Service) Execute(ctx context.Context, question string) (ExecuteResult, error) {
	generated, err := s.Generate(ctx, question)
	if err != nil {
		return ExecuteResult{GenerateResult: generated}, err
	}

	execution, err := s.engine.Execute(ctx, generated.Query, executor.Options{
		RowCap:  s.rowCap,
		Timeout: s.timeout,
	})
	if err != nil {
		return ExecuteResult{GenerateResult: generated}, err
	}
	observability.ObserveQueryExecution(execution.RowCount, execution.Duration)

	s.logger.Info("query executed",
		slog.String("request_id", generated.RequestID),
		slog.Int("rows", execution.RowCount),
		slog.Bool("truncated", execution.Truncated),
		slog.Duration("duration", execution.Duration),
	)
	return ExecuteResult{GenerateResult: generated, Execution: execution}, nil
}

// Report executes the question, derives report fields and, when an archive
// store is configured and the request asks for it, persists the artifact.
// Archive failures degrade the response rather than failing it; the derived
// rows are already in hand.
func (s *Service) Report(ctx context.Context, question string, opts report.Options, archiveArtifact bool) (ReportResult, error) {
	executed, err := s.Execute(ctx, question)
	if err != nil {
		return ReportResult{ExecuteResult: executed}, err
	}

	result := ReportResult{
		ExecuteResult: executed,
		Rows:          report.Derive(executed.Execution, opts),
	}

	if archiveArtifact && s.exporter != nil && len(result.Rows) > 0 {
		info, err := s.exporter.Export(ctx, executed.RequestID, result.Rows)
		if err != nil {
			s.logger.Error("report artifact archive failed",
				slog.String("request_id", executed.RequestID),
				slog.String("error", err.Error()),
			)
		} else {
			result.ArtifactKey = info.Key
		}
	}
	return result, nil
}

// Schema returns the current catalog snapshot for the introspection endpoint.
func (s *Service) Schema(ctx context.Context) (schema.Snapshot, error) {
	return s.cache.Get(ctx)
}

// RefreshSchema forces a catalog rebuild.
func (s *Service) RefreshSchema(ctx context.Context) (*schema.Catalog, error) {
	return s.cache.Refresh(ctx)
}
