package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/claimscope/claimscope/internal/archive"
	"github.com/claimscope/claimscope/internal/observability"
)

// ArtifactRow is the flat parquet schema for archived reports. Source row
// values are carried as JSON so the artifact stays self-describing even when
// each request selects different columns.
type artifactRow struct {
	RequestID            string  `parquet:"request_id"`
	FinancialYear        string  `parquet:"financial_year"`
	MonthName            string  `parquet:"month_name"`
	MonthNumber          int32   `parquet:"month_number"`
	PrioritizedAmount    float64 `parquet:"prioritized_amount"`
	HasPrioritizedAmount bool    `parquet:"has_prioritized_amount"`
	CycleCount           int32   `parquet:"cycle_count"`
	SourceJSON           string  `parquet:"source_json"`
}

// EncodeParquet serializes derived rows into a parquet payload.
func EncodeParquet(requestID string, rows []Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("rows are required")
	}

	records := make([]artifactRow, 0, len(rows))
	for _, row := range rows {
		source, err := json.Marshal(row.Source)
		if err != nil {
			return nil, fmt.Errorf("encode source row: %w", err)
		}
		records = append(records, artifactRow{
			RequestID:            requestID,
			FinancialYear:        row.FinancialYear,
			MonthName:            row.MonthName,
			MonthNumber:          int32(row.MonthNumber),
			PrioritizedAmount:    row.PrioritizedAmount,
			HasPrioritizedAmount: row.HasPrioritizedAmount,
			CycleCount:           int32(row.CycleCount),
			SourceJSON:           string(source),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[artifactRow](buf)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Exporter archives derived report rows as parquet artifacts.
type Exporter struct {
	store archive.Store
}

func NewExporter(store archive.Store) *Exporter {
	return &Exporter{store: store}
}

// Export encodes the rows and writes the artifact under the fiscal-year
// partition of the first derived row.
func (e *Exporter) Export(ctx context.Context, requestID string, rows []Row) (archive.ObjectInfo, error) {
	payload, err := EncodeParquet(requestID, rows)
	if err != nil {
		return archive.ObjectInfo{}, err
	}

	key, err := archive.BuildReportKey(rows[0].FinancialYear, requestID)
	if err != nil {
		return archive.ObjectInfo{}, err
	}

	info, err := e.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), archive.PutOptions{
		ContentType: "application/vnd.apache.parquet",
	})
	if err != nil {
		return archive.ObjectInfo{}, fmt.Errorf("archive report artifact: %w", err)
	}
	observability.IncrementReportArtifacts()
	return info, nil
}
