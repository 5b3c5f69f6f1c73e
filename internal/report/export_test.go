package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/claimscope/claimscope/internal/archive"
)

func TestEncodeParquetRoundTrip(t *testing.T) {
	rows := []Row{
		{
			Source:               map[string]any{"CASE_NO": "C-1"},
			FinancialYear:        "2024-2025",
			MonthName:            "APR",
			MonthNumber:          4,
			PrioritizedAmount:    1400,
			HasPrioritizedAmount: true,
			CycleCount:           3,
		},
		{
			Source:        map[string]any{"CASE_NO": "C-2"},
			FinancialYear: "2024-2025",
			MonthName:     "JUL",
			MonthNumber:   7,
		},
	}

	payload, err := EncodeParquet("req-1", rows)
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}

	reader := parquet.NewGenericReader[artifactRow](bytes.NewReader(payload))
	defer func() { _ = reader.Close() }()
	decoded := make([]artifactRow, 2)
	count, err := reader.Read(decoded)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("read rows = %d", count)
	}
	if decoded[0].FinancialYear != "2024-2025" || decoded[0].PrioritizedAmount != 1400 {
		t.Fatalf("unexpected first row: %+v", decoded[0])
	}
	if decoded[0].RequestID != "req-1" {
		t.Fatalf("RequestID = %q", decoded[0].RequestID)
	}
}

func TestEncodeParquetRequiresRows(t *testing.T) {
	if _, err := EncodeParquet("req-1", nil); err == nil {
		t.Fatal("expected error for empty rows")
	}
}

type capturingStore struct {
	key  string
	size int64
	opts archive.PutOptions
}

func (s *capturingStore) Put(_ context.Context, key string, _ io.Reader, size int64, opts archive.PutOptions) (archive.ObjectInfo, error) {
	s.key = key
	s.size = size
	s.opts = opts
	return archive.ObjectInfo{Key: key, Size: size}, nil
}

func (s *capturingStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, archive.ErrObjectNotFound
}

func (s *capturingStore) Stat(context.Context, string) (archive.ObjectInfo, error) {
	return archive.ObjectInfo{}, archive.ErrObjectNotFound
}

func TestExporterBucketsByFinancialYear(t *testing.T) {
	store := &capturingStore{}
	exporter := NewExporter(store)

	rows := []Row{{Source: map[string]any{}, FinancialYear: "2024-2025"}}
	info, err := exporter.Export(context.Background(), "req-42", rows)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	want := "reports/2024-2025/req-42.parquet"
	if store.key != want {
		t.Fatalf("key = %q, want %q", store.key, want)
	}
	if info.Size == 0 {
		t.Fatal("expected non-zero artifact size")
	}
	if store.opts.ContentType != "application/vnd.apache.parquet" {
		t.Fatalf("ContentType = %q", store.opts.ContentType)
	}
}
