// Package report derives report-ready fields from raw execution results:
// fiscal-year bucketing, prioritized preauth amounts and biometric cycle
// counts. Derivation is pure; it never re-queries the database.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/claimscope/claimscope/internal/executor"
)

// Options names the result columns the derivation rules read. Column
// matching is case-insensitive because engines disagree on identifier
// casing. Empty fields disable the corresponding rule for that request.
type Options struct {
	DateColumn string

	PrimaryAmountColumn   string
	SecondaryAmountColumn string
	TertiaryAmountColumn  string

	CaseIDColumn string
	// CycleCountColumn points at a pre-aggregated per-case count produced by
	// the query itself. When unset, cycle counts are computed by grouping
	// result rows on CaseIDColumn.
	CycleCountColumn string
}

// Row is one execution result row plus the derived report fields.
type Row struct {
	Source map[string]any

	FinancialYear string
	MonthName     string
	MonthNumber   int

	PrioritizedAmount    float64
	HasPrioritizedAmount bool

	CycleCount int
}

// Derive computes the report fields for every result row. Rows are derived
// independently; a malformed value disables the affected field for that row
// only.
func Derive(result executor.Result, opts Options) []Row {
	var counts map[string]int
	if opts.CycleCountColumn == "" && opts.CaseIDColumn != "" {
		counts = CycleCounts(result.Rows, opts.CaseIDColumn)
	}

	derived := make([]Row, 0, len(result.Rows))
	for _, source := range result.Rows {
		row := Row{Source: source}

		if opts.DateColumn != "" {
			if when, ok := coerceTime(lookup(source, opts.DateColumn)); ok {
				row.FinancialYear = FinancialYear(when)
				row.MonthName = strings.ToUpper(when.Format("Jan"))
				row.MonthNumber = int(when.Month())
			}
		}

		if opts.PrimaryAmountColumn != "" || opts.SecondaryAmountColumn != "" || opts.TertiaryAmountColumn != "" {
			row.PrioritizedAmount, row.HasPrioritizedAmount = PrioritizedAmount(
				lookup(source, opts.PrimaryAmountColumn),
				lookup(source, opts.SecondaryAmountColumn),
				lookup(source, opts.TertiaryAmountColumn),
			)
		}

		switch {
		case opts.CycleCountColumn != "":
			if n, ok := coerceInt(lookup(source, opts.CycleCountColumn)); ok {
				row.CycleCount = n
			}
		case counts != nil:
			if id, ok := coerceString(lookup(source, opts.CaseIDColumn)); ok {
				row.CycleCount = counts[id]
			}
		}

		derived = append(derived, row)
	}
	return derived
}

// FinancialYear buckets a date into the fiscal-year label: shift back three
// months, take the resulting year Y, format "Y-(Y+1)". 2024-04-01 → "2024-2025",
// 2024-02-01 → "2023-2024".
func FinancialYear(when time.Time) string {
	shifted := when.AddDate(0, -3, 0)
	year := shifted.Year()
	return fmt.Sprintf("%d-%d", year, year+1)
}

// PrioritizedAmount picks the first usable candidate: primary when present
// and non-null, else secondary when present and non-zero, else tertiary.
// The precedence holds for every row independently.
func PrioritizedAmount(primary, secondary, tertiary any) (float64, bool) {
	if value, ok := coerceFloat(primary); ok {
		return value, true
	}
	if value, ok := coerceFloat(secondary); ok && value != 0 {
		return value, true
	}
	return coerceFloat(tertiary)
}

// CycleCounts groups result rows by case identifier. It expects the rows of
// a joined/aggregated query where each sub-record (e.g. one biometric event)
// contributes one row.
func CycleCounts(rows []map[string]any, caseColumn string) map[string]int {
	counts := make(map[string]int)
	for _, row := range rows {
		if id, ok := coerceString(lookup(row, caseColumn)); ok {
			counts[id]++
		}
	}
	return counts
}

func lookup(row map[string]any, column string) any {
	if column == "" {
		return nil
	}
	if value, ok := row[column]; ok {
		return value
	}
	for key, value := range row {
		if strings.EqualFold(key, column) {
			return value
		}
	}
	return nil
}

func coerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func coerceInt(value any) (int, bool) {
	parsed, ok := coerceFloat(value)
	if !ok {
		return 0, false
	}
	return int(parsed), true
}

func coerceString(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

func coerceTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, true
	case string:
		trimmed := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
