// Package archive persists derived report artifacts to object storage so the
// external reporting layer can fetch them without re-deriving anything.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"time"
)

var ErrObjectNotFound = errors.New("archive: object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

var keyComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildReportKey places one report artifact under its fiscal-year partition:
// reports/<financial-year>/<request-id>.parquet. An empty financial year
// (no date derivation requested) files under "unbucketed".
func BuildReportKey(financialYear, requestID string) (string, error) {
	if financialYear == "" {
		financialYear = "unbucketed"
	}
	if !keyComponentPattern.MatchString(financialYear) {
		return "", fmt.Errorf("invalid financial year component: %q", financialYear)
	}
	if !keyComponentPattern.MatchString(requestID) {
		return "", fmt.Errorf("invalid request id component: %q", requestID)
	}
	return path.Join("reports", financialYear, requestID+".parquet"), nil
}
