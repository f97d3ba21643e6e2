// Package source fetches project records from one of two upstream kinds,
// the Airtable paged-token API or a flat shared-CSV export, and normalizes
// them into the canonical record shape.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/kwhalen/projectmap/internal/record"
)

// Source modes, reported in sync results and the health endpoint.
const (
	ModeAirtable = "airtable"
	ModeCSV      = "csv"
)

// Source is the single capability the sync engine needs from an upstream.
type Source interface {
	// Fetch returns the upstream record set, normalized. A non-nil since
	// watermark requests only records modified after that instant; sources
	// without incremental support ignore it and return the full set.
	Fetch(ctx context.Context, since *time.Time) ([]record.Project, error)

	// Incremental reports whether Fetch honors a since watermark.
	Incremental() bool

	// Mode identifies the source kind ("airtable" or "csv").
	Mode() string
}

// UpstreamError is a non-success response from an upstream source. The body
// is embedded for diagnostics; callers do not retry here, the next
// staleness evaluation is the retry.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream fetch failed: status %d: %s", e.Status, e.Body)
}
