// Package ingest is the raw metric boundary. The pipeline consumes per-day
// raw samples through the Ingestor interface and never performs I/O itself;
// implementations here back it with the ClickHouse warehouse or an in-memory
// fixture store.
package ingest

import (
	"context"
	"time"

	"github.com/pressmetrics/metrictask/internal/rollup"
	"github.com/pressmetrics/metrictask/internal/task"
)

// Sample is one raw per-day observation of a count metric for one scope.
type Sample struct {
	Day     time.Time
	ScopeID int64
	Value   float64
}

// FacetSample is one facet key's value for one scope, already aggregated
// over the requested window.
type FacetSample struct {
	Key     string
	ScopeID int64
	Value   float64
}

// ContentItem is the inventory row a run computes content-scope metrics for.
type ContentItem struct {
	ID        int64
	Type      string
	CreatedAt time.Time
}

// Ingestor supplies raw samples to the pipeline. Fetches are bulk: one call
// per metric returns rows for every scope id inside the window, and the
// caller applies per-item eligibility on top.
type Ingestor interface {
	// FetchCounts returns per-day raw samples of a count metric. The window
	// is half-open; content-scope fetches honor the type filter.
	FetchCounts(ctx context.Context, metric string, scope task.Scope, w rollup.Window, types task.TypeFilter) ([]Sample, error)

	// FetchFacets returns window-aggregated facet values of a faceted metric
	// along one dimension. hint caps how many facets per scope the source
	// needs to return; the facet limiter still enforces the cap afterwards.
	FetchFacets(ctx context.Context, metric, dimension string, scope task.Scope, w rollup.Window, hint int) ([]FacetSample, error)

	// ContentItems lists the content items available to the run.
	ContentItems(ctx context.Context) ([]ContentItem, error)
}
