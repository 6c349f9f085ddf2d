// Package pipeline executes metric tasks: it resolves a document's handler
// through the registry, drives raw sample fetching through the ingestor
// boundary, evaluates formulas and rolls values up to the declared levels,
// and emits a tagged result set for external persistence.
package pipeline

import (
	"sort"
	"time"

	"github.com/pressmetrics/metrictask/internal/formula"
	"github.com/pressmetrics/metrictask/internal/rollup"
)

const dayFormat = "2006-01-02"

// ResultSet is the output of one task execution. Results are sorted by
// metric name, then scope, then scope id, so identical inputs always
// serialize identically.
type ResultSet struct {
	TaskSlug    string         `json:"task"`
	OrgID       int64          `json:"org_id"`
	Window      string         `json:"window"`
	GeneratedAt time.Time      `json:"generated_at"`
	Results     []MetricResult `json:"results"`
}

// MetricResult is one (metric, scope, scope id, level) slot. Exactly one of
// the level payloads is populated: Value for summary, Series for timeseries,
// Comparison for comparison, Facets (plus PriorFacets at comparison level)
// for faceted metrics. An undefined value serializes as null, never NaN.
type MetricResult struct {
	Metric      string           `json:"metric"`
	DisplayName string           `json:"display_name"`
	Kind        string           `json:"type"`
	Scope       string           `json:"scope"`
	ScopeID     int64            `json:"scope_id"`
	Level       string           `json:"level"`
	Value       *float64         `json:"value"`
	Series      []SeriesPoint    `json:"series,omitempty"`
	Comparison  *ComparisonValue `json:"comparison,omitempty"`
	Facets      []FacetEntry     `json:"facets,omitempty"`
	PriorFacets []FacetEntry     `json:"prior_facets,omitempty"`
}

// SeriesPoint is one day bucket of a timeseries payload.
type SeriesPoint struct {
	Day   string   `json:"day"`
	Value *float64 `json:"value"`
}

// ComparisonValue pairs the current window's summary with the prior one.
type ComparisonValue struct {
	Current *float64 `json:"current"`
	Prior   *float64 `json:"prior"`
}

// FacetEntry is one ranked facet of a faceted metric.
type FacetEntry struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

func floatPtr(v formula.Value) *float64 {
	if !v.Defined {
		return nil
	}

	value := v.V

	return &value
}

func seriesPoints(s rollup.Series) []SeriesPoint {
	points := make([]SeriesPoint, 0, len(s))
	for _, p := range s {
		points = append(points, SeriesPoint{Day: p.Day.Format(dayFormat), Value: floatPtr(p.Value)})
	}

	return points
}

func comparisonValue(pair rollup.ComparisonPair) *ComparisonValue {
	return &ComparisonValue{Current: floatPtr(pair.Current), Prior: floatPtr(pair.Prior)}
}

func facetEntries(values []rollup.FacetValue) []FacetEntry {
	entries := make([]FacetEntry, 0, len(values))
	for _, v := range values {
		entries = append(entries, FacetEntry{Key: v.Key, Value: v.Value})
	}

	return entries
}

func sortResults(results []MetricResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Metric != results[j].Metric {
			return results[i].Metric < results[j].Metric
		}

		if results[i].Scope != results[j].Scope {
			return results[i].Scope < results[j].Scope
		}

		if results[i].ScopeID != results[j].ScopeID {
			return results[i].ScopeID < results[j].ScopeID
		}

		return results[i].Level < results[j].Level
	})
}
