package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pressmetrics/metrictask/internal/formula"
	"github.com/pressmetrics/metrictask/internal/ingest"
	"github.com/pressmetrics/metrictask/internal/rollup"
	"github.com/pressmetrics/metrictask/internal/task"
)

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	log.SetOutput(os.Stderr)

	return log
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func compileDocument(t *testing.T, src string) *Task {
	t.Helper()

	doc := &task.Document{}
	require.NoError(t, yaml.Unmarshal([]byte(src), doc))

	schema, err := task.BuildSchema(doc)
	require.NoError(t, err)

	opts, err := task.BuildOptions(doc)
	require.NoError(t, err)

	engine, err := formula.Compile(newTestLogger(), schema)
	require.NoError(t, err)

	return &Task{Document: doc, Schema: schema, Options: opts, Engine: engine}
}

func findResult(t *testing.T, rs *ResultSet, metric, scope string, scopeID int64, level string) *MetricResult {
	t.Helper()

	for i := range rs.Results {
		r := &rs.Results[i]
		if r.Metric == metric && r.Scope == scope && r.ScopeID == scopeID && r.Level == level {
			return r
		}
	}

	t.Fatalf("no result for metric=%s scope=%s scope_id=%d level=%s", metric, scope, scopeID, level)

	return nil
}

const timeseriesTaskYAML = `slug: ga-content-timeseries
name: GA Content Timeseries
runs: ga.ContentTimeseries
creates: metrics
options:
  max_age:
    input_type: number
    value_types:
      - numeric
    default: 30
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
    content_levels:
      - timeseries
      - summary
      - comparison
    org_levels:
      - timeseries
      - summary
  ga_entrances:
    display_name: Entrances
    type: count
    content_levels:
      - timeseries
      - summary
      - comparison
    org_levels:
      - summary
  ga_per_external:
    display_name: Percent External
    type: computed
    formula: "{ga_entrances} / {ga_pageviews}"
    agg: avg
    content_levels:
      - summary
      - comparison
    org_levels:
      - summary
`

func TestMetricsHandler_EndToEnd(t *testing.T) {
	t.Parallel()

	compiled := compileDocument(t, timeseriesTaskYAML)

	mem := ingest.NewMemory()
	mem.AddContentItem(ingest.ContentItem{ID: 42, Type: "article", CreatedAt: day(2016, time.March, 1)})
	mem.AddCount("ga_pageviews", task.ScopeContent, 42, day(2016, time.March, 1), 100)
	mem.AddCount("ga_entrances", task.ScopeContent, 42, day(2016, time.March, 1), 25)
	mem.AddCount("ga_pageviews", task.ScopeOrg, 1, day(2016, time.March, 2), 500)
	mem.AddCount("ga_entrances", task.ScopeOrg, 1, day(2016, time.March, 2), 50)

	handler := NewMetricsHandler(newTestLogger(), mem, "")

	req := Request{
		OrgID:  1,
		Window: rollup.Window{Start: day(2016, time.March, 1), End: day(2016, time.March, 8)},
	}

	rs, err := handler.Execute(context.Background(), compiled, req)
	require.NoError(t, err)
	require.NotNil(t, rs)

	assert.Equal(t, "ga-content-timeseries", rs.TaskSlug)
	assert.Equal(t, int64(1), rs.OrgID)
	assert.Len(t, rs.Results, 12)

	// Count summary sums the defined buckets of the eligibility window.
	pv := findResult(t, rs, "ga_pageviews", "content", 42, "summary")
	require.NotNil(t, pv.Value)
	assert.Equal(t, 100.0, *pv.Value)
	assert.Equal(t, "Pageviews", pv.DisplayName)
	assert.Equal(t, "count", pv.Kind)

	// 25 entrances over 100 pageviews on the only active day; every other
	// bucket is 0/0, excluded from the avg entirely.
	ratio := findResult(t, rs, "ga_per_external", "content", 42, "summary")
	require.NotNil(t, ratio.Value)
	assert.InDelta(t, 0.25, *ratio.Value, 1e-9)
	assert.Equal(t, "computed", ratio.Kind)

	// Timeseries is dense over the 30 day eligibility window.
	ts := findResult(t, rs, "ga_pageviews", "content", 42, "timeseries")
	require.Len(t, ts.Series, 30)
	require.NotNil(t, ts.Series[0].Value)
	assert.Equal(t, "2016-03-01", ts.Series[0].Day)
	assert.Equal(t, 100.0, *ts.Series[0].Value)
	require.NotNil(t, ts.Series[1].Value)
	assert.Equal(t, 0.0, *ts.Series[1].Value)

	// Comparison pairs the window against the immediately preceding one.
	cmp := findResult(t, rs, "ga_pageviews", "content", 42, "comparison")
	require.NotNil(t, cmp.Comparison)
	require.NotNil(t, cmp.Comparison.Current)
	assert.Equal(t, 100.0, *cmp.Comparison.Current)
	require.NotNil(t, cmp.Comparison.Prior)
	assert.Equal(t, 0.0, *cmp.Comparison.Prior)

	// The ratio has no defined buckets in the prior window.
	ratioCmp := findResult(t, rs, "ga_per_external", "content", 42, "comparison")
	require.NotNil(t, ratioCmp.Comparison)
	require.NotNil(t, ratioCmp.Comparison.Current)
	assert.InDelta(t, 0.25, *ratioCmp.Comparison.Current, 1e-9)
	assert.Nil(t, ratioCmp.Comparison.Prior)

	// Org scope aggregates over the request window.
	orgPv := findResult(t, rs, "ga_pageviews", "org", 1, "summary")
	require.NotNil(t, orgPv.Value)
	assert.Equal(t, 500.0, *orgPv.Value)

	orgTs := findResult(t, rs, "ga_pageviews", "org", 1, "timeseries")
	assert.Len(t, orgTs.Series, 7)

	orgRatio := findResult(t, rs, "ga_per_external", "org", 1, "summary")
	require.NotNil(t, orgRatio.Value)
	assert.InDelta(t, 0.1, *orgRatio.Value, 1e-9)
}

func TestMetricsHandler_DivisionByZeroNeverLeaks(t *testing.T) {
	t.Parallel()

	compiled := compileDocument(t, timeseriesTaskYAML)

	mem := ingest.NewMemory()
	mem.AddContentItem(ingest.ContentItem{ID: 7, Type: "article", CreatedAt: day(2016, time.March, 1)})
	// No raw samples at all: every ratio bucket is 0/0.

	handler := NewMetricsHandler(newTestLogger(), mem, "")

	rs, err := handler.Execute(context.Background(), compiled, Request{
		OrgID:  1,
		Window: rollup.Window{Start: day(2016, time.March, 1), End: day(2016, time.March, 8)},
	})
	require.NoError(t, err)

	pv := findResult(t, rs, "ga_pageviews", "content", 7, "summary")
	require.NotNil(t, pv.Value)
	assert.Equal(t, 0.0, *pv.Value)

	ratio := findResult(t, rs, "ga_per_external", "content", 7, "summary")
	assert.Nil(t, ratio.Value)

	raw, err := json.Marshal(rs)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "NaN")
	assert.NotContains(t, string(raw), "Inf")
}

func TestMetricsHandler_RequestedLevels(t *testing.T) {
	t.Parallel()

	const src = `slug: levels
name: Levels
runs: ga.ContentSummary
creates: metrics
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
    content_levels:
      - timeseries
      - summary
      - comparison
  ga_exits:
    display_name: Exits
    type: count
    content_levels:
      - timeseries
      - summary
`

	compiled := compileDocument(t, src)

	mem := ingest.NewMemory()
	mem.AddContentItem(ingest.ContentItem{ID: 1, Type: "article", CreatedAt: day(2016, time.March, 1)})

	handler := NewMetricsHandler(newTestLogger(), mem, "")

	rs, err := handler.Execute(context.Background(), compiled, Request{
		Window: rollup.Window{Start: day(2016, time.March, 1), End: day(2016, time.March, 8)},
		Levels: []task.Level{task.LevelComparison},
	})

	// The declaring metric still produced its slot.
	require.NotNil(t, rs)
	require.Len(t, rs.Results, 1)
	assert.Equal(t, "ga_pageviews", rs.Results[0].Metric)
	assert.Equal(t, "comparison", rs.Results[0].Level)

	// The non-declaring metric failed its slot only.
	require.Error(t, err)

	var levelErr *rollup.LevelNotSupportedError
	require.ErrorAs(t, err, &levelErr)
	assert.Equal(t, "ga_exits", levelErr.Metric)
	assert.Equal(t, task.LevelComparison, levelErr.Level)
	assert.Equal(t, task.ScopeContent, levelErr.Scope)
}

func TestMetricsHandler_WindowBoundary(t *testing.T) {
	t.Parallel()

	const src = `slug: boundary
name: Boundary
runs: ga.ContentSummary
creates: metrics
options:
  max_age:
    input_type: number
    value_types:
      - numeric
    default: 2
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
    content_levels:
      - summary
`

	compiled := compileDocument(t, src)

	mem := ingest.NewMemory()
	mem.AddContentItem(ingest.ContentItem{ID: 1, Type: "article", CreatedAt: day(2016, time.March, 1)})
	mem.AddCount("ga_pageviews", task.ScopeContent, 1, day(2016, time.March, 1), 7)
	mem.AddCount("ga_pageviews", task.ScopeContent, 1, day(2016, time.March, 2), 3)
	// Exactly created_at + max_age days: outside the half-open window.
	mem.AddCount("ga_pageviews", task.ScopeContent, 1, day(2016, time.March, 3), 99)

	handler := NewMetricsHandler(newTestLogger(), mem, "")

	rs, err := handler.Execute(context.Background(), compiled, Request{
		Window: rollup.Window{Start: day(2016, time.March, 1), End: day(2016, time.March, 8)},
	})
	require.NoError(t, err)

	sum := findResult(t, rs, "ga_pageviews", "content", 1, "summary")
	require.NotNil(t, sum.Value)
	assert.Equal(t, 10.0, *sum.Value)
}

func TestMetricsHandler_TypeFilterAppliedOnce(t *testing.T) {
	t.Parallel()

	const src = `slug: typed
name: Typed
runs: ga.ContentSummary
creates: metrics
options:
  content_item_types:
    input_type: checkbox
    value_types:
      - string
    default:
      - article
    input_options:
      - all
      - article
      - video
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
    content_levels:
      - summary
`

	compiled := compileDocument(t, src)

	mem := ingest.NewMemory()
	mem.AddContentItem(ingest.ContentItem{ID: 1, Type: "article", CreatedAt: day(2016, time.March, 1)})
	mem.AddContentItem(ingest.ContentItem{ID: 2, Type: "video", CreatedAt: day(2016, time.March, 1)})
	mem.AddCount("ga_pageviews", task.ScopeContent, 1, day(2016, time.March, 1), 10)
	mem.AddCount("ga_pageviews", task.ScopeContent, 2, day(2016, time.March, 1), 20)

	handler := NewMetricsHandler(newTestLogger(), mem, "")

	rs, err := handler.Execute(context.Background(), compiled, Request{
		Window: rollup.Window{Start: day(2016, time.March, 1), End: day(2016, time.March, 8)},
	})
	require.NoError(t, err)

	require.Len(t, rs.Results, 1)
	assert.Equal(t, int64(1), rs.Results[0].ScopeID)
}

const facetTaskYAML = `slug: ga-content-domain-facets
name: GA Domain Facets
runs: ga.ContentDomainFacets
creates: metrics
options:
  max_facets:
    input_type: number
    value_types:
      - numeric
    default: 2
metrics:
  ga_pageviews_by_domain:
    display_name: Pageviews by Domain
    type: count
    faceted: true
    content_levels:
      - summary
      - comparison
`

func TestMetricsHandler_Facets(t *testing.T) {
	t.Parallel()

	compiled := compileDocument(t, facetTaskYAML)

	mem := ingest.NewMemory()
	mem.AddContentItem(ingest.ContentItem{ID: 5, Type: "article", CreatedAt: day(2016, time.March, 1)})
	mem.AddContentItem(ingest.ContentItem{ID: 6, Type: "article", CreatedAt: day(2016, time.March, 1)})

	mem.AddFacet("ga_pageviews_by_domain", "domain", task.ScopeContent, 5, "a.com", day(2016, time.March, 1), 5)
	mem.AddFacet("ga_pageviews_by_domain", "domain", task.ScopeContent, 5, "b.com", day(2016, time.March, 2), 5)
	mem.AddFacet("ga_pageviews_by_domain", "domain", task.ScopeContent, 5, "c.com", day(2016, time.March, 3), 9)
	mem.AddFacet("ga_pageviews_by_domain", "domain", task.ScopeContent, 6, "d.com", day(2016, time.March, 1), 50)
	// Prior window traffic for item 5.
	mem.AddFacet("ga_pageviews_by_domain", "domain", task.ScopeContent, 5, "x.com", day(2016, time.February, 15), 4)

	handler := NewMetricsHandler(newTestLogger(), mem, "domain")

	rs, err := handler.Execute(context.Background(), compiled, Request{
		Window: rollup.Window{Start: day(2016, time.March, 1), End: day(2016, time.March, 8)},
	})
	require.NoError(t, err)
	assert.Len(t, rs.Results, 4)

	// Ranked by value descending, the a/b tie broken by key ascending,
	// truncated to max_facets.
	sum := findResult(t, rs, "ga_pageviews_by_domain", "content", 5, "summary")
	require.Len(t, sum.Facets, 2)
	assert.Equal(t, FacetEntry{Key: "c.com", Value: 9}, sum.Facets[0])
	assert.Equal(t, FacetEntry{Key: "a.com", Value: 5}, sum.Facets[1])
	assert.Nil(t, sum.Value)

	// Facet rows are split per scope id.
	other := findResult(t, rs, "ga_pageviews_by_domain", "content", 6, "summary")
	require.Len(t, other.Facets, 1)
	assert.Equal(t, FacetEntry{Key: "d.com", Value: 50}, other.Facets[0])

	cmp := findResult(t, rs, "ga_pageviews_by_domain", "content", 5, "comparison")
	require.Len(t, cmp.Facets, 2)
	assert.Equal(t, "c.com", cmp.Facets[0].Key)
	require.Len(t, cmp.PriorFacets, 1)
	assert.Equal(t, FacetEntry{Key: "x.com", Value: 4}, cmp.PriorFacets[0])
}

func TestMetricsHandler_FacetsWithoutDimension(t *testing.T) {
	t.Parallel()

	compiled := compileDocument(t, facetTaskYAML)

	handler := NewMetricsHandler(newTestLogger(), ingest.NewMemory(), "")

	_, err := handler.Execute(context.Background(), compiled, Request{
		Window: rollup.Window{Start: day(2016, time.March, 1), End: day(2016, time.March, 8)},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoFacetDimension)
}

func TestMetricsHandler_Deterministic(t *testing.T) {
	t.Parallel()

	compiled := compileDocument(t, timeseriesTaskYAML)

	mem := ingest.NewMemory()
	for id := int64(1); id <= 5; id++ {
		mem.AddContentItem(ingest.ContentItem{ID: id, Type: "article", CreatedAt: day(2016, time.March, int(id))})
		mem.AddCount("ga_pageviews", task.ScopeContent, id, day(2016, time.March, int(id)), float64(10*id))
		mem.AddCount("ga_entrances", task.ScopeContent, id, day(2016, time.March, int(id)), float64(id))
	}

	handler := NewMetricsHandler(newTestLogger(), mem, "")

	req := Request{
		OrgID:       1,
		Window:      rollup.Window{Start: day(2016, time.March, 1), End: day(2016, time.March, 8)},
		Concurrency: 4,
	}

	first, err := handler.Execute(context.Background(), compiled, req)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		next, err := handler.Execute(context.Background(), compiled, req)
		require.NoError(t, err)
		assert.Equal(t, first.Results, next.Results)
	}
}

func TestMetricsHandler_PriorOverride(t *testing.T) {
	t.Parallel()

	compiled := compileDocument(t, timeseriesTaskYAML)

	mem := ingest.NewMemory()
	mem.AddContentItem(ingest.ContentItem{ID: 1, Type: "article", CreatedAt: day(2016, time.March, 1)})
	mem.AddCount("ga_pageviews", task.ScopeContent, 1, day(2016, time.March, 1), 100)
	// The override window holds the prior traffic.
	mem.AddCount("ga_pageviews", task.ScopeContent, 1, day(2016, time.January, 10), 40)

	prior := rollup.Window{Start: day(2016, time.January, 1), End: day(2016, time.January, 31)}

	handler := NewMetricsHandler(newTestLogger(), mem, "")

	rs, err := handler.Execute(context.Background(), compiled, Request{
		OrgID:  1,
		Window: rollup.Window{Start: day(2016, time.March, 1), End: day(2016, time.March, 8)},
		Prior:  &prior,
	})
	require.NoError(t, err)

	cmp := findResult(t, rs, "ga_pageviews", "content", 1, "comparison")
	require.NotNil(t, cmp.Comparison)
	require.NotNil(t, cmp.Comparison.Prior)
	assert.Equal(t, 40.0, *cmp.Comparison.Prior)
}

type failingIngestor struct{}

func (failingIngestor) FetchCounts(context.Context, string, task.Scope, rollup.Window, task.TypeFilter) ([]ingest.Sample, error) {
	return nil, errors.New("fetch should not happen")
}

func (failingIngestor) FetchFacets(context.Context, string, string, task.Scope, rollup.Window, int) ([]ingest.FacetSample, error) {
	return nil, errors.New("fetch should not happen")
}

func (failingIngestor) ContentItems(context.Context) ([]ingest.ContentItem, error) {
	return nil, errors.New("fetch should not happen")
}

func TestMetricsHandler_FetchErrorPropagates(t *testing.T) {
	t.Parallel()

	compiled := compileDocument(t, timeseriesTaskYAML)

	handler := NewMetricsHandler(newTestLogger(), failingIngestor{}, "")

	_, err := handler.Execute(context.Background(), compiled, Request{
		Window: rollup.Window{Start: day(2016, time.March, 1), End: day(2016, time.March, 8)},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "listing content items")
}
