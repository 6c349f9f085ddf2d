package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeDocument(t *testing.T, src string) *Document {
	t.Helper()

	doc := &Document{}
	require.NoError(t, yaml.Unmarshal([]byte(src), doc))

	return doc
}

func TestBuildSchema_ValidDocument(t *testing.T) {
	t.Parallel()

	doc := decodeDocument(t, `
slug: ga-content-timeseries
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
    content_levels: [timeseries, summary, comparison]
    org_levels: [timeseries, summary]
  ga_entrances:
    display_name: Entrances
    type: count
    content_levels: [timeseries, summary]
    org_levels: [summary]
  ga_per_external:
    display_name: Percent External
    type: computed
    formula: "{ga_entrances} / {ga_pageviews}"
    agg: avg
    content_levels: [summary, comparison]
    org_levels: [summary]
`)

	schema, err := BuildSchema(doc)
	require.NoError(t, err)

	require.Len(t, schema.Metrics, 3)
	assert.Equal(t, []string{"ga_pageviews", "ga_entrances", "ga_per_external"}, schema.Names())

	pageviews, ok := schema.Metric("ga_pageviews")
	require.True(t, ok)
	assert.Equal(t, KindCount, pageviews.Kind)
	assert.Equal(t, AggSum, pageviews.Agg, "count metrics default to sum")
	assert.True(t, pageviews.Supports(ScopeContent, LevelComparison))
	assert.True(t, pageviews.Supports(ScopeOrg, LevelTimeseries))
	assert.False(t, pageviews.Supports(ScopeOrg, LevelComparison))

	perExternal, ok := schema.Metric("ga_per_external")
	require.True(t, ok)
	assert.Equal(t, KindComputed, perExternal.Kind)
	assert.Equal(t, AggAvg, perExternal.Agg)
	assert.Equal(t, "{ga_entrances} / {ga_pageviews}", perExternal.Formula)

	assert.Len(t, schema.Counts(), 2)
	assert.Len(t, schema.Computed(), 1)
	assert.Empty(t, schema.Faceted())
}

func TestBuildSchema_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		metric  string
		wantErr error
	}{
		{
			name: "computed without formula",
			yaml: `
slug: t
metrics:
  ga_avg_time:
    display_name: Avg Time
    type: computed
    content_levels: [summary]
`,
			metric:  "ga_avg_time",
			wantErr: errComputedNeedsFormula,
		},
		{
			name: "count with formula",
			yaml: `
slug: t
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
    formula: "{ga_entrances} * 2"
    content_levels: [summary]
`,
			metric:  "ga_pageviews",
			wantErr: errCountHasFormula,
		},
		{
			name: "invalid level string",
			yaml: `
slug: t
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
    content_levels: [timeseries, weekly]
`,
			metric:  "ga_pageviews",
			wantErr: errUnknownLevel,
		},
		{
			name: "faceted with timeseries",
			yaml: `
slug: t
metrics:
  ga_pageviews_by_domain:
    display_name: Pageviews by Domain
    type: count
    faceted: true
    content_levels: [timeseries, summary]
`,
			metric:  "ga_pageviews_by_domain",
			wantErr: errFacetedTimeseries,
		},
		{
			name: "comparison at org scope",
			yaml: `
slug: t
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
    org_levels: [summary, comparison]
`,
			metric:  "ga_pageviews",
			wantErr: errOrgComparison,
		},
		{
			name: "unknown metric type",
			yaml: `
slug: t
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: gauge
    content_levels: [summary]
`,
			metric:  "ga_pageviews",
			wantErr: errUnknownKind,
		},
		{
			name: "unknown agg",
			yaml: `
slug: t
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
    agg: median
    content_levels: [summary]
`,
			metric:  "ga_pageviews",
			wantErr: errUnknownAgg,
		},
		{
			name: "missing display name",
			yaml: `
slug: t
metrics:
  ga_pageviews:
    type: count
    content_levels: [summary]
`,
			metric:  "ga_pageviews",
			wantErr: errDisplayNameRequired,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := decodeDocument(t, tt.yaml)

			_, err := BuildSchema(doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			schemaErr := &SchemaError{}
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, "t", schemaErr.Slug)
			assert.Equal(t, tt.metric, schemaErr.Metric)
		})
	}
}

func TestBuildSchema_DuplicateMetricKey(t *testing.T) {
	t.Parallel()

	doc := decodeDocument(t, `
slug: ga-content-device-summary
metrics:
  ga_pageviews_mobile:
    display_name: Mobile Pageviews
    type: count
    content_levels: [summary]
  ga_pageviews_tablet:
    display_name: Tablet Pageviews
    type: count
    content_levels: [summary]
  ga_pageviews_tablet:
    display_name: Tablet Pageviews
    type: count
    content_levels: [summary]
`)

	require.Equal(t, []string{"ga_pageviews_tablet"}, doc.Metrics.Duplicates)

	_, err := BuildSchema(doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDuplicateMetricKey)

	schemaErr := &SchemaError{}
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "ga_pageviews_tablet", schemaErr.Metric)
}

func TestBuildSchema_NoMetrics(t *testing.T) {
	t.Parallel()

	doc := &Document{Slug: "empty"}

	_, err := BuildSchema(doc)
	assert.ErrorIs(t, err, errNoMetrics)
}

func TestMetricList_PreservesDeclarationOrder(t *testing.T) {
	t.Parallel()

	doc := decodeDocument(t, `
slug: t
metrics:
  zz_last:
    display_name: Last
    type: count
  aa_first:
    display_name: First
    type: count
  mm_middle:
    display_name: Middle
    type: count
`)

	assert.Equal(t, []string{"zz_last", "aa_first", "mm_middle"}, doc.Metrics.Names())
}

func TestLevelSet(t *testing.T) {
	t.Parallel()

	levels := LevelSet{LevelTimeseries, LevelSummary}

	assert.True(t, levels.Has(LevelTimeseries))
	assert.True(t, levels.Has(LevelSummary))
	assert.False(t, levels.Has(LevelComparison))
	assert.Equal(t, "timeseries,summary", levels.String())
}
