package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOptions_Defaults(t *testing.T) {
	t.Parallel()

	doc := decodeDocument(t, `
slug: t
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
`)

	opts, err := BuildOptions(doc)
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxAge, opts.MaxAge)
	assert.Equal(t, DefaultMaxFacets, opts.MaxFacets)
	assert.Empty(t, opts.ContentItemTypes)
	assert.True(t, opts.TypeFilter().All(), "no declared types means the wildcard")
}

func TestBuildOptions_FromDocumentDefaults(t *testing.T) {
	t.Parallel()

	doc := decodeDocument(t, `
slug: t
options:
  max_age:
    input_type: number
    value_types: [numeric]
    default: 60
  max_facets:
    input_type: number
    value_types: [numeric]
    default: 5
  content_item_types:
    input_type: checkbox
    value_types: [string]
    default: [article, video]
    input_options: [article, video, interactive, all]
metrics:
  ga_pageviews:
    display_name: Pageviews
    type: count
`)

	opts, err := BuildOptions(doc)
	require.NoError(t, err)

	assert.Equal(t, 60, opts.MaxAge)
	assert.Equal(t, 5, opts.MaxFacets)
	assert.Equal(t, []string{"article", "video"}, opts.ContentItemTypes)

	filter := opts.TypeFilter()
	assert.False(t, filter.All())
	assert.True(t, filter.Matches("article"))
	assert.True(t, filter.Matches("video"))
	assert.False(t, filter.Matches("interactive"))
}

func TestBuildOptions_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name: "negative max_age",
			yaml: `
slug: t
options:
  max_age:
    input_type: number
    value_types: [numeric]
    default: -1
metrics:
  m:
    display_name: M
    type: count
`,
			wantErr: errMaxAgeNegative,
		},
		{
			name: "negative max_facets",
			yaml: `
slug: t
options:
  max_facets:
    input_type: number
    value_types: [numeric]
    default: -10
metrics:
  m:
    display_name: M
    type: count
`,
			wantErr: errMaxFacetsNegative,
		},
		{
			name: "unknown input type",
			yaml: `
slug: t
options:
  max_age:
    input_type: slider
    value_types: [numeric]
    default: 30
metrics:
  m:
    display_name: M
    type: count
`,
			wantErr: errUnknownInputType,
		},
		{
			name: "unknown value type",
			yaml: `
slug: t
options:
  max_age:
    input_type: number
    value_types: [duration]
    default: 30
metrics:
  m:
    display_name: M
    type: count
`,
			wantErr: errUnknownValueType,
		},
		{
			name: "select without input_options",
			yaml: `
slug: t
options:
  content_item_types:
    input_type: select
    value_types: [string]
    default: all
metrics:
  m:
    display_name: M
    type: count
`,
			wantErr: errInputOptionsRequired,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := decodeDocument(t, tt.yaml)

			_, err := BuildOptions(doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			schemaErr := &SchemaError{}
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, "t", schemaErr.Slug)
			assert.Empty(t, schemaErr.Metric, "option errors are document level")
		})
	}
}

func TestTypeFilter_Wildcard(t *testing.T) {
	t.Parallel()

	opts := &Options{ContentItemTypes: []string{"article", "all"}}

	filter := opts.TypeFilter()
	assert.True(t, filter.All(), "a list containing all collapses to the wildcard")
	assert.True(t, filter.Matches("anything"))
}

func TestBuildOptions_StringDefaults(t *testing.T) {
	t.Parallel()

	doc := decodeDocument(t, `
slug: t
options:
  max_age:
    input_type: number
    value_types: [numeric]
    default: "45"
  content_item_types:
    input_type: text
    value_types: [string]
    default: article
metrics:
  m:
    display_name: M
    type: count
`)

	opts, err := BuildOptions(doc)
	require.NoError(t, err)

	assert.Equal(t, 45, opts.MaxAge, "quoted numeric defaults are coerced")
	assert.Equal(t, []string{"article"}, opts.ContentItemTypes)
}
