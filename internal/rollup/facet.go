package rollup

import (
	"sort"
)

// FacetValue is one facet key's aggregated value, e.g. a referrer domain and
// its pageviews over the window.
type FacetValue struct {
	Key   string
	Value float64
}

// FacetComparison pairs the limited facet lists of the current and prior
// windows.
type FacetComparison struct {
	Current []FacetValue
	Prior   []FacetValue
}

// LimitFacets ranks facets by value descending, breaking ties by key
// ascending, and truncates to max. Dropped facets are discarded, never
// merged into a catch-all bucket. The input slice is left untouched.
func LimitFacets(values []FacetValue, max int) []FacetValue {
	if max <= 0 || len(values) == 0 {
		return []FacetValue{}
	}

	ranked := make([]FacetValue, len(values))
	copy(ranked, values)

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}

		return ranked[i].Key < ranked[j].Key
	})

	if len(ranked) > max {
		ranked = ranked[:max]
	}

	return ranked
}
