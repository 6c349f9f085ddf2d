package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pressmetrics/metrictask/internal/rollup"
	"github.com/pressmetrics/metrictask/internal/task"
)

// Memory is a seedable in-memory Ingestor. Tests and fixture runs use it to
// exercise the pipeline without a warehouse; fetches are deterministic for
// identical seeds.
type Memory struct {
	mu        sync.RWMutex
	items     []ContentItem
	itemTypes map[int64]string
	counts    map[countKey][]Sample
	facets    map[facetKey][]facetRow
}

type countKey struct {
	metric string
	scope  task.Scope
}

type facetKey struct {
	metric    string
	dimension string
	scope     task.Scope
}

type facetRow struct {
	day     time.Time
	scopeID int64
	key     string
	value   float64
}

// NewMemory creates an empty in-memory ingestor.
func NewMemory() *Memory {
	return &Memory{
		itemTypes: make(map[int64]string),
		counts:    make(map[countKey][]Sample),
		facets:    make(map[facetKey][]facetRow),
	}
}

// AddContentItem seeds one content item.
func (m *Memory) AddContentItem(item ContentItem) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = append(m.items, item)
	m.itemTypes[item.ID] = item.Type
}

// AddCount seeds one per-day raw sample.
func (m *Memory) AddCount(metric string, scope task.Scope, scopeID int64, day time.Time, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := countKey{metric: metric, scope: scope}
	m.counts[key] = append(m.counts[key], Sample{Day: day.UTC(), ScopeID: scopeID, Value: value})
}

// AddFacet seeds one per-day facet observation. Fetches aggregate these over
// the requested window, the way the warehouse does.
func (m *Memory) AddFacet(metric, dimension string, scope task.Scope, scopeID int64, key string, day time.Time, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fk := facetKey{metric: metric, dimension: dimension, scope: scope}
	m.facets[fk] = append(m.facets[fk], facetRow{day: day.UTC(), scopeID: scopeID, key: key, value: value})
}

// FetchCounts returns the seeded samples inside the window, honoring the
// content type filter, ordered by day then scope id.
func (m *Memory) FetchCounts(_ context.Context, metric string, scope task.Scope, w rollup.Window, types task.TypeFilter) ([]Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Sample, 0)

	for _, sample := range m.counts[countKey{metric: metric, scope: scope}] {
		if !w.Contains(sample.Day) {
			continue
		}

		if scope == task.ScopeContent && !types.Matches(m.itemTypes[sample.ScopeID]) {
			continue
		}

		out = append(out, sample)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}

		return out[i].ScopeID < out[j].ScopeID
	})

	return out, nil
}

// FetchFacets sums the seeded facet observations inside the window per
// (scope, key) and returns them ranked, truncated per scope when hint > 0.
func (m *Memory) FetchFacets(_ context.Context, metric, dimension string, scope task.Scope, w rollup.Window, hint int) ([]FacetSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type bucket struct {
		scopeID int64
		key     string
	}

	sums := make(map[bucket]float64)

	// No type filter here: facet results come back per scope id and the
	// pipeline only reads the ids of items already in the run.
	for _, row := range m.facets[facetKey{metric: metric, dimension: dimension, scope: scope}] {
		if !w.Contains(row.day) {
			continue
		}

		sums[bucket{scopeID: row.scopeID, key: row.key}] += row.value
	}

	out := make([]FacetSample, 0, len(sums))
	for b, value := range sums {
		out = append(out, FacetSample{Key: b.key, ScopeID: b.scopeID, Value: value})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScopeID != out[j].ScopeID {
			return out[i].ScopeID < out[j].ScopeID
		}

		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}

		return out[i].Key < out[j].Key
	})

	if hint > 0 {
		out = truncatePerScope(out, hint)
	}

	return out, nil
}

// ContentItems returns the seeded inventory ordered by id.
func (m *Memory) ContentItems(_ context.Context) ([]ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]ContentItem, len(m.items))
	copy(items, m.items)

	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})

	return items, nil
}

func truncatePerScope(samples []FacetSample, max int) []FacetSample {
	out := make([]FacetSample, 0, len(samples))
	kept := make(map[int64]int)

	for _, s := range samples {
		if kept[s.ScopeID] >= max {
			continue
		}

		kept[s.ScopeID]++
		out = append(out, s)
	}

	return out
}
