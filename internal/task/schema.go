package task

import (
	"fmt"
)

// Kind distinguishes raw count metrics from formula-computed metrics.
type Kind string

const (
	// KindCount metrics are fetched from the raw sample store as-is.
	KindCount Kind = "count"
	// KindComputed metrics are derived per bucket from other metrics.
	KindComputed Kind = "computed"
)

// Level is an aggregation level a metric can be reported at.
type Level string

const (
	// LevelTimeseries is the ordered per-day sequence over a window.
	LevelTimeseries Level = "timeseries"
	// LevelSummary is a single scalar per window.
	LevelSummary Level = "summary"
	// LevelComparison is a (current, prior) pair of summaries.
	LevelComparison Level = "comparison"
)

// Scope is the entity a metric value is attached to.
type Scope string

const (
	// ScopeContent attaches values to individual content items.
	ScopeContent Scope = "content"
	// ScopeOrg attaches values to the organization as a whole.
	ScopeOrg Scope = "org"
)

// Agg selects how per-bucket values roll up into a summary.
type Agg string

const (
	AggSum Agg = "sum"
	AggAvg Agg = "avg"
	AggMin Agg = "min"
	AggMax Agg = "max"
)

// LevelSet is an ordered set of declared levels.
type LevelSet []Level

// Has reports whether the set declares the given level.
func (s LevelSet) Has(level Level) bool {
	for _, l := range s {
		if l == level {
			return true
		}
	}

	return false
}

func (s LevelSet) String() string {
	out := ""
	for i, l := range s {
		if i > 0 {
			out += ","
		}
		out += string(l)
	}

	return out
}

// MetricDefinition is one validated metric from a task document.
type MetricDefinition struct {
	Name          string
	DisplayName   string
	Kind          Kind
	ContentLevels LevelSet
	OrgLevels     LevelSet
	Faceted       bool
	Formula       string
	Agg           Agg
}

// Levels returns the declared levels for a scope.
func (m *MetricDefinition) Levels(scope Scope) LevelSet {
	if scope == ScopeOrg {
		return m.OrgLevels
	}

	return m.ContentLevels
}

// Supports reports whether the metric declares the level at the scope.
func (m *MetricDefinition) Supports(scope Scope, level Level) bool {
	return m.Levels(scope).Has(level)
}

// Schema is the immutable, validated metric set of one task document.
type Schema struct {
	Slug    string
	Metrics []*MetricDefinition

	byName map[string]*MetricDefinition
}

// BuildSchema validates a document's metric declarations and compiles them
// into a schema. The first invalid declaration fails the whole document;
// formula contents are validated separately when formulas are compiled.
func BuildSchema(doc *Document) (*Schema, error) {
	if len(doc.Metrics.Entries) == 0 {
		return nil, NewSchemaError(doc.Slug, "", errNoMetrics)
	}

	if len(doc.Metrics.Duplicates) > 0 {
		return nil, NewSchemaError(doc.Slug, doc.Metrics.Duplicates[0], errDuplicateMetricKey)
	}

	schema := &Schema{
		Slug:    doc.Slug,
		Metrics: make([]*MetricDefinition, 0, len(doc.Metrics.Entries)),
		byName:  make(map[string]*MetricDefinition, len(doc.Metrics.Entries)),
	}

	for _, entry := range doc.Metrics.Entries {
		def, err := buildMetric(doc.Slug, entry.Name, entry.Spec)
		if err != nil {
			return nil, err
		}

		schema.Metrics = append(schema.Metrics, def)
		schema.byName[def.Name] = def
	}

	return schema, nil
}

// Metric looks a metric up by name.
func (s *Schema) Metric(name string) (*MetricDefinition, bool) {
	def, ok := s.byName[name]
	return def, ok
}

// Names returns metric names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.Metrics))
	for _, m := range s.Metrics {
		names = append(names, m.Name)
	}

	return names
}

// Counts returns the count metrics in declaration order.
func (s *Schema) Counts() []*MetricDefinition {
	return s.byKind(KindCount)
}

// Computed returns the computed metrics in declaration order.
func (s *Schema) Computed() []*MetricDefinition {
	return s.byKind(KindComputed)
}

// Faceted returns the faceted metrics in declaration order.
func (s *Schema) Faceted() []*MetricDefinition {
	out := make([]*MetricDefinition, 0)
	for _, m := range s.Metrics {
		if m.Faceted {
			out = append(out, m)
		}
	}

	return out
}

func (s *Schema) byKind(kind Kind) []*MetricDefinition {
	out := make([]*MetricDefinition, 0)
	for _, m := range s.Metrics {
		if m.Kind == kind {
			out = append(out, m)
		}
	}

	return out
}

func buildMetric(slug, name string, spec *MetricSpec) (*MetricDefinition, error) {
	if name == "" {
		return nil, NewSchemaError(slug, name, errMetricNameRequired)
	}

	if spec.DisplayName == "" {
		return nil, NewSchemaError(slug, name, errDisplayNameRequired)
	}

	kind, err := parseKind(spec.Type)
	if err != nil {
		return nil, NewSchemaError(slug, name, err)
	}

	// A formula is exactly what makes a metric computed.
	if kind == KindComputed && spec.Formula == "" {
		return nil, NewSchemaError(slug, name, errComputedNeedsFormula)
	}

	if kind == KindCount && spec.Formula != "" {
		return nil, NewSchemaError(slug, name, errCountHasFormula)
	}

	contentLevels, err := parseLevels(spec.ContentLevels, ScopeContent)
	if err != nil {
		return nil, NewSchemaError(slug, name, err)
	}

	orgLevels, err := parseLevels(spec.OrgLevels, ScopeOrg)
	if err != nil {
		return nil, NewSchemaError(slug, name, err)
	}

	// Facets are ranked per window; a per-day facet series has no single
	// ranking to truncate, so the combination is rejected outright.
	if spec.Faceted && (contentLevels.Has(LevelTimeseries) || orgLevels.Has(LevelTimeseries)) {
		return nil, NewSchemaError(slug, name, errFacetedTimeseries)
	}

	agg, err := parseAgg(spec.Agg, kind)
	if err != nil {
		return nil, NewSchemaError(slug, name, err)
	}

	return &MetricDefinition{
		Name:          name,
		DisplayName:   spec.DisplayName,
		Kind:          kind,
		ContentLevels: contentLevels,
		OrgLevels:     orgLevels,
		Faceted:       spec.Faceted,
		Formula:       spec.Formula,
		Agg:           agg,
	}, nil
}

func parseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindCount, KindComputed:
		return Kind(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownKind, raw)
	}
}

func parseLevels(raw []string, scope Scope) (LevelSet, error) {
	levels := make(LevelSet, 0, len(raw))

	for _, r := range raw {
		level := Level(r)

		switch level {
		case LevelTimeseries, LevelSummary:
		case LevelComparison:
			if scope == ScopeOrg {
				return nil, errOrgComparison
			}
		default:
			return nil, fmt.Errorf("%w: %q", errUnknownLevel, r)
		}

		if !levels.Has(level) {
			levels = append(levels, level)
		}
	}

	return levels, nil
}

// parseAgg validates the declared agg, defaulting count metrics to sum and
// computed metrics to avg when the document does not say.
func parseAgg(raw string, kind Kind) (Agg, error) {
	if raw == "" {
		if kind == KindComputed {
			return AggAvg, nil
		}

		return AggSum, nil
	}

	switch Agg(raw) {
	case AggSum, AggAvg, AggMin, AggMax:
		return Agg(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownAgg, raw)
	}
}
