package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pressmetrics/metrictask/internal/formula"
	"github.com/pressmetrics/metrictask/internal/ingest"
	"github.com/pressmetrics/metrictask/internal/rollup"
	"github.com/pressmetrics/metrictask/internal/task"
)

const defaultConcurrency = 4

var errNoFacetDimension = errors.New("handler has no facet dimension")

// Task bundles everything compiled at load time: the raw document, the
// validated schema, the resolved options and the formula engine. Handlers
// never parse or validate; a Task that exists is executable.
type Task struct {
	Document *task.Document
	Schema   *task.Schema
	Options  *task.Options
	Engine   *formula.Engine
}

// Request parameterizes one task execution.
type Request struct {
	// OrgID selects the organization's raw rows for org-scope metrics and
	// tags the result set.
	OrgID int64

	// Window is the run period. Org-scope metrics aggregate over it;
	// content items aggregate over their own eligibility windows.
	Window rollup.Window

	// Prior overrides the comparison window policy. Nil means the window
	// immediately preceding the one being compared.
	Prior *rollup.Window

	// Levels restricts content-scope output to the named levels. Empty
	// means every level each metric declares. A requested level a metric
	// does not declare fails that metric's slot only; org-scope output
	// always follows declarations.
	Levels []task.Level

	// Concurrency caps the per-content-item fan-out.
	Concurrency int
}

// PriorWindowFor resolves the comparison window for a current window.
func (r Request) PriorWindowFor(w rollup.Window) rollup.Window {
	if r.Prior != nil {
		return *r.Prior
	}

	return w.Previous()
}

func (r Request) limit() int {
	if r.Concurrency <= 0 {
		return defaultConcurrency
	}

	return r.Concurrency
}

// Handler executes one compiled task against a request. Execute returns
// every satisfiable result slot; requested-but-undeclared levels are joined
// into the returned error alongside the partial result set.
type Handler interface {
	Execute(ctx context.Context, t *Task, req Request) (*ResultSet, error)
}

// MetricsHandler is the generic analytics handler behind every shipped
// runs: name. A non-empty dimension binds faceted metrics to the grouping
// dimension they fetch (domain, device).
type MetricsHandler struct {
	log       logrus.FieldLogger
	ingestor  ingest.Ingestor
	dimension string
}

// NewMetricsHandler creates a handler over an ingestor. dimension may be
// empty for documents without faceted metrics.
func NewMetricsHandler(log logrus.FieldLogger, ingestor ingest.Ingestor, dimension string) *MetricsHandler {
	return &MetricsHandler{
		log:       log.WithField("component", "metrics_handler"),
		ingestor:  ingestor,
		dimension: dimension,
	}
}

// countIndex holds bulk-fetched raw samples per metric, scope id and day.
type countIndex map[string]map[int64]map[time.Time]float64

type eligibleItem struct {
	item   ingest.ContentItem
	window rollup.Window
}

type itemOutput struct {
	results   []MetricResult
	levelErrs []error
}

var allLevels = []task.Level{task.LevelTimeseries, task.LevelSummary, task.LevelComparison}

// Execute runs the full pipeline: content items filtered once, counts
// bulk-fetched over the covering window, per-item evaluation fanned out,
// org scope evaluated over the request window, results merged in a
// deterministic order.
func (h *MetricsHandler) Execute(ctx context.Context, t *Task, req Request) (*ResultSet, error) {
	start := time.Now()

	if err := h.checkFacets(t); err != nil {
		return nil, err
	}

	eligible, err := h.eligibleItems(ctx, t)
	if err != nil {
		return nil, err
	}

	counts, err := h.fetchContentCounts(ctx, t, req, eligible)
	if err != nil {
		return nil, err
	}

	outputs := make([]itemOutput, len(eligible))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(req.limit())

	for i, el := range eligible {
		i, el := i, el
		g.Go(func() error {
			out, itemErr := h.contentResults(gctx, t, req, el, counts)
			if itemErr != nil {
				return itemErr
			}

			// Each goroutine writes a unique index; merge order stays
			// the content item order.
			outputs[i] = out

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]MetricResult, 0)
	levelErrs := make([]error, 0)

	for _, out := range outputs {
		results = append(results, out.results...)
		levelErrs = append(levelErrs, out.levelErrs...)
	}

	orgOut, err := h.orgResults(ctx, t, req)
	if err != nil {
		return nil, err
	}

	results = append(results, orgOut.results...)

	sortResults(results)

	h.log.WithFields(logrus.Fields{
		"task":     t.Document.Slug,
		"items":    len(eligible),
		"results":  len(results),
		"duration": time.Since(start),
	}).Info("task executed")

	return &ResultSet{
		TaskSlug:    t.Document.Slug,
		OrgID:       req.OrgID,
		Window:      req.Window.String(),
		GeneratedAt: time.Now().UTC(),
		Results:     results,
	}, errors.Join(levelErrs...)
}

// checkFacets rejects documents whose faceted metrics have nowhere to go.
func (h *MetricsHandler) checkFacets(t *Task) error {
	if h.dimension != "" {
		return nil
	}

	if faceted := t.Schema.Faceted(); len(faceted) > 0 {
		return fmt.Errorf("%w: task %s declares faceted metric %s", errNoFacetDimension, t.Document.Slug, faceted[0].Name)
	}

	return nil
}

// eligibleItems applies the type filter once and attaches each item's
// eligibility window. Later stages never re-filter.
func (h *MetricsHandler) eligibleItems(ctx context.Context, t *Task) ([]eligibleItem, error) {
	items, err := h.ingestor.ContentItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing content items: %w", err)
	}

	filter := t.Options.TypeFilter()

	eligible := make([]eligibleItem, 0, len(items))

	for _, item := range items {
		if !filter.Matches(item.Type) {
			continue
		}

		eligible = append(eligible, eligibleItem{
			item:   item,
			window: rollup.WindowFrom(item.CreatedAt, t.Options.MaxAge),
		})
	}

	h.log.WithFields(logrus.Fields{
		"items":    len(items),
		"eligible": len(eligible),
	}).Debug("filtered content items")

	return eligible, nil
}

// scalarCounts returns the count metrics carrying per-day scalar samples;
// faceted counts exist only as facet rows.
func scalarCounts(s *task.Schema) []*task.MetricDefinition {
	counts := make([]*task.MetricDefinition, 0, len(s.Metrics))

	for _, def := range s.Counts() {
		if !def.Faceted {
			counts = append(counts, def)
		}
	}

	return counts
}

func needsPrior(s *task.Schema) bool {
	for _, def := range s.Metrics {
		if !def.Faceted && def.ContentLevels.Has(task.LevelComparison) {
			return true
		}
	}

	return false
}

// fetchContentCounts performs one bulk fetch per count metric over the
// window covering every item's eligibility window (and its prior window
// when any metric declares a comparison).
func (h *MetricsHandler) fetchContentCounts(ctx context.Context, t *Task, req Request, eligible []eligibleItem) (countIndex, error) {
	metrics := scalarCounts(t.Schema)
	if len(metrics) == 0 || len(eligible) == 0 {
		return countIndex{}, nil
	}

	prior := needsPrior(t.Schema)

	var covering rollup.Window

	for _, el := range eligible {
		covering = covering.Union(el.window)

		if prior {
			covering = covering.Union(req.PriorWindowFor(el.window))
		}
	}

	if covering.IsEmpty() {
		return countIndex{}, nil
	}

	filter := t.Options.TypeFilter()
	index := make(countIndex, len(metrics))

	for _, def := range metrics {
		samples, err := h.ingestor.FetchCounts(ctx, def.Name, task.ScopeContent, covering, filter)
		if err != nil {
			return nil, fmt.Errorf("fetching counts for %s: %w", def.Name, err)
		}

		index[def.Name] = indexSamples(samples)
	}

	return index, nil
}

func indexSamples(samples []ingest.Sample) map[int64]map[time.Time]float64 {
	byScope := make(map[int64]map[time.Time]float64)

	for _, s := range samples {
		days := byScope[s.ScopeID]
		if days == nil {
			days = make(map[time.Time]float64)
			byScope[s.ScopeID] = days
		}

		days[s.Day] += s.Value
	}

	return byScope
}

func indexOrgSamples(samples []ingest.Sample, orgID int64) map[int64]map[time.Time]float64 {
	days := make(map[time.Time]float64)

	for _, s := range samples {
		if s.ScopeID != orgID {
			continue
		}

		days[s.Day] += s.Value
	}

	return map[int64]map[time.Time]float64{orgID: days}
}

// evaluateWindow bucketizes one scope id over a window: counts densified to
// defined zeros, computed metrics evaluated per day in dependency order.
func evaluateWindow(t *Task, w rollup.Window, scopeID int64, counts countIndex) map[string]rollup.Series {
	days := w.Days()
	values := make(map[string]map[time.Time]formula.Value, len(t.Schema.Metrics))

	for _, day := range days {
		raw := make(map[string]float64)

		for name, byScope := range counts {
			if v, ok := byScope[scopeID][day]; ok {
				raw[name] = v
			}
		}

		for name, v := range t.Engine.EvaluateBucket(raw) {
			if values[name] == nil {
				values[name] = make(map[time.Time]formula.Value, len(days))
			}

			values[name][day] = v
		}
	}

	series := make(map[string]rollup.Series, len(values))
	for name, vals := range values {
		series[name] = rollup.NewSeries(w, vals)
	}

	return series
}

// requestedLevels returns the levels to produce for one metric at content
// scope. With no explicit request, only declared levels are produced. An
// explicitly requested level the metric does not declare yields a
// LevelNotSupportedError for that slot; other slots are unaffected.
func requestedLevels(def *task.MetricDefinition, requested []task.Level) ([]task.Level, []error) {
	if len(requested) == 0 {
		declared := make([]task.Level, 0, len(allLevels))

		for _, level := range allLevels {
			if def.Supports(task.ScopeContent, level) {
				declared = append(declared, level)
			}
		}

		return declared, nil
	}

	levels := make([]task.Level, 0, len(requested))
	errs := make([]error, 0)

	for _, level := range requested {
		if err := rollup.RequireLevel(def, task.ScopeContent, level); err != nil {
			errs = append(errs, err)
			continue
		}

		levels = append(levels, level)
	}

	return levels, errs
}

func levelRequested(levels []task.Level, level task.Level) bool {
	for _, l := range levels {
		if l == level {
			return true
		}
	}

	return false
}

func (h *MetricsHandler) contentResults(ctx context.Context, t *Task, req Request, el eligibleItem, counts countIndex) (itemOutput, error) {
	out := itemOutput{}

	current := evaluateWindow(t, el.window, el.item.ID, counts)

	var prior map[string]rollup.Series
	if needsPrior(t.Schema) {
		prior = evaluateWindow(t, req.PriorWindowFor(el.window), el.item.ID, counts)
	}

	for _, def := range t.Schema.Metrics {
		levels, errs := requestedLevels(def, req.Levels)
		out.levelErrs = append(out.levelErrs, errs...)

		for _, level := range levels {
			result := &MetricResult{
				Metric:      def.Name,
				DisplayName: def.DisplayName,
				Kind:        string(def.Kind),
				Scope:       string(task.ScopeContent),
				ScopeID:     el.item.ID,
				Level:       string(level),
			}

			if def.Faceted {
				if err := h.fillFacets(ctx, t, req, result, def, level, task.ScopeContent, el.window, el.item.ID); err != nil {
					return itemOutput{}, err
				}
			} else {
				fillScalar(result, def, level, current[def.Name], prior[def.Name])
			}

			out.results = append(out.results, *result)
		}
	}

	return out, nil
}

func fillScalar(result *MetricResult, def *task.MetricDefinition, level task.Level, current, prior rollup.Series) {
	switch level {
	case task.LevelTimeseries:
		result.Series = seriesPoints(current)
	case task.LevelSummary:
		result.Value = floatPtr(rollup.Summarize(current, def.Agg))
	case task.LevelComparison:
		result.Comparison = comparisonValue(rollup.Compare(current, prior, def.Agg))
	}
}

// fillFacets fetches, ranks and truncates one faceted metric's values for a
// scope id; at comparison level the prior window's facets ride along.
func (h *MetricsHandler) fillFacets(ctx context.Context, t *Task, req Request, result *MetricResult, def *task.MetricDefinition, level task.Level, scope task.Scope, w rollup.Window, scopeID int64) error {
	current, err := h.fetchFacetValues(ctx, def.Name, scope, w, t.Options.MaxFacets, scopeID)
	if err != nil {
		return err
	}

	result.Facets = facetEntries(current)

	if level == task.LevelComparison {
		priorValues, err := h.fetchFacetValues(ctx, def.Name, scope, req.PriorWindowFor(w), t.Options.MaxFacets, scopeID)
		if err != nil {
			return err
		}

		result.PriorFacets = facetEntries(priorValues)
	}

	return nil
}

func (h *MetricsHandler) fetchFacetValues(ctx context.Context, metric string, scope task.Scope, w rollup.Window, max int, scopeID int64) ([]rollup.FacetValue, error) {
	samples, err := h.ingestor.FetchFacets(ctx, metric, h.dimension, scope, w, max)
	if err != nil {
		return nil, fmt.Errorf("fetching facets for %s: %w", metric, err)
	}

	values := make([]rollup.FacetValue, 0, len(samples))

	for _, s := range samples {
		if s.ScopeID != scopeID {
			continue
		}

		values = append(values, rollup.FacetValue{Key: s.Key, Value: s.Value})
	}

	return rollup.LimitFacets(values, max), nil
}

// orgResults evaluates org-scope metrics over the request window. Org
// output always follows declarations; the schema rejects org comparisons,
// so no prior window is involved.
func (h *MetricsHandler) orgResults(ctx context.Context, t *Task, req Request) (itemOutput, error) {
	out := itemOutput{}

	orgDefs := make([]*task.MetricDefinition, 0, len(t.Schema.Metrics))
	scalar := false

	for _, def := range t.Schema.Metrics {
		if len(def.OrgLevels) == 0 {
			continue
		}

		orgDefs = append(orgDefs, def)

		if !def.Faceted {
			scalar = true
		}
	}

	if len(orgDefs) == 0 {
		return out, nil
	}

	var series map[string]rollup.Series

	if scalar {
		counts := make(countIndex)
		filter := t.Options.TypeFilter()

		for _, def := range scalarCounts(t.Schema) {
			samples, err := h.ingestor.FetchCounts(ctx, def.Name, task.ScopeOrg, req.Window, filter)
			if err != nil {
				return itemOutput{}, fmt.Errorf("fetching org counts for %s: %w", def.Name, err)
			}

			counts[def.Name] = indexOrgSamples(samples, req.OrgID)
		}

		series = evaluateWindow(t, req.Window, req.OrgID, counts)
	}

	for _, def := range orgDefs {
		for _, level := range allLevels {
			if !def.OrgLevels.Has(level) {
				continue
			}

			if len(req.Levels) > 0 && !levelRequested(req.Levels, level) {
				continue
			}

			result := &MetricResult{
				Metric:      def.Name,
				DisplayName: def.DisplayName,
				Kind:        string(def.Kind),
				Scope:       string(task.ScopeOrg),
				ScopeID:     req.OrgID,
				Level:       string(level),
			}

			if def.Faceted {
				if err := h.fillFacets(ctx, t, req, result, def, level, task.ScopeOrg, req.Window, req.OrgID); err != nil {
					return itemOutput{}, err
				}
			} else {
				fillScalar(result, def, level, series[def.Name], nil)
			}

			out.results = append(out.results, *result)
		}
	}

	return out, nil
}
