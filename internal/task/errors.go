package task

import (
	"errors"
	"fmt"
)

var (
	errSlugRequired         = errors.New("slug is required")
	errRunsRequired         = errors.New("runs is required")
	errCreatesInvalid       = errors.New("creates must be \"metrics\"")
	errNoMetrics            = errors.New("document declares no metrics")
	errDuplicateSlug        = errors.New("duplicate task slug")
	errMetricNameRequired   = errors.New("metric name is required")
	errDisplayNameRequired  = errors.New("display_name is required")
	errUnknownKind          = errors.New("unknown metric type")
	errUnknownLevel         = errors.New("unknown level")
	errUnknownAgg           = errors.New("unknown agg")
	errComputedNeedsFormula = errors.New("computed metric requires a formula")
	errCountHasFormula      = errors.New("count metric cannot declare a formula")
	errFacetedTimeseries    = errors.New("faceted metric cannot declare the timeseries level")
	errOrgComparison        = errors.New("comparison level is not available at org scope")
	errDuplicateMetricKey   = errors.New("duplicate metric key")
	errMaxAgeNegative       = errors.New("max_age cannot be negative")
	errMaxFacetsNegative    = errors.New("max_facets cannot be negative")
	errUnknownInputType     = errors.New("unknown input type")
	errUnknownValueType     = errors.New("unknown value type")
	errInputOptionsRequired = errors.New("input_options required for select and checkbox options")
)

// SchemaError reports an invalid declaration in a task document. Metric is
// empty for document-level problems (missing slug, bad option, and so on).
type SchemaError struct {
	Slug   string
	Metric string
	Reason error
}

func (e *SchemaError) Error() string {
	if e.Metric == "" {
		return fmt.Sprintf("task %s: %v", e.Slug, e.Reason)
	}

	return fmt.Sprintf("task %s: metric %s: %v", e.Slug, e.Metric, e.Reason)
}

func (e *SchemaError) Unwrap() error {
	return e.Reason
}

// NewSchemaError wraps a validation reason with the task slug and, when the
// problem is scoped to a single metric, the metric name.
func NewSchemaError(slug, metric string, reason error) *SchemaError {
	return &SchemaError{Slug: slug, Metric: metric, Reason: reason}
}
