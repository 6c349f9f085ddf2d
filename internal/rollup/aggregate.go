package rollup

import (
	"fmt"
	"time"

	"github.com/pressmetrics/metrictask/internal/formula"
	"github.com/pressmetrics/metrictask/internal/task"
)

// Point is one day bucket of a metric series.
type Point struct {
	Day   time.Time
	Value formula.Value
}

// Series is the dense, chronologically ordered day sequence of one metric
// over one window. Count buckets are always defined (absent raw rows densify
// to zero before evaluation); computed buckets may be undefined.
type Series []Point

// NewSeries lays per-day values out over the window's day buckets. Days
// missing from values come out undefined.
func NewSeries(w Window, values map[time.Time]formula.Value) Series {
	days := w.Days()

	series := make(Series, 0, len(days))
	for _, day := range days {
		series = append(series, Point{Day: day, Value: values[day]})
	}

	return series
}

// Defined returns the defined bucket values in order.
func (s Series) Defined() []float64 {
	out := make([]float64, 0, len(s))

	for _, p := range s {
		if p.Value.Defined {
			out = append(out, p.Value.V)
		}
	}

	return out
}

// Summarize rolls a series up into one scalar. Undefined buckets are
// excluded entirely: an avg over [10, undefined, 20] is 15, not 10. A series
// with no defined buckets summarizes as undefined.
func Summarize(s Series, agg task.Agg) formula.Value {
	defined := s.Defined()
	if len(defined) == 0 {
		return formula.Undefined()
	}

	switch agg {
	case task.AggSum:
		total := 0.0
		for _, v := range defined {
			total += v
		}

		return formula.Defined(total)

	case task.AggAvg:
		total := 0.0
		for _, v := range defined {
			total += v
		}

		return formula.Defined(total / float64(len(defined)))

	case task.AggMin:
		low := defined[0]
		for _, v := range defined[1:] {
			if v < low {
				low = v
			}
		}

		return formula.Defined(low)

	case task.AggMax:
		high := defined[0]
		for _, v := range defined[1:] {
			if v > high {
				high = v
			}
		}

		return formula.Defined(high)

	default:
		return formula.Undefined()
	}
}

// ComparisonPair is a (current, prior) pair of identically aggregated
// summaries. The prior series is supplied by the caller; which window it
// covers is policy outside this package.
type ComparisonPair struct {
	Current formula.Value
	Prior   formula.Value
}

// Compare summarizes both series with the same agg.
func Compare(current, prior Series, agg task.Agg) ComparisonPair {
	return ComparisonPair{
		Current: Summarize(current, agg),
		Prior:   Summarize(prior, agg),
	}
}

// LevelNotSupportedError reports a request for a level a metric does not
// declare at a scope. It fails that request only; other metrics and levels
// of the same run are unaffected.
type LevelNotSupportedError struct {
	Metric string
	Level  task.Level
	Scope  task.Scope
}

func (e *LevelNotSupportedError) Error() string {
	return fmt.Sprintf("metric %s does not declare level %s at %s scope", e.Metric, e.Level, e.Scope)
}

// RequireLevel checks a metric's declared levels before aggregation.
func RequireLevel(m *task.MetricDefinition, scope task.Scope, level task.Level) error {
	if !m.Supports(scope, level) {
		return &LevelNotSupportedError{Metric: m.Name, Level: level, Scope: scope}
	}

	return nil
}
