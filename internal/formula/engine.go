package formula

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pressmetrics/metrictask/internal/task"
)

var errUnknownRef = errors.New("formula references unknown metric")

// CircularFormulaError reports a reference cycle between computed metrics.
// It is raised at load time, before any raw data is fetched.
type CircularFormulaError struct {
	Slug  string
	Cycle []string
}

func (e *CircularFormulaError) Error() string {
	if len(e.Cycle) == 0 {
		return fmt.Sprintf("task %s: circular formula dependency", e.Slug)
	}

	return fmt.Sprintf("task %s: circular formula dependency: %s", e.Slug, strings.Join(e.Cycle, " -> "))
}

// Engine holds the parsed formulas of one schema and the order computed
// metrics must be evaluated in. It is immutable after Compile and safe for
// concurrent use.
type Engine struct {
	slug   string
	counts []string
	order  []string
	exprs  map[string]Expr
}

// Compile parses every computed metric's formula, validates references
// against the schema, and resolves the evaluation order. Unknown references
// surface as SchemaError, cycles as CircularFormulaError.
func Compile(log logrus.FieldLogger, schema *task.Schema) (*Engine, error) {
	log = log.WithField("component", "formula_engine")

	engine := &Engine{
		slug:  schema.Slug,
		exprs: make(map[string]Expr),
	}

	for _, m := range schema.Counts() {
		engine.counts = append(engine.counts, m.Name)
	}

	// Edges run from a computed metric to the computed metrics it references;
	// count references are leaves and need no ordering.
	computed := schema.Computed()
	deps := make(map[string][]string, len(computed))

	for _, m := range computed {
		expr, err := Parse(m.Formula)
		if err != nil {
			return nil, task.NewSchemaError(schema.Slug, m.Name, fmt.Errorf("invalid formula: %w", err))
		}

		engine.exprs[m.Name] = expr

		for _, ref := range Refs(expr) {
			target, ok := schema.Metric(ref)
			if !ok {
				return nil, task.NewSchemaError(schema.Slug, m.Name, fmt.Errorf("%w: {%s}", errUnknownRef, ref))
			}

			if target.Kind == task.KindComputed {
				deps[m.Name] = append(deps[m.Name], ref)
			}
		}
	}

	if cycle := findCycle(computed, deps); len(cycle) > 0 {
		return nil, &CircularFormulaError{Slug: schema.Slug, Cycle: cycle}
	}

	order, err := topologicalSort(computed, deps)
	if err != nil {
		return nil, &CircularFormulaError{Slug: schema.Slug}
	}

	engine.order = order

	log.WithFields(logrus.Fields{
		"task":     schema.Slug,
		"computed": len(engine.order),
		"counts":   len(engine.counts),
	}).Debug("compiled formulas")

	return engine, nil
}

// Order returns the computed metrics in evaluation order.
func (e *Engine) Order() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)

	return out
}

// EvaluateBucket computes every metric for one (scope, bucket). Count metrics
// are seeded from raw (absent counts default to zero), then computed metrics
// are evaluated in dependency order. Identical inputs always produce
// identical outputs.
func (e *Engine) EvaluateBucket(raw map[string]float64) map[string]Value {
	vals := make(map[string]Value, len(e.counts)+len(e.order))

	for _, name := range e.counts {
		vals[name] = Defined(raw[name])
	}

	for _, name := range e.order {
		vals[name] = e.exprs[name].Eval(vals)
	}

	return vals
}

// findCycle runs DFS with a recursion stack over the computed metric graph
// and returns the first cycle path found, in declaration order.
func findCycle(computed []*task.MetricDefinition, deps map[string][]string) []string {
	visited := make(map[string]bool, len(computed))
	onStack := make(map[string]bool, len(computed))
	stack := make([]string, 0, len(computed))

	var walk func(name string) []string

	walk = func(name string) []string {
		visited[name] = true
		onStack[name] = true
		stack = append(stack, name)

		for _, dep := range deps[name] {
			if onStack[dep] {
				// Close the loop from the first occurrence of dep.
				for i, frame := range stack {
					if frame == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}

				return []string{dep, dep}
			}

			if !visited[dep] {
				if cycle := walk(dep); len(cycle) > 0 {
					return cycle
				}
			}
		}

		onStack[name] = false
		stack = stack[:len(stack)-1]

		return nil
	}

	for _, m := range computed {
		if !visited[m.Name] {
			if cycle := walk(m.Name); len(cycle) > 0 {
				return cycle
			}
		}
	}

	return nil
}

// topologicalSort is Kahn's algorithm over the computed metric graph, seeded
// and drained in declaration order so the result is deterministic.
func topologicalSort(computed []*task.MetricDefinition, deps map[string][]string) ([]string, error) {
	dependents := make(map[string][]string, len(computed))
	inDegree := make(map[string]int, len(computed))

	for _, m := range computed {
		inDegree[m.Name] = len(deps[m.Name])
	}

	for _, m := range computed {
		for _, dep := range deps[m.Name] {
			dependents[dep] = append(dependents[dep], m.Name)
		}
	}

	queue := make([]string, 0, len(computed))
	for _, m := range computed {
		if inDegree[m.Name] == 0 {
			queue = append(queue, m.Name)
		}
	}

	sorted := make([]string, 0, len(computed))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted = append(sorted, current)

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(computed) {
		return nil, fmt.Errorf("circular dependency detected in formulas")
	}

	return sorted, nil
}
