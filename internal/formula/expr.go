// Package formula parses metric formulas into expression trees and evaluates
// them per bucket. Formulas combine {metric_name} references and numeric
// literals with + - * /; parsing happens once at load, evaluation once per
// (scope, bucket).
package formula

import (
	"math"
	"sort"
)

// Value is a per-bucket metric value. Division by zero, or any arithmetic on
// an already undefined operand, yields an undefined Value; undefined buckets
// are excluded from aggregation instead of carrying NaN or Inf around.
type Value struct {
	V       float64
	Defined bool
}

// Defined wraps a concrete bucket value.
func Defined(v float64) Value {
	return Value{V: v, Defined: true}
}

// Undefined is the sentinel for buckets with no meaningful value.
func Undefined() Value {
	return Value{}
}

// Op is a binary arithmetic operator.
type Op byte

const (
	OpAdd Op = '+'
	OpSub Op = '-'
	OpMul Op = '*'
	OpDiv Op = '/'
)

// Expr is a parsed formula node. Implementations are sealed to this package;
// trees are immutable after Parse.
type Expr interface {
	// Eval computes the node against the bucket's metric values. Referenced
	// metrics missing from vals evaluate as undefined.
	Eval(vals map[string]Value) Value

	addRefs(refs map[string]bool)
}

// Literal is a numeric constant.
type Literal struct {
	Value float64
}

// Eval returns the constant.
func (l *Literal) Eval(_ map[string]Value) Value {
	return Defined(l.Value)
}

func (l *Literal) addRefs(_ map[string]bool) {}

// Ref is a {metric_name} reference.
type Ref struct {
	Metric string
}

// Eval looks the referenced metric up in the bucket.
func (r *Ref) Eval(vals map[string]Value) Value {
	return vals[r.Metric]
}

func (r *Ref) addRefs(refs map[string]bool) {
	refs[r.Metric] = true
}

// Binary applies an operator to two subtrees.
type Binary struct {
	Op    Op
	Left  Expr
	Right Expr
}

// Eval applies the operator. Undefined operands and division by zero
// propagate the undefined sentinel.
func (b *Binary) Eval(vals map[string]Value) Value {
	left := b.Left.Eval(vals)
	if !left.Defined {
		return Undefined()
	}

	right := b.Right.Eval(vals)
	if !right.Defined {
		return Undefined()
	}

	var out float64

	switch b.Op {
	case OpAdd:
		out = left.V + right.V
	case OpSub:
		out = left.V - right.V
	case OpMul:
		out = left.V * right.V
	case OpDiv:
		if right.V == 0 {
			return Undefined()
		}

		out = left.V / right.V
	default:
		return Undefined()
	}

	// Overflow still has to stay out of the output.
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return Undefined()
	}

	return Defined(out)
}

func (b *Binary) addRefs(refs map[string]bool) {
	b.Left.addRefs(refs)
	b.Right.addRefs(refs)
}

// Refs returns the metric names an expression references, sorted.
func Refs(expr Expr) []string {
	set := make(map[string]bool)
	expr.addRefs(set)

	refs := make([]string, 0, len(set))
	for name := range set {
		refs = append(refs, name)
	}

	sort.Strings(refs)

	return refs
}
