/*
port.go - Rule evaluation port

PURPOSE:
  The legal formula (rates, SMIC thresholds, company-size bands) lives
  outside the core, behind one narrow capability: evaluate a target rule
  against a situation. The reduction package consumes this interface and
  nothing else, which keeps the evaluator and the reconciler testable with
  stubs encoding known input/output pairs.

KEY CONCEPTS:
  - RuleID: Name of a rule, used both as situation key and as target
  - Situation: Named input values for one evaluation
  - Value: A number, or the explicit "inapplicable" marker

INAPPLICABLE vs ERROR:
  Inapplicable is an expected outcome (remuneration above the eligibility
  ceiling, excluded contract) and callers treat it as "no reduction".
  An error means the port could not answer; callers must not silently
  substitute zero.

SEE ALSO:
  - rules/engine.go: Reference implementation
  - reduction/evaluator.go: Consumer
*/
package generic

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// RuleID identifies a rule, either as an input binding or as a target.
type RuleID string

// Situation maps rule identifiers to input values. Values are
// decimal.Decimal, []decimal.Decimal, string, bool or int.
type Situation map[RuleID]any

// Clone returns a shallow copy; values are immutable by convention.
func (s Situation) Clone() Situation {
	out := make(Situation, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a copy of s overlaid with other.
func (s Situation) Merge(other Situation) Situation {
	out := s.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Keys returns the bound identifiers in a stable order.
func (s Situation) Keys() []RuleID {
	keys := make([]RuleID, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Value is the result of one evaluation.
type Value struct {
	Number     decimal.Decimal
	Applicable bool
}

// Inapplicable is the "rule does not apply" marker.
func Inapplicable() Value { return Value{} }

// NumberValue wraps an applicable numeric result.
func NumberValue(d decimal.Decimal) Value { return Value{Number: d, Applicable: true} }

// RuleEvaluator is the rule evaluation port.
// Implementations must be pure functions of (situation, target).
type RuleEvaluator interface {
	Evaluate(ctx context.Context, situation Situation, target RuleID) (Value, error)
}

// RuleEvaluatorFunc adapts a function to RuleEvaluator.
type RuleEvaluatorFunc func(ctx context.Context, situation Situation, target RuleID) (Value, error)

func (f RuleEvaluatorFunc) Evaluate(ctx context.Context, situation Situation, target RuleID) (Value, error) {
	return f(ctx, situation, target)
}
