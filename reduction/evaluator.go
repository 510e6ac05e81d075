package reduction

import (
	"context"

	"github.com/warp/reduction-engine/generic"
	"github.com/warp/reduction-engine/observability/metrics"
)

// =============================================================================
// EVALUATOR - One month or one cumulative period through the port
// =============================================================================

// Evaluator builds situations from a YearState and asks the rule port for
// the reduction and its components. It holds no state of its own.
type Evaluator struct {
	port generic.RuleEvaluator
}

func NewEvaluator(port generic.RuleEvaluator) *Evaluator {
	return &Evaluator{port: port}
}

// EvaluateMonth returns the face value of month index: the reduction the
// month earns in isolation. A month above the eligibility ceiling yields a
// zero breakdown, not an error. The ceiling itself is reported either way.
func (e *Evaluator) EvaluateMonth(ctx context.Context, state *YearState, index generic.Month) (Breakdown, error) {
	if err := index.Check(); err != nil {
		return Breakdown{}, err
	}
	month := state.Months[index]

	s := e.baseSituation(state, index, 1)
	s[InputGrossRemuneration] = month.GrossRemuneration.Value
	month.Options.bind(s)

	total, err := e.evaluate(ctx, s, index, RuleReduction)
	if err != nil {
		return Breakdown{}, err
	}

	b := ZeroBreakdown()
	if total.Applicable {
		b.Eligible = true
		b.Total = generic.EurosFromDecimal(total.Number)
		parts := []*generic.Amount{&b.Retirement, &b.Urssaf, &b.Unemployment}
		for i, rule := range breakdownRules {
			v, err := e.evaluate(ctx, s, index, rule)
			if err != nil {
				return Breakdown{}, err
			}
			if v.Applicable {
				*parts[i] = generic.EurosFromDecimal(v.Number)
			}
		}
	}

	ceiling, err := e.evaluate(ctx, s, index, RuleCeiling)
	if err != nil {
		return Breakdown{}, err
	}
	if ceiling.Applicable {
		b.Ceiling = generic.EurosFromDecimal(ceiling.Number)
	}
	return b, nil
}

// EvaluateCumulative returns the reduction due on the cumulative
// remuneration of months January..last, evaluated as one period.
func (e *Evaluator) EvaluateCumulative(ctx context.Context, state *YearState, last generic.Month) (generic.Amount, error) {
	if err := last.Check(); err != nil {
		return generic.Amount{}, err
	}

	s := e.baseSituation(state, generic.January, int(last)+1)
	s[InputGrossRemuneration] = state.cumulativeRemuneration(last).Value
	s[InputOvertimeHours] = state.overtimeHours(last)

	v, err := e.evaluate(ctx, s, last, RuleCumulativeReduction)
	if err != nil {
		return generic.Amount{}, err
	}
	if !v.Applicable {
		return generic.ZeroEuros(), nil
	}
	return generic.EurosFromDecimal(v.Number), nil
}

// baseSituation binds the year-wide inputs. Bindings come first so they can
// never shadow the inputs computed here.
func (e *Evaluator) baseSituation(state *YearState, first generic.Month, count int) generic.Situation {
	s := state.Bindings.Clone()
	s[InputYear] = state.Year
	s[InputHeadcount] = state.CompanySize.Headcount()
	s[InputFirstMonth] = int(first)
	s[InputMonthCount] = count
	s[InputPaidLeaveFund] = state.PaidLeaveFund
	return s
}

func (e *Evaluator) evaluate(ctx context.Context, s generic.Situation, month generic.Month, rule generic.RuleID) (generic.Value, error) {
	v, err := e.port.Evaluate(ctx, s, rule)
	switch {
	case err != nil:
		metrics.IncPortEvaluation(string(rule), metrics.ResultError)
		return generic.Value{}, &generic.EvaluationError{Month: month, Rule: rule, Err: err}
	case !v.Applicable:
		metrics.IncPortEvaluation(string(rule), metrics.ResultInapplicable)
	default:
		metrics.IncPortEvaluation(string(rule), metrics.ResultSuccess)
	}
	return v, nil
}
