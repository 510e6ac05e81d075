package rules

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/reduction-engine/generic"
	"github.com/warp/reduction-engine/reduction"
)

// =============================================================================
// ENGINE - Reference rule evaluation port
// =============================================================================

// Engine evaluates the réduction générale over a period of one or more
// consecutive months:
//
//	smicRef = Σ smicHourly(m) × (annualHours/12 + overtime(m))
//	C       = T/divisor × (multiplier × smicRef / remuneration − 1), clamped to [0, T], 4 decimals
//	total   = C × remuneration, to the cent
//
// Remuneration above the ceiling (C ≤ 0) or an exclusion condition makes
// every target inapplicable.
type Engine struct {
	params     *Parameters
	conditions *conditionSet
}

// NewEngine compiles the conditions of params.
func NewEngine(params *Parameters) (*Engine, error) {
	conditions, err := compileConditions(params.Conditions)
	if err != nil {
		return nil, err
	}
	return &Engine{params: params, conditions: conditions}, nil
}

// NewDefaultEngine builds an engine over the embedded parameter tables.
func NewDefaultEngine() (*Engine, error) {
	params, err := DefaultParameters()
	if err != nil {
		return nil, err
	}
	return NewEngine(params)
}

// Parameters exposes the tables the engine was built with.
func (e *Engine) Parameters() *Parameters { return e.params }

var (
	twelve         = decimal.NewFromInt(generic.MonthsPerYear)
	coefficientDPs = int32(4)
)

// Evaluate implements generic.RuleEvaluator.
func (e *Engine) Evaluate(ctx context.Context, situation generic.Situation, target generic.RuleID) (generic.Value, error) {
	if err := ctx.Err(); err != nil {
		return generic.Value{}, fmt.Errorf("%w: %v", generic.ErrPortUnavailable, err)
	}

	in, err := e.read(situation)
	if err != nil {
		return generic.Value{}, fmt.Errorf("%w: %s: %v", generic.ErrPortEvaluationFailed, target, err)
	}

	if target == reduction.RuleCeiling {
		return generic.NumberValue(in.ceiling().Round(generic.CentsPlaces)), nil
	}

	if cond, err := e.conditions.excluded(situation); err != nil {
		return generic.Value{}, fmt.Errorf("%w: %v", generic.ErrPortEvaluationFailed, err)
	} else if cond != nil {
		return generic.Inapplicable(), nil
	}

	coefficient, ok := in.coefficient()
	if !ok {
		return generic.Inapplicable(), nil
	}
	total := coefficient.Mul(in.remuneration).Round(generic.CentsPlaces)

	switch target {
	case reduction.RuleCoefficient:
		return generic.NumberValue(coefficient), nil
	case reduction.RuleReduction, reduction.RuleCumulativeReduction:
		return generic.NumberValue(total), nil
	case reduction.RuleRetirementShare:
		return generic.NumberValue(in.share(total, in.year.RetirementRate)), nil
	case reduction.RuleUrssafShare:
		return generic.NumberValue(total.Sub(in.share(total, in.year.RetirementRate))), nil
	case reduction.RuleUnemploymentShare:
		return generic.NumberValue(in.share(total, in.year.UnemploymentRate)), nil
	default:
		return generic.Value{}, fmt.Errorf("%w: unknown target %s", generic.ErrPortEvaluationFailed, target)
	}
}

// =============================================================================
// INPUT DECODING
// =============================================================================

type inputs struct {
	year          YearParameters
	remuneration  decimal.Decimal
	headcount     int
	firstMonth    generic.Month
	monthCount    int
	overtime      []decimal.Decimal
	paidLeaveFund bool
}

func (e *Engine) read(s generic.Situation) (inputs, error) {
	var in inputs

	if _, ok := s[reduction.InputYear]; !ok {
		return in, fmt.Errorf("%s: missing", reduction.InputYear)
	}
	yearNum, err := intInput(s, reduction.InputYear, 0)
	if err != nil {
		return in, err
	}
	year, ok := e.params.Years[yearNum]
	if !ok {
		return in, fmt.Errorf("no parameters for year %d", yearNum)
	}
	in.year = year

	if in.remuneration, err = decimalInput(s, reduction.InputGrossRemuneration); err != nil {
		return in, err
	}
	if in.headcount, err = intInput(s, reduction.InputHeadcount, 1); err != nil {
		return in, err
	}
	first, err := intInput(s, reduction.InputFirstMonth, 0)
	if err != nil {
		return in, err
	}
	in.firstMonth = generic.Month(first)
	if in.monthCount, err = intInput(s, reduction.InputMonthCount, 1); err != nil {
		return in, err
	}
	if !in.firstMonth.Valid() || in.monthCount < 1 || first+in.monthCount > generic.MonthsPerYear {
		return in, fmt.Errorf("period [%d, +%d) outside the year", first, in.monthCount)
	}

	in.overtime = make([]decimal.Decimal, in.monthCount)
	switch v := s[reduction.InputOvertimeHours].(type) {
	case nil:
	case decimal.Decimal:
		in.overtime[0] = v
	case []decimal.Decimal:
		if len(v) != in.monthCount {
			return in, fmt.Errorf("%s: %d values for %d months", reduction.InputOvertimeHours, len(v), in.monthCount)
		}
		copy(in.overtime, v)
	default:
		return in, fmt.Errorf("%s: unsupported type %T", reduction.InputOvertimeHours, v)
	}

	switch v := s[reduction.InputPaidLeaveFund].(type) {
	case nil:
	case bool:
		in.paidLeaveFund = v
	default:
		return in, fmt.Errorf("%s: unsupported type %T", reduction.InputPaidLeaveFund, v)
	}
	return in, nil
}

func decimalInput(s generic.Situation, key generic.RuleID) (decimal.Decimal, error) {
	switch v := s[key].(type) {
	case decimal.Decimal:
		return v, nil
	case nil:
		return decimal.Zero, fmt.Errorf("%s: missing", key)
	default:
		return decimal.Zero, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

func intInput(s generic.Situation, key generic.RuleID, fallback int) (int, error) {
	switch v := s[key].(type) {
	case int:
		return v, nil
	case nil:
		return fallback, nil
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

// =============================================================================
// FORMULA
// =============================================================================

// smicTwelfths is twelve times the SMIC reference of the period. Keeping the
// twelfths avoids dividing before the coefficient is computed.
func (in inputs) smicTwelfths() decimal.Decimal {
	total := decimal.Zero
	for i := 0; i < in.monthCount; i++ {
		m := int(in.firstMonth) + i
		hours := in.year.AnnualHours.Add(in.overtime[i].Mul(twelve))
		total = total.Add(in.year.SMICHourly[m].Mul(hours))
	}
	return total
}

// ceiling is the remuneration at which the coefficient reaches zero.
func (in inputs) ceiling() decimal.Decimal {
	return in.year.CeilingMultiplier.Mul(in.smicTwelfths()).Div(twelve)
}

func (in inputs) coefficient() (decimal.Decimal, bool) {
	if !in.remuneration.IsPositive() {
		return decimal.Zero, false
	}
	t := in.year.MaxRate(in.headcount)

	// T × (multiplier × smic12 − 12 × rem) / (divisor × 12 × rem)
	num := t.Mul(in.year.CeilingMultiplier.Mul(in.smicTwelfths()).Sub(twelve.Mul(in.remuneration)))
	den := in.year.CoefficientDivisor.Mul(twelve).Mul(in.remuneration)
	c := num.Div(den)
	if !c.IsPositive() {
		return decimal.Zero, false
	}
	if c.GreaterThan(t) {
		c = t
	}
	c = c.Round(coefficientDPs)
	if in.paidLeaveFund {
		c = c.Div(in.year.PaidLeaveFundDivisor).Round(coefficientDPs)
	}
	if c.IsZero() {
		return decimal.Zero, false
	}
	return c, true
}

func (in inputs) share(total, rate decimal.Decimal) decimal.Decimal {
	t := in.year.MaxRate(in.headcount)
	return total.Mul(rate).Div(t).Round(generic.CentsPlaces)
}
