/*
Package rules provides a reference implementation of the rule evaluation port.

PURPOSE:
  The reduction package treats the legal formula as a black box. This
  package is one such box: it evaluates the réduction générale from
  parameter tables kept in YAML, so the server and scenario tests run
  end-to-end without an external formula engine.

WHY YAML?
  - Rates and SMIC revaluations change every year without code changes
  - Decimal strings parse exactly, no float drift in the tables
  - Exclusion conditions ship next to the rates they qualify

YAML SCHEMA:
  years:
    2024:
      smic_hourly: [{from_month: 0, rate: "11.65"}, {from_month: 10, rate: "11.88"}]
      annual_hours: "1820"
      ceiling_multiplier: "1.6"
      coefficient_divisor: "0.6"
      headcount_threshold: 50
      max_rate: {below_threshold: "0.3194", at_or_above_threshold: "0.3234"}
      retirement_rate: "0.0601"
      unemployment_rate: "0.0405"
      paid_leave_fund_divisor: "0.9"
  conditions:
    - {id: stage, when: 'CEL expression', reason: "..."}

USAGE:
  params, err := rules.LoadParameters("rules.yaml")   // or rules.DefaultParameters()
  engine, err := rules.NewEngine(params)

SEE ALSO:
  - engine.go: Formula evaluation
  - conditions.go: CEL exclusion conditions
*/
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/reduction-engine/generic"
)

//go:embed parameters.yaml
var defaultParametersYAML []byte

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

// ParametersYAML is the YAML representation of the parameter tables.
type ParametersYAML struct {
	Years      map[int]YearYAML `yaml:"years"`
	Conditions []ConditionYAML  `yaml:"conditions"`
}

// YearYAML holds one year's parameters.
type YearYAML struct {
	SMICHourly           []SMICRateYAML `yaml:"smic_hourly"`
	AnnualHours          string         `yaml:"annual_hours"`
	CeilingMultiplier    string         `yaml:"ceiling_multiplier"`
	CoefficientDivisor   string         `yaml:"coefficient_divisor"`
	HeadcountThreshold   int            `yaml:"headcount_threshold"`
	MaxRate              MaxRateYAML    `yaml:"max_rate"`
	RetirementRate       string         `yaml:"retirement_rate"`
	UnemploymentRate     string         `yaml:"unemployment_rate"`
	PaidLeaveFundDivisor string         `yaml:"paid_leave_fund_divisor"`
}

type SMICRateYAML struct {
	FromMonth int    `yaml:"from_month"`
	Rate      string `yaml:"rate"`
}

type MaxRateYAML struct {
	BelowThreshold     string `yaml:"below_threshold"`
	AtOrAboveThreshold string `yaml:"at_or_above_threshold"`
}

type ConditionYAML struct {
	ID     string `yaml:"id"`
	When   string `yaml:"when"`
	Reason string `yaml:"reason"`
}

// =============================================================================
// COMPILED PARAMETERS
// =============================================================================

// Parameters are the parsed, validated tables.
type Parameters struct {
	Years      map[int]YearParameters
	Conditions []Condition
}

// YearParameters holds one year's rates as decimals.
type YearParameters struct {
	Year                 int
	SMICHourly           [generic.MonthsPerYear]decimal.Decimal
	AnnualHours          decimal.Decimal
	CeilingMultiplier    decimal.Decimal
	CoefficientDivisor   decimal.Decimal
	HeadcountThreshold   int
	MaxRateSmall         decimal.Decimal
	MaxRateLarge         decimal.Decimal
	RetirementRate       decimal.Decimal
	UnemploymentRate     decimal.Decimal
	PaidLeaveFundDivisor decimal.Decimal
}

// Condition excludes the reduction when its CEL expression holds.
type Condition struct {
	ID     string
	When   string
	Reason string
}

// MaxRate returns the T parameter for a headcount.
func (y YearParameters) MaxRate(headcount int) decimal.Decimal {
	if headcount >= y.HeadcountThreshold {
		return y.MaxRateLarge
	}
	return y.MaxRateSmall
}

// DefaultParameters parses the embedded tables.
func DefaultParameters() (*Parameters, error) {
	return ParseParameters(defaultParametersYAML)
}

// LoadParameters reads tables from a YAML file.
func LoadParameters(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule parameters: %w", err)
	}
	return ParseParameters(data)
}

// ParseParameters parses and validates YAML tables.
func ParseParameters(data []byte) (*Parameters, error) {
	var py ParametersYAML
	if err := yaml.Unmarshal(data, &py); err != nil {
		return nil, fmt.Errorf("failed to parse rule parameters: %w", err)
	}
	return py.Compile()
}

// Compile converts the YAML form into decimals, validating every field.
func (py ParametersYAML) Compile() (*Parameters, error) {
	if len(py.Years) == 0 {
		return nil, fmt.Errorf("rule parameters: no year defined")
	}
	params := &Parameters{Years: make(map[int]YearParameters, len(py.Years))}
	for year, yy := range py.Years {
		yp, err := yy.compile(year)
		if err != nil {
			return nil, fmt.Errorf("rule parameters %d: %w", year, err)
		}
		params.Years[year] = yp
	}
	for _, c := range py.Conditions {
		if c.ID == "" || c.When == "" {
			return nil, fmt.Errorf("rule parameters: condition needs id and when")
		}
		params.Conditions = append(params.Conditions, Condition(c))
	}
	return params, nil
}

// SupportedYears lists the years with parameters, ascending.
func (p *Parameters) SupportedYears() []int {
	years := make([]int, 0, len(p.Years))
	for y := range p.Years {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func (yy YearYAML) compile(year int) (YearParameters, error) {
	yp := YearParameters{Year: year, HeadcountThreshold: yy.HeadcountThreshold}
	if yp.HeadcountThreshold <= 0 {
		return yp, fmt.Errorf("headcount_threshold must be positive")
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"annual_hours", yy.AnnualHours, &yp.AnnualHours},
		{"ceiling_multiplier", yy.CeilingMultiplier, &yp.CeilingMultiplier},
		{"coefficient_divisor", yy.CoefficientDivisor, &yp.CoefficientDivisor},
		{"max_rate.below_threshold", yy.MaxRate.BelowThreshold, &yp.MaxRateSmall},
		{"max_rate.at_or_above_threshold", yy.MaxRate.AtOrAboveThreshold, &yp.MaxRateLarge},
		{"retirement_rate", yy.RetirementRate, &yp.RetirementRate},
		{"unemployment_rate", yy.UnemploymentRate, &yp.UnemploymentRate},
		{"paid_leave_fund_divisor", yy.PaidLeaveFundDivisor, &yp.PaidLeaveFundDivisor},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return yp, fmt.Errorf("%s: %w", f.name, err)
		}
		if !d.IsPositive() {
			return yp, fmt.Errorf("%s must be positive", f.name)
		}
		*f.dst = d
	}

	if len(yy.SMICHourly) == 0 || yy.SMICHourly[0].FromMonth != 0 {
		return yp, fmt.Errorf("smic_hourly must start at month 0")
	}
	for i, r := range yy.SMICHourly {
		if i > 0 && r.FromMonth <= yy.SMICHourly[i-1].FromMonth {
			return yp, fmt.Errorf("smic_hourly must be ordered by from_month")
		}
		if !generic.Month(r.FromMonth).Valid() {
			return yp, fmt.Errorf("smic_hourly from_month %d out of range", r.FromMonth)
		}
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return yp, fmt.Errorf("smic_hourly[%d]: %w", i, err)
		}
		for m := r.FromMonth; m < generic.MonthsPerYear; m++ {
			yp.SMICHourly[m] = rate
		}
	}
	return yp, nil
}
