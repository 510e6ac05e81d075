/*
Package reduction computes the réduction générale of a simulation year and
keeps it reconciled as inputs change.

PURPOSE:
  A year is twelve month records evaluated strictly in order. Any change to
  any input recomputes the whole chain from January, because every month's
  regularisation depends on the cumulative figures of the months before it.

KEY CONCEPTS:
  - MonthRecord: Inputs of one month plus its derived breakdowns
  - Face value: The reduction of a month evaluated in isolation
  - Regularisation delta: The signed correction the reconciler attributes to a month
  - Applied reduction: Face value + delta, what the payslip actually carries

COMPONENTS:
  - evaluator.go: One month (or one cumulative period) through the rule port
  - reconcile.go: Progressive and annual regularisation, as pure functions
  - orchestrator.go: Owns the YearState, serialises writes, recomputes on write
  - view.go: Monthly / annual / month-by-month projections
  - options.go: Per-month option override registry

SEE ALSO:
  - generic/port.go: The rule evaluation port consumed here
  - rules/engine.go: Reference port implementation
*/
package reduction

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/reduction-engine/generic"
)

// =============================================================================
// COMPANY SIZE
// =============================================================================

// CompanySize is the headcount band shared by every month of the year.
type CompanySize string

const (
	SizeUpTo50 CompanySize = "moins_de_50"
	SizeOver50 CompanySize = "plus_de_50"
)

// Headcount is the representative headcount bound for the band.
func (s CompanySize) Headcount() int {
	if s == SizeOver50 {
		return 100
	}
	return 10
}

func (s CompanySize) Valid() bool { return s == SizeUpTo50 || s == SizeOver50 }

func ParseCompanySize(s string) (CompanySize, error) {
	size := CompanySize(s)
	if !size.Valid() {
		return "", &generic.InvalidInputError{Field: "company_size", Reason: fmt.Sprintf("unknown band %q", s)}
	}
	return size, nil
}

// =============================================================================
// REGULARISATION MODE
// =============================================================================

// RegularisationMode selects how cumulative corrections are attributed.
type RegularisationMode string

const (
	// ModeProgressive corrects every month against the year-to-date formula.
	ModeProgressive RegularisationMode = "progressive"

	// ModeAnnual corrects once, on the regularisation month.
	ModeAnnual RegularisationMode = "annuelle"
)

func (m RegularisationMode) Valid() bool {
	_, ok := reconcilers[m]
	return ok
}

func ParseRegularisationMode(s string) (RegularisationMode, error) {
	mode := RegularisationMode(s)
	if !mode.Valid() {
		return "", &generic.InvalidInputError{Field: "regularisation_mode", Reason: fmt.Sprintf("unknown mode %q", s)}
	}
	return mode, nil
}

// =============================================================================
// BREAKDOWN
// =============================================================================

// Breakdown is a reduction and its named components. Components are passed
// through from the port; Total need not equal their sum.
type Breakdown struct {
	Total        generic.Amount
	Retirement   generic.Amount
	Urssaf       generic.Amount
	Unemployment generic.Amount

	// Ceiling is the remuneration above which the month earns nothing.
	Ceiling generic.Amount

	// Eligible is false when the port reported the reduction inapplicable.
	Eligible bool
}

// ZeroBreakdown is the breakdown of an ineligible month.
func ZeroBreakdown() Breakdown {
	zero := generic.ZeroEuros()
	return Breakdown{Total: zero, Retirement: zero, Urssaf: zero, Unemployment: zero, Ceiling: zero}
}

// WithDelta returns the breakdown with delta added to the total. Components
// stay at face value.
func (b Breakdown) WithDelta(delta generic.Amount) Breakdown {
	b.Total = b.Total.Add(delta)
	return b
}

// =============================================================================
// MONTH RECORD
// =============================================================================

// MonthRecord is one calendar month. Index is fixed at creation; everything
// after Options is derived and only written by the reconciler.
type MonthRecord struct {
	Index             generic.Month
	GrossRemuneration generic.Amount
	Options           Options

	FaceValue     Breakdown
	Reduction     Breakdown
	Delta         generic.Amount
	CumulativeDue generic.Amount

	// Err is set when the month has no result: its own port evaluation
	// failed, or it depends on a month that did.
	Err error
}

func (r MonthRecord) clone() MonthRecord {
	r.Options = r.Options.Clone()
	return r
}

// clearDerived resets every derived field before a recomputation pass.
func (r *MonthRecord) clearDerived() {
	r.FaceValue = ZeroBreakdown()
	r.Reduction = ZeroBreakdown()
	r.Delta = generic.ZeroEuros()
	r.CumulativeDue = generic.ZeroEuros()
	r.Err = nil
}

// =============================================================================
// YEAR STATE
// =============================================================================

// YearState is the canonical state of a simulation year.
type YearState struct {
	Year        int
	Months      [generic.MonthsPerYear]MonthRecord
	CompanySize CompanySize
	Mode        RegularisationMode

	// RegularisationMonth is the month that absorbs the annual-mode
	// correction. December unless an earlier regularisation was triggered.
	RegularisationMonth generic.Month

	// PaidLeaveFund marks an employer affiliated to a caisse de congés
	// payés. It applies to the whole year, cumulative periods included.
	PaidLeaveFund bool

	// Bindings are year-wide situation values passed to every evaluation
	// (contract type, exemptions).
	Bindings generic.Situation
}

// NewYearState creates a year of twelve zero months.
func NewYearState(year int) YearState {
	s := YearState{
		Year:                year,
		CompanySize:         SizeUpTo50,
		Mode:                ModeProgressive,
		RegularisationMonth: generic.December,
		Bindings:            generic.Situation{},
	}
	for _, m := range generic.AllMonths() {
		s.Months[m] = MonthRecord{
			Index:             m,
			GrossRemuneration: generic.ZeroEuros(),
			Options:           Options{},
		}
		s.Months[m].clearDerived()
	}
	return s
}

// Clone returns a deep copy safe to hand outside the orchestrator.
func (s YearState) Clone() YearState {
	out := s
	for i := range s.Months {
		out.Months[i] = s.Months[i].clone()
	}
	out.Bindings = s.Bindings.Clone()
	return out
}

// Remunerations returns the gross remuneration of each month.
func (s YearState) Remunerations() generic.MonthlyAmounts {
	var out generic.MonthlyAmounts
	for i, m := range s.Months {
		out[i] = m.GrossRemuneration
	}
	return out
}

// cumulativeRemuneration is the gross total of months 0..last.
func (s YearState) cumulativeRemuneration(last generic.Month) generic.Amount {
	total := generic.ZeroEuros()
	for i := generic.January; i <= last; i++ {
		total = total.Add(s.Months[i].GrossRemuneration)
	}
	return total
}

// overtimeHours returns the overtime hours of months 0..last, in order.
func (s YearState) overtimeHours(last generic.Month) []decimal.Decimal {
	hours := make([]decimal.Decimal, 0, int(last)+1)
	for i := generic.January; i <= last; i++ {
		hours = append(hours, s.Months[i].Options.OvertimeHours())
	}
	return hours
}
