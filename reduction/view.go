package reduction

import (
	"errors"

	"github.com/warp/reduction-engine/generic"
)

// =============================================================================
// VIEWS - Display projections of a reconciled year
// =============================================================================

// View is what the presentation layer sees. Monthly and annual views carry
// aggregates (per-month average, year sum); the month-by-month view also
// lists every month. Projections never write back into the state.
type View struct {
	Year                int
	DisplayMode         generic.DisplayMode
	CompanySize         CompanySize
	RegularisationMode  RegularisationMode
	RegularisationMonth generic.Month
	PaidLeaveFund       bool

	// Remuneration is the projected gross remuneration: the average month
	// in the monthly view, the annual total otherwise.
	Remuneration generic.Amount

	// Annual and average figures are always present regardless of mode.
	AnnualRemuneration  generic.Amount
	AverageRemuneration generic.Amount

	// FaceValue, Delta and Reduction are projected the same way as
	// Remuneration.
	FaceValue Breakdown
	Delta     generic.Amount
	Reduction Breakdown

	// Months is only set in the month-by-month view.
	Months []MonthView

	// FailedMonths lists months without a result.
	FailedMonths []generic.Month

	errs []error
}

// MonthView is one line of the month-by-month view.
type MonthView struct {
	Month             generic.Month
	GrossRemuneration generic.Amount
	Options           Options
	FaceValue         Breakdown
	Delta             generic.Amount
	Reduction         Breakdown
	CumulativeDue     generic.Amount
	Err               error
}

// Err joins the errors of every failed month, nil when the year is complete.
func (v View) Err() error { return errors.Join(v.errs...) }

func buildView(s *YearState, mode generic.DisplayMode) View {
	remunerations := s.Remunerations()
	v := View{
		Year:                s.Year,
		DisplayMode:         mode,
		CompanySize:         s.CompanySize,
		RegularisationMode:  s.Mode,
		RegularisationMonth: s.RegularisationMonth,
		PaidLeaveFund:       s.PaidLeaveFund,
		Remuneration:        generic.Project(mode, remunerations),
		AnnualRemuneration:  generic.CollapseMonthsToAnnual(remunerations),
		AverageRemuneration: generic.CollapseMonthsToMonthly(remunerations),
	}

	var face, applied breakdownColumns
	var deltas generic.MonthlyAmounts
	for i, m := range s.Months {
		face.set(i, m.FaceValue)
		applied.set(i, m.Reduction)
		deltas[i] = m.Delta
		if m.Err != nil {
			v.FailedMonths = append(v.FailedMonths, m.Index)
			v.errs = append(v.errs, m.Err)
		}
	}
	v.FaceValue = face.project(mode)
	v.Reduction = applied.project(mode)
	v.Delta = generic.Project(mode, deltas)

	if mode == generic.DisplayMonthByMonth {
		v.Months = make([]MonthView, 0, generic.MonthsPerYear)
		for _, m := range s.Months {
			v.Months = append(v.Months, MonthView{
				Month:             m.Index,
				GrossRemuneration: m.GrossRemuneration,
				Options:           m.Options.Clone(),
				FaceValue:         m.FaceValue,
				Delta:             m.Delta,
				Reduction:         m.Reduction,
				CumulativeDue:     m.CumulativeDue,
				Err:               m.Err,
			})
		}
	}
	return v
}

// breakdownColumns holds a breakdown component per month.
type breakdownColumns struct {
	total, retirement, urssaf, unemployment, ceiling generic.MonthlyAmounts
	eligible                                         bool
}

func (c *breakdownColumns) set(i int, b Breakdown) {
	c.total[i] = b.Total
	c.retirement[i] = b.Retirement
	c.urssaf[i] = b.Urssaf
	c.unemployment[i] = b.Unemployment
	c.ceiling[i] = b.Ceiling
	c.eligible = c.eligible || b.Eligible
}

func (c *breakdownColumns) project(mode generic.DisplayMode) Breakdown {
	return Breakdown{
		Total:        generic.Project(mode, c.total),
		Retirement:   generic.Project(mode, c.retirement),
		Urssaf:       generic.Project(mode, c.urssaf),
		Unemployment: generic.Project(mode, c.unemployment),
		Ceiling:      generic.Project(mode, c.ceiling),
		Eligible:     c.eligible,
	}
}
