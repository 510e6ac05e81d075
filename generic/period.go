/*
period.go - Period conversion layer

PURPOSE:
  The same twelve monthly remuneration figures can be looked at three ways:
  as one representative monthly figure, as an annual total, or month by
  month. This file converts between those views.

KEY INSIGHT:
  Collapsing never mutates. Switching from a divergent month-by-month year
  to the monthly or annual view shows the average or the sum, and switching
  back restores the divergence. Only an explicit edit in the monthly or
  annual view expands, and expanding is a destructive uniform overwrite.

ROUNDING RULE:
  Expanded per-month amounts are truncated to the cent. The representative
  monthly figure is rounded to the cent for display only and must never be
  fed back into per-month storage.

    ExpandAnnualToMonths(23000)  -> 12 x 1916.66
    CollapseMonthsToAnnual(...)  -> 22999.92
    CollapseMonthsToMonthly(...) -> 1916.66

SEE ALSO:
  - reduction/orchestrator.go: Applies expansions on explicit edits
  - reduction/view.go: Builds display projections
*/
package generic

import "github.com/shopspring/decimal"

// =============================================================================
// DISPLAY MODE - View selector, not canonical state
// =============================================================================

type DisplayMode string

const (
	DisplayMonthly      DisplayMode = "mensuel"
	DisplayAnnual       DisplayMode = "annuel"
	DisplayMonthByMonth DisplayMode = "mois_par_mois"
)

func (d DisplayMode) Valid() bool {
	switch d {
	case DisplayMonthly, DisplayAnnual, DisplayMonthByMonth:
		return true
	}
	return false
}

// ParseDisplayMode validates a display mode coming from an outer surface.
func ParseDisplayMode(s string) (DisplayMode, error) {
	d := DisplayMode(s)
	if !d.Valid() {
		return "", &InvalidInputError{Field: "display_mode", Reason: "unknown mode " + s}
	}
	return d, nil
}

// MonthlyAmounts holds one amount per month, January first.
type MonthlyAmounts [MonthsPerYear]Amount

var monthsPerYear = decimal.NewFromInt(MonthsPerYear)

// =============================================================================
// EXPANSION - Explicit edits in the monthly or annual view
// =============================================================================

// ExpandAnnualToMonths distributes an annual total equally over the twelve
// months, each truncated to the cent.
func ExpandAnnualToMonths(annual Amount) MonthlyAmounts {
	return uniform(annual.Div(monthsPerYear).TruncateCents())
}

// ExpandMonthlyToMonths sets every month to the same monthly amount,
// discarding any prior per-month variation.
func ExpandMonthlyToMonths(monthly Amount) MonthlyAmounts {
	return uniform(monthly.TruncateCents())
}

func uniform(a Amount) MonthlyAmounts {
	var out MonthlyAmounts
	for i := range out {
		out[i] = a
	}
	return out
}

// =============================================================================
// COLLAPSE - Aggregates shown by the monthly and annual views
// =============================================================================

// CollapseMonthsToAnnual is the exact sum, no rounding.
func CollapseMonthsToAnnual(months MonthlyAmounts) Amount {
	return Sum(months[:]...)
}

// CollapseMonthsToMonthly is the annual total divided by twelve, rounded to
// the cent for display.
func CollapseMonthsToMonthly(months MonthlyAmounts) Amount {
	return CollapseMonthsToAnnual(months).Div(monthsPerYear).RoundCents()
}

// Project returns the figure a display mode shows for a set of monthly
// amounts. The month-by-month view has no single figure and returns the
// annual total.
func Project(mode DisplayMode, months MonthlyAmounts) Amount {
	if mode == DisplayMonthly {
		return CollapseMonthsToMonthly(months)
	}
	return CollapseMonthsToAnnual(months)
}
