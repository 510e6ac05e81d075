package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - Position of a month inside the simulation year
// =============================================================================

// Month is a 0-based month index: January = 0 ... December = 11.
// It is fixed when a month record is created and defines evaluation order.
type Month int

const (
	January Month = iota
	February
	March
	April
	May
	June
	July
	August
	September
	October
	November
	December
)

// MonthsPerYear is the length of every simulation year.
const MonthsPerYear = 12

var monthNames = [MonthsPerYear]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// Valid returns true for 0..11.
func (m Month) Valid() bool { return m >= January && m <= December }

// Check returns an IndexOutOfRangeError for anything outside 0..11.
func (m Month) Check() error {
	if !m.Valid() {
		return &IndexOutOfRangeError{Index: int(m)}
	}
	return nil
}

// TimeMonth converts to the standard library month (January = 1).
func (m Month) TimeMonth() time.Month { return time.Month(int(m) + 1) }

// Name is the French payroll label of the month.
func (m Month) Name() string {
	if !m.Valid() {
		return fmt.Sprintf("mois-%d", int(m))
	}
	return monthNames[m]
}

func (m Month) String() string { return m.Name() }

// MonthFromTime returns the simulation month of a calendar date.
func MonthFromTime(t time.Time) Month { return Month(int(t.Month()) - 1) }

// MonthByName finds a month from its French label. Used by URL parsing.
func MonthByName(name string) (Month, bool) {
	for i, n := range monthNames {
		if n == name {
			return Month(i), true
		}
	}
	return 0, false
}

// AllMonths lists January..December in evaluation order.
func AllMonths() []Month {
	months := make([]Month, MonthsPerYear)
	for i := range months {
		months[i] = Month(i)
	}
	return months
}

// StartOfMonth returns midnight UTC on the first day of the month.
func StartOfMonth(year int, m Month) time.Time {
	return time.Date(year, m.TimeMonth(), 1, 0, 0, 0, 0, time.UTC)
}
