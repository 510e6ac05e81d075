/*
Package generic provides the domain-agnostic core of the reduction engine.

PURPOSE:
  This package contains the types every other package speaks: money
  amounts, calendar months of a simulation year, the rule-evaluation port,
  the period conversion layer and the persistence model. It knows nothing
  about the réduction générale itself; the reduction package owns that.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity with a currency (always EUR today)
  - Currency: ISO code carried alongside the value for exports
  - Rounding helpers: cents rounding for display, truncation for storage

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Explicit rounding: Nothing rounds implicitly, callers pick RoundCents
     (display) or TruncateCents (per-month storage)
  3. Floats only at the edges: JSON and exports convert, the core never does

USAGE:
  gross := generic.Euros(1900)
  annual := gross.Mul(decimal.NewFromInt(12))  // 22800 EUR

SEE ALSO:
  - period.go: Monthly / annual / month-by-month conversions
  - port.go: Rule evaluation port consumed by the reduction package
  - errors.go: Error taxonomy
*/
package generic

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary value with currency
// =============================================================================

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const (
	CurrencyEUR Currency = "EUR"
)

// CentsPlaces is the project-wide precision of stored and displayed amounts.
const CentsPlaces = 2

func NewAmount(value float64, currency Currency) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewAmountFromDecimal(value decimal.Decimal, currency Currency) Amount {
	return Amount{Value: value, Currency: currency}
}

// Euros is shorthand for an EUR amount.
func Euros(value float64) Amount {
	return NewAmount(value, CurrencyEUR)
}

// EurosFromDecimal wraps a decimal as an EUR amount.
func EurosFromDecimal(value decimal.Decimal) Amount {
	return Amount{Value: value, Currency: CurrencyEUR}
}

// ZeroEuros returns 0 EUR.
func ZeroEuros() Amount {
	return Amount{Value: decimal.Zero, Currency: CurrencyEUR}
}

// ParseEuros converts a float coming from an outer surface (JSON, form) into
// an EUR amount. NaN and infinities are rejected with ErrInvalidInput since
// decimal cannot represent them.
func ParseEuros(value float64) (Amount, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Amount{}, &InvalidInputError{Field: "amount", Reason: fmt.Sprintf("non-finite value %v", value)}
	}
	return Euros(value), nil
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Currency: a.currency()} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Currency: a.currency()} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Currency: a.currency()} }
func (a Amount) Div(s decimal.Decimal) Amount { return Amount{Value: a.Value.Div(s), Currency: a.currency()} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Currency: a.currency()} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }

// RoundCents rounds half away from zero to the cent. Display precision.
func (a Amount) RoundCents() Amount {
	return Amount{Value: a.Value.Round(CentsPlaces), Currency: a.currency()}
}

// TruncateCents drops everything past the cent. Storage precision for
// amounts derived by the period conversion layer.
func (a Amount) TruncateCents() Amount {
	return Amount{Value: a.Value.Truncate(CentsPlaces), Currency: a.currency()}
}

// Float64 is for JSON and export boundaries only.
func (a Amount) Float64() float64 {
	f, _ := a.Value.Float64()
	return f
}

func (a Amount) String() string {
	return a.Value.StringFixed(CentsPlaces) + " " + string(a.currency())
}

// An Amount built with a zero-value struct has no currency; treat it as EUR.
func (a Amount) currency() Currency {
	if a.Currency == "" {
		return CurrencyEUR
	}
	return a.Currency
}

// Sum adds amounts. The result of an empty sum is 0 EUR.
func Sum(amounts ...Amount) Amount {
	total := ZeroEuros()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
