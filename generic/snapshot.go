/*
snapshot.go - Persisted form of a simulation year

PURPOSE:
  A YearSnapshot is what leaves the process: the inputs of one simulation
  year (remunerations, option overrides, year-wide parameters). Derived
  values - reductions, regularisation deltas - are never persisted; a
  restore always runs a full reconciliation pass so the restored year is
  consistent regardless of how it was stored.

STRUCTURAL VALIDITY:
  A snapshot is accepted only with exactly twelve months ordered
  January..December, non-negative amounts and one company size / one
  regularisation mode. JSON payloads are checked against an embedded JSON
  schema first, then against the ordering rules the schema can't express.

SEE ALSO:
  - store.go: YearStore persistence interface
  - reduction/orchestrator.go: Snapshot() and Restore()
*/
package generic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SNAPSHOT TYPES
// =============================================================================

// SimulationID identifies a stored simulation year.
type SimulationID string

type YearSnapshot struct {
	ID                  SimulationID    `json:"id"`
	Year                int             `json:"year"`
	CompanySize         string          `json:"company_size"`
	RegularisationMode  string          `json:"regularisation_mode"`
	RegularisationMonth Month           `json:"regularisation_month"`
	DisplayMode         DisplayMode     `json:"display_mode,omitempty"`
	PaidLeaveFund       bool            `json:"paid_leave_fund,omitempty"`
	Bindings            map[string]any  `json:"bindings,omitempty"`
	Months              []MonthSnapshot `json:"months"`
	SavedAt             time.Time       `json:"saved_at"`
}

type MonthSnapshot struct {
	Month             Month                      `json:"month"`
	GrossRemuneration decimal.Decimal            `json:"gross_remuneration"`
	Options           map[string]decimal.Decimal `json:"options,omitempty"`
}

// SnapshotSummary is the listing form of a stored simulation.
type SnapshotSummary struct {
	ID                 SimulationID
	Year               int
	CompanySize        string
	RegularisationMode string
	AnnualRemuneration Amount
	SavedAt            time.Time
}

// Summary condenses a snapshot for listings.
func (s YearSnapshot) Summary() SnapshotSummary {
	total := ZeroEuros()
	for _, m := range s.Months {
		total = total.Add(EurosFromDecimal(m.GrossRemuneration))
	}
	return SnapshotSummary{
		ID:                 s.ID,
		Year:               s.Year,
		CompanySize:        s.CompanySize,
		RegularisationMode: s.RegularisationMode,
		AnnualRemuneration: total,
		SavedAt:            s.SavedAt,
	}
}

// OptionKeys returns a month's option keys in a stable order.
func (m MonthSnapshot) OptionKeys() []string {
	keys := make([]string, 0, len(m.Options))
	for k := range m.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the structural rules: twelve ordered months, non-negative
// amounts and options, a year and both year-wide enums present.
func (s YearSnapshot) Validate() error {
	if s.Year <= 0 {
		return fmt.Errorf("%w: year %d", ErrInvalidSnapshot, s.Year)
	}
	if s.CompanySize == "" {
		return fmt.Errorf("%w: missing company size", ErrInvalidSnapshot)
	}
	if s.RegularisationMode == "" {
		return fmt.Errorf("%w: missing regularisation mode", ErrInvalidSnapshot)
	}
	if !s.RegularisationMonth.Valid() {
		return fmt.Errorf("%w: regularisation month %d", ErrInvalidSnapshot, int(s.RegularisationMonth))
	}
	if len(s.Months) != MonthsPerYear {
		return fmt.Errorf("%w: %d months, want %d", ErrInvalidSnapshot, len(s.Months), MonthsPerYear)
	}
	for i, m := range s.Months {
		if m.Month != Month(i) {
			return fmt.Errorf("%w: month at position %d is %d", ErrInvalidSnapshot, i, int(m.Month))
		}
		if m.GrossRemuneration.IsNegative() {
			return fmt.Errorf("%w: negative remuneration in %s", ErrInvalidSnapshot, m.Month)
		}
		for k, v := range m.Options {
			if v.IsNegative() {
				return fmt.Errorf("%w: negative option %s in %s", ErrInvalidSnapshot, k, m.Month)
			}
		}
	}
	return nil
}

const snapshotSchemaURL = "year_snapshot.json"

const snapshotSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["year", "company_size", "regularisation_mode", "months"],
  "properties": {
    "id": {"type": "string"},
    "year": {"type": "integer", "minimum": 1},
    "company_size": {"type": "string", "minLength": 1},
    "regularisation_mode": {"type": "string", "minLength": 1},
    "regularisation_month": {"type": "integer", "minimum": 0, "maximum": 11},
    "display_mode": {"enum": ["mensuel", "annuel", "mois_par_mois"]},
    "paid_leave_fund": {"type": "boolean"},
    "bindings": {
      "type": "object",
      "additionalProperties": {"type": ["string", "number", "boolean"]}
    },
    "months": {
      "type": "array",
      "minItems": 12,
      "maxItems": 12,
      "items": {
        "type": "object",
        "required": ["month", "gross_remuneration"],
        "properties": {
          "month": {"type": "integer", "minimum": 0, "maximum": 11},
          "gross_remuneration": {"$ref": "#/$defs/amount"},
          "options": {
            "type": "object",
            "additionalProperties": {"$ref": "#/$defs/amount"}
          }
        }
      }
    },
    "saved_at": {"type": "string"}
  },
  "$defs": {
    "amount": {
      "oneOf": [
        {"type": "number", "minimum": 0},
        {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"}
      ]
    }
  }
}`

var compiledSnapshotSchema = jsonschema.MustCompileString(snapshotSchemaURL, snapshotSchema)

// DecodeSnapshot parses a JSON snapshot, validating it against the schema
// and the ordering rules. Missing regularisation_month defaults to December.
func DecodeSnapshot(data []byte) (YearSnapshot, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return YearSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := compiledSnapshotSchema.Validate(raw); err != nil {
		return YearSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	snap := YearSnapshot{RegularisationMonth: December}
	dec = json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return YearSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := snap.Validate(); err != nil {
		return YearSnapshot{}, err
	}
	return snap, nil
}

// EncodeSnapshot is the JSON form accepted by DecodeSnapshot.
func EncodeSnapshot(s YearSnapshot) ([]byte, error) {
	s.Bindings = JSONBindings(s.Bindings)
	return json.Marshal(s)
}

// JSONBindings returns a copy of bindings with decimal values as
// json.Number, so they encode as JSON numbers and decode back as numbers
// when read with UseNumber.
func JSONBindings(bindings map[string]any) map[string]any {
	if len(bindings) == 0 {
		return nil
	}
	out := make(map[string]any, len(bindings))
	for k, v := range bindings {
		if d, ok := v.(decimal.Decimal); ok {
			v = json.Number(d.String())
		}
		out[k] = v
	}
	return out
}
