/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the reduction model from the external API contract. Amounts cross the
  boundary as JSON numbers (euros, 2 decimals) and become decimals as soon
  as they enter the handlers.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Simulation:
    CreateSimulationRequest, SimulationDTO, SummaryDTO

  View:
    ViewDTO, MonthDTO, BreakdownDTO

  Edits:
    AmountRequest, OptionRequest, CompanySizeRequest, ModeRequest,
    PaidLeaveFundRequest, TriggerRequest, BindingRequest, YearRequest, DisplayModeRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done by the orchestrator, not in DTOs. DTOs are pure data
  carriers; handlers only reject what cannot be parsed.

SEE ALSO:
  - handlers.go: Uses these types
  - reduction/view.go: View and MonthView
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/reduction-engine/generic"
	"github.com/warp/reduction-engine/reduction"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateSimulationRequest starts a simulation. Zero values take defaults:
// the configured year, up to 50 employees, progressive regularisation.
type CreateSimulationRequest struct {
	Year                int      `json:"year,omitempty"`
	CompanySize         string   `json:"company_size,omitempty"`
	RegularisationMode  string   `json:"regularisation_mode,omitempty"`
	DisplayMode         string   `json:"display_mode,omitempty"`
	PaidLeaveFund       bool     `json:"paid_leave_fund,omitempty"`
	MonthlyRemuneration *float64 `json:"monthly_remuneration,omitempty"`
}

// AmountRequest carries one amount in euros.
type AmountRequest struct {
	Amount float64 `json:"amount"`
}

// OptionRequest sets a month option override.
type OptionRequest struct {
	Value float64 `json:"value"`
}

type CompanySizeRequest struct {
	CompanySize string `json:"company_size"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

// PaidLeaveFundRequest sets the year-wide caisse de congés payés affiliation.
type PaidLeaveFundRequest struct {
	Enabled bool `json:"enabled"`
}

// TriggerRequest sets the month the annual correction lands on.
type TriggerRequest struct {
	Month int `json:"month"`
}

// BindingRequest sets a year-wide rule input. A null value removes it.
type BindingRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type YearRequest struct {
	Year int `json:"year"`
}

type DisplayModeRequest struct {
	DisplayMode string `json:"display_mode"`
}

// LoadScenarioRequest loads a demo scenario into a new simulation.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Year       int    `json:"year,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// BreakdownDTO is a reduction split into its components.
type BreakdownDTO struct {
	Total        float64 `json:"total"`
	Retirement   float64 `json:"retirement"`
	Urssaf       float64 `json:"urssaf"`
	Unemployment float64 `json:"unemployment"`
	Ceiling      float64 `json:"ceiling"`
	Eligible     bool    `json:"eligible"`
}

// MonthDTO is one line of the month-by-month view.
type MonthDTO struct {
	Month             int                `json:"month"`
	Name              string             `json:"name"`
	GrossRemuneration float64            `json:"gross_remuneration"`
	Options           map[string]float64 `json:"options,omitempty"`
	FaceValue         BreakdownDTO       `json:"face_value"`
	Delta             float64            `json:"delta"`
	Reduction         BreakdownDTO       `json:"reduction"`
	CumulativeDue     float64            `json:"cumulative_due"`
	Error             string             `json:"error,omitempty"`
}

// ViewDTO is a simulation projected in one display mode.
type ViewDTO struct {
	ID                  string       `json:"id"`
	Year                int          `json:"year"`
	DisplayMode         string       `json:"display_mode"`
	CompanySize         string       `json:"company_size"`
	RegularisationMode  string       `json:"regularisation_mode"`
	RegularisationMonth int          `json:"regularisation_month"`
	PaidLeaveFund       bool         `json:"paid_leave_fund"`
	Remuneration        float64      `json:"remuneration"`
	AnnualRemuneration  float64      `json:"annual_remuneration"`
	AverageRemuneration float64      `json:"average_remuneration"`
	FaceValue           BreakdownDTO `json:"face_value"`
	Delta               float64      `json:"delta"`
	Reduction           BreakdownDTO `json:"reduction"`
	Months              []MonthDTO   `json:"months,omitempty"`
	FailedMonths        []int        `json:"failed_months,omitempty"`
	Errors              []string     `json:"errors,omitempty"`
}

// SimulationDTO lists an open simulation.
type SimulationDTO struct {
	ID                 string    `json:"id"`
	Year               int       `json:"year"`
	CompanySize        string    `json:"company_size"`
	RegularisationMode string    `json:"regularisation_mode"`
	DisplayMode        string    `json:"display_mode"`
	AnnualRemuneration float64   `json:"annual_remuneration"`
	LastUsed           time.Time `json:"last_used"`
}

// SummaryDTO lists a saved simulation.
type SummaryDTO struct {
	ID                 string    `json:"id"`
	Year               int       `json:"year"`
	CompanySize        string    `json:"company_size"`
	RegularisationMode string    `json:"regularisation_mode"`
	AnnualRemuneration float64   `json:"annual_remuneration"`
	SavedAt            time.Time `json:"saved_at"`
}

// OptionDTO describes a month option override.
type OptionDTO struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// toDecimal converts a request amount; NaN and infinities are rejected.
func toDecimal(value float64) (decimal.Decimal, error) {
	a, err := generic.ParseEuros(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return a.Value, nil
}

func toBreakdownDTO(b reduction.Breakdown) BreakdownDTO {
	return BreakdownDTO{
		Total:        b.Total.Float64(),
		Retirement:   b.Retirement.Float64(),
		Urssaf:       b.Urssaf.Float64(),
		Unemployment: b.Unemployment.Float64(),
		Ceiling:      b.Ceiling.Float64(),
		Eligible:     b.Eligible,
	}
}

func toViewDTO(id generic.SimulationID, v reduction.View) ViewDTO {
	dto := ViewDTO{
		ID:                  string(id),
		Year:                v.Year,
		DisplayMode:         string(v.DisplayMode),
		CompanySize:         string(v.CompanySize),
		RegularisationMode:  string(v.RegularisationMode),
		RegularisationMonth: int(v.RegularisationMonth),
		PaidLeaveFund:       v.PaidLeaveFund,
		Remuneration:        v.Remuneration.Float64(),
		AnnualRemuneration:  v.AnnualRemuneration.Float64(),
		AverageRemuneration: v.AverageRemuneration.Float64(),
		FaceValue:           toBreakdownDTO(v.FaceValue),
		Delta:               v.Delta.Float64(),
		Reduction:           toBreakdownDTO(v.Reduction),
	}
	for _, m := range v.Months {
		month := MonthDTO{
			Month:             int(m.Month),
			Name:              m.Month.Name(),
			GrossRemuneration: m.GrossRemuneration.Float64(),
			FaceValue:         toBreakdownDTO(m.FaceValue),
			Delta:             m.Delta.Float64(),
			Reduction:         toBreakdownDTO(m.Reduction),
			CumulativeDue:     m.CumulativeDue.Float64(),
		}
		if len(m.Options) > 0 {
			month.Options = make(map[string]float64, len(m.Options))
			for k, val := range m.Options {
				month.Options[string(k)] = val.InexactFloat64()
			}
		}
		if m.Err != nil {
			month.Error = m.Err.Error()
		}
		dto.Months = append(dto.Months, month)
	}
	for _, m := range v.FailedMonths {
		dto.FailedMonths = append(dto.FailedMonths, int(m))
	}
	if err := v.Err(); err != nil {
		for _, e := range unwrapJoined(err) {
			dto.Errors = append(dto.Errors, e.Error())
		}
	}
	return dto
}

func toSummaryDTO(s generic.SnapshotSummary) SummaryDTO {
	return SummaryDTO{
		ID:                 string(s.ID),
		Year:               s.Year,
		CompanySize:        s.CompanySize,
		RegularisationMode: s.RegularisationMode,
		AnnualRemuneration: s.AnnualRemuneration.Float64(),
		SavedAt:            s.SavedAt,
	}
}

// unwrapJoined splits an errors.Join result back into its parts.
func unwrapJoined(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
