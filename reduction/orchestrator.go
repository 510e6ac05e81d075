package reduction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/reduction-engine/generic"
	"github.com/warp/reduction-engine/observability/metrics"
)

// =============================================================================
// ORCHESTRATOR - Owner of one simulation year
// =============================================================================

// Orchestrator owns the canonical YearState of one simulation. Every write
// is validated, applied to a copy, reconciled in full and only then
// published, all under one lock: a second writer always observes the first
// writer's reconciled state, and a rejected write leaves nothing behind.
type Orchestrator struct {
	mu        sync.Mutex
	evaluator *Evaluator
	state     YearState
	display   generic.DisplayMode
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDisplayMode sets the initial display mode.
func WithDisplayMode(mode generic.DisplayMode) Option {
	return func(o *Orchestrator) {
		if mode.Valid() {
			o.display = mode
		}
	}
}

// NewOrchestrator starts a simulation of twelve zero months for year.
func NewOrchestrator(ctx context.Context, port generic.RuleEvaluator, year int, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		evaluator: NewEvaluator(port),
		display:   generic.DisplayMonthly,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.state = o.recompute(ctx, "create", NewYearState(year))
	return o
}

// =============================================================================
// MONTH MUTATORS
// =============================================================================

// SetMonthRemuneration sets the gross remuneration of one month.
func (o *Orchestrator) SetMonthRemuneration(ctx context.Context, index int, amount decimal.Decimal) (View, error) {
	return o.mutate(ctx, "set_month_remuneration", func(s *YearState) error {
		m, err := monthIndex(index)
		if err != nil {
			return err
		}
		if err := checkRemuneration(amount); err != nil {
			return err
		}
		s.Months[m].GrossRemuneration = generic.EurosFromDecimal(amount).TruncateCents()
		return nil
	})
}

// SetMonthOption sets one override on one month.
func (o *Orchestrator) SetMonthOption(ctx context.Context, index int, key string, value decimal.Decimal) (View, error) {
	return o.mutate(ctx, "set_month_option", func(s *YearState) error {
		m, err := monthIndex(index)
		if err != nil {
			return err
		}
		k, err := ValidateOption(key, value)
		if err != nil {
			return err
		}
		s.Months[m].Options[k] = value
		return nil
	})
}

// ClearMonthOption removes one override from one month.
func (o *Orchestrator) ClearMonthOption(ctx context.Context, index int, key string) (View, error) {
	return o.mutate(ctx, "clear_month_option", func(s *YearState) error {
		m, err := monthIndex(index)
		if err != nil {
			return err
		}
		def, err := LookupOption(key)
		if err != nil {
			return err
		}
		delete(s.Months[m].Options, def.Key)
		return nil
	})
}

// SetMonthlyRemuneration is an explicit edit in the monthly view: every
// month is overwritten with the same amount.
func (o *Orchestrator) SetMonthlyRemuneration(ctx context.Context, amount decimal.Decimal) (View, error) {
	return o.mutate(ctx, "set_monthly_remuneration", func(s *YearState) error {
		if err := checkRemuneration(amount); err != nil {
			return err
		}
		s.setRemunerations(generic.ExpandMonthlyToMonths(generic.EurosFromDecimal(amount)))
		return nil
	})
}

// SetAnnualRemuneration is an explicit edit in the annual view: the total
// is distributed equally over the twelve months.
func (o *Orchestrator) SetAnnualRemuneration(ctx context.Context, amount decimal.Decimal) (View, error) {
	return o.mutate(ctx, "set_annual_remuneration", func(s *YearState) error {
		if err := checkRemuneration(amount); err != nil {
			return err
		}
		s.setRemunerations(generic.ExpandAnnualToMonths(generic.EurosFromDecimal(amount)))
		return nil
	})
}

// =============================================================================
// YEAR-WIDE MUTATORS
// =============================================================================

func (o *Orchestrator) SetCompanySize(ctx context.Context, size CompanySize) (View, error) {
	return o.mutate(ctx, "set_company_size", func(s *YearState) error {
		if !size.Valid() {
			return &generic.InvalidInputError{Field: "company_size", Reason: fmt.Sprintf("unknown band %q", size)}
		}
		s.CompanySize = size
		return nil
	})
}

// SetRegularisationMode switches mode. The year is recomputed from scratch
// under the new mode; nothing of the previous mode is kept, including a
// triggered regularisation month: annual mode regularises in December.
func (o *Orchestrator) SetRegularisationMode(ctx context.Context, mode RegularisationMode) (View, error) {
	return o.mutate(ctx, "set_regularisation_mode", func(s *YearState) error {
		if !mode.Valid() {
			return &generic.InvalidInputError{Field: "regularisation_mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
		}
		s.Mode = mode
		s.RegularisationMonth = generic.December
		return nil
	})
}

// SetPaidLeaveFund sets whether the employer is affiliated to a caisse de
// congés payés. The uplift applies to every month and cumulative period.
func (o *Orchestrator) SetPaidLeaveFund(ctx context.Context, enabled bool) (View, error) {
	return o.mutate(ctx, "set_paid_leave_fund", func(s *YearState) error {
		s.PaidLeaveFund = enabled
		return nil
	})
}

// TriggerAnnualRegularisation switches to annual mode with the correction
// attributed to month index instead of December.
func (o *Orchestrator) TriggerAnnualRegularisation(ctx context.Context, index int) (View, error) {
	return o.mutate(ctx, "trigger_annual_regularisation", func(s *YearState) error {
		m, err := monthIndex(index)
		if err != nil {
			return err
		}
		s.Mode = ModeAnnual
		s.RegularisationMonth = m
		return nil
	})
}

// SetYear changes the simulated year, keeping every input.
func (o *Orchestrator) SetYear(ctx context.Context, year int) (View, error) {
	return o.mutate(ctx, "set_year", func(s *YearState) error {
		if year <= 0 {
			return &generic.InvalidInputError{Field: "year", Reason: "must be positive"}
		}
		s.Year = year
		return nil
	})
}

// SetBinding sets a year-wide situation value (contract type, exemption
// flags). A nil value removes the binding.
func (o *Orchestrator) SetBinding(ctx context.Context, key string, value any) (View, error) {
	return o.mutate(ctx, "set_binding", func(s *YearState) error {
		if isReservedInput(generic.RuleID(key)) || key == "" {
			return &generic.InvalidInputError{Field: "binding", Reason: fmt.Sprintf("%q cannot be bound", key)}
		}
		if value == nil {
			delete(s.Bindings, generic.RuleID(key))
			return nil
		}
		v, err := bindingValue(key, value)
		if err != nil {
			return err
		}
		s.Bindings[generic.RuleID(key)] = v
		return nil
	})
}

// Recompute runs a full reconciliation pass on unchanged inputs.
func (o *Orchestrator) Recompute(ctx context.Context) View {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = o.recompute(ctx, "recompute", o.state)
	return buildView(&o.state, o.display)
}

// =============================================================================
// VIEWS
// =============================================================================

// SetDisplayMode switches the current view. Canonical data is untouched.
func (o *Orchestrator) SetDisplayMode(mode generic.DisplayMode) (View, error) {
	if !mode.Valid() {
		return View{}, &generic.InvalidInputError{Field: "display_mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.display = mode
	return buildView(&o.state, o.display), nil
}

func (o *Orchestrator) DisplayMode() generic.DisplayMode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.display
}

// View projects the current state in mode without changing the current
// display mode.
func (o *Orchestrator) View(mode generic.DisplayMode) (View, error) {
	if !mode.Valid() {
		return View{}, &generic.InvalidInputError{Field: "display_mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return buildView(&o.state, mode), nil
}

// CurrentView projects the current state in the current display mode.
func (o *Orchestrator) CurrentView() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return buildView(&o.state, o.display)
}

// State returns a copy of the reconciled state.
func (o *Orchestrator) State() YearState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Snapshot returns the inputs of the year in persisted form.
func (o *Orchestrator) Snapshot(id generic.SimulationID) generic.YearSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := &o.state
	snap := generic.YearSnapshot{
		ID:                  id,
		Year:                s.Year,
		CompanySize:         string(s.CompanySize),
		RegularisationMode:  string(s.Mode),
		RegularisationMonth: s.RegularisationMonth,
		DisplayMode:         o.display,
		PaidLeaveFund:       s.PaidLeaveFund,
		SavedAt:             time.Now().UTC(),
	}
	if len(s.Bindings) > 0 {
		bindings := make(map[string]any, len(s.Bindings))
		for k, v := range s.Bindings {
			bindings[string(k)] = v
		}
		snap.Bindings = generic.JSONBindings(bindings)
	}
	for _, m := range s.Months {
		snap.Months = append(snap.Months, generic.MonthSnapshot{
			Month:             m.Index,
			GrossRemuneration: m.GrossRemuneration.Value,
			Options:           m.Options.ToMap(),
		})
	}
	return snap
}

// Restore replaces the whole state with a persisted year and runs a full
// reconciliation pass. An invalid snapshot leaves the state unchanged.
func (o *Orchestrator) Restore(ctx context.Context, snap generic.YearSnapshot) (View, error) {
	next, err := stateFromSnapshot(snap)
	if err != nil {
		return View{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if snap.DisplayMode.Valid() {
		o.display = snap.DisplayMode
	}
	o.state = o.recompute(ctx, "restore", next)
	return buildView(&o.state, o.display), nil
}

func stateFromSnapshot(snap generic.YearSnapshot) (YearState, error) {
	if err := snap.Validate(); err != nil {
		return YearState{}, err
	}
	size, err := ParseCompanySize(snap.CompanySize)
	if err != nil {
		return YearState{}, fmt.Errorf("%w: %v", generic.ErrInvalidSnapshot, err)
	}
	mode, err := ParseRegularisationMode(snap.RegularisationMode)
	if err != nil {
		return YearState{}, fmt.Errorf("%w: %v", generic.ErrInvalidSnapshot, err)
	}

	s := NewYearState(snap.Year)
	s.CompanySize = size
	s.Mode = mode
	s.RegularisationMonth = snap.RegularisationMonth
	s.PaidLeaveFund = snap.PaidLeaveFund
	for k, v := range snap.Bindings {
		if isReservedInput(generic.RuleID(k)) {
			return YearState{}, fmt.Errorf("%w: binding %q is reserved", generic.ErrInvalidSnapshot, k)
		}
		bv, err := bindingValue(k, v)
		if err != nil {
			return YearState{}, fmt.Errorf("%w: %v", generic.ErrInvalidSnapshot, err)
		}
		s.Bindings[generic.RuleID(k)] = bv
	}
	for i, m := range snap.Months {
		opts, err := OptionsFromMap(m.Options)
		if err != nil {
			return YearState{}, fmt.Errorf("%w: %s: %v", generic.ErrInvalidSnapshot, generic.Month(i), err)
		}
		s.Months[i].GrossRemuneration = generic.EurosFromDecimal(m.GrossRemuneration).TruncateCents()
		s.Months[i].Options = opts
	}
	return s, nil
}

// =============================================================================
// WRITE PATH
// =============================================================================

// mutate applies fn to a copy of the state. On success the copy is
// reconciled and replaces the state; on error the state is untouched.
func (o *Orchestrator) mutate(ctx context.Context, op string, fn func(s *YearState) error) (View, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	next := o.state.Clone()
	if err := fn(&next); err != nil {
		o.logger.Debug("rejected write", "op", op, "error", err)
		return View{}, err
	}
	o.state = o.recompute(ctx, op, next)
	return buildView(&o.state, o.display), nil
}

// recompute reconciles s. A write always runs to completion, so the
// caller's cancellation is not propagated to the port.
func (o *Orchestrator) recompute(ctx context.Context, op string, s YearState) YearState {
	start := time.Now()
	out := Reconcile(context.WithoutCancel(ctx), o.evaluator, s)

	failed := 0
	for _, m := range out.Months {
		if m.Err != nil {
			failed++
		}
	}
	result := metrics.ResultSuccess
	if failed > 0 {
		result = metrics.ResultPartial
	}
	metrics.ObserveRecompute(string(out.Mode), result, time.Since(start))

	if failed > 0 {
		o.logger.Warn("recomputation incomplete",
			"op", op, "year", out.Year, "mode", out.Mode, "failed_months", failed,
			"first_error", firstError(&out))
	} else {
		o.logger.Debug("recomputed", "op", op, "year", out.Year, "mode", out.Mode,
			"duration", time.Since(start))
	}
	return out
}

func firstError(s *YearState) error {
	for _, m := range s.Months {
		if m.Err != nil {
			return m.Err
		}
	}
	return nil
}

// =============================================================================
// VALIDATION HELPERS
// =============================================================================

func monthIndex(index int) (generic.Month, error) {
	m := generic.Month(index)
	if err := m.Check(); err != nil {
		return 0, err
	}
	return m, nil
}

func checkRemuneration(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &generic.InvalidInputError{Field: "gross_remuneration", Reason: "must be non-negative"}
	}
	return nil
}

func (s *YearState) setRemunerations(months generic.MonthlyAmounts) {
	for i := range s.Months {
		s.Months[i].GrossRemuneration = months[i]
	}
}

var reservedInputs = map[generic.RuleID]bool{
	InputGrossRemuneration: true,
	InputHeadcount:         true,
	InputYear:              true,
	InputFirstMonth:        true,
	InputMonthCount:        true,
	InputOvertimeHours:     true,
	InputPaidLeaveFund:     true,
}

func isReservedInput(key generic.RuleID) bool { return reservedInputs[key] }

// bindingValue normalises a binding to string, bool or decimal.
func bindingValue(key string, v any) (any, error) {
	switch val := v.(type) {
	case string, bool:
		return val, nil
	case decimal.Decimal:
		return val, nil
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return nil, &generic.InvalidInputError{Field: key, Reason: err.Error()}
		}
		return d, nil
	case float64:
		amount, err := generic.ParseEuros(val)
		if err != nil {
			return nil, &generic.InvalidInputError{Field: key, Reason: "not a finite number"}
		}
		return amount.Value, nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	default:
		return nil, &generic.InvalidInputError{Field: key, Reason: fmt.Sprintf("unsupported value type %T", v)}
	}
}
