package reduction

import (
	"context"

	"github.com/warp/reduction-engine/generic"
)

// =============================================================================
// RECONCILER - Regularisation over the whole year
// =============================================================================

// reconcileFunc fills the derived fields of every month of s, January first.
// s is a private copy; derived fields are already cleared.
type reconcileFunc func(ctx context.Context, ev *Evaluator, s *YearState)

var reconcilers = map[RegularisationMode]reconcileFunc{
	ModeProgressive: reconcileProgressive,
	ModeAnnual:      reconcileAnnual,
}

// Reconcile recomputes every month of state under its regularisation mode
// and returns the reconciled copy. state is not modified. Running it twice
// on the same inputs yields the same result.
func Reconcile(ctx context.Context, ev *Evaluator, state YearState) YearState {
	out := state.Clone()
	for i := range out.Months {
		out.Months[i].clearDerived()
	}
	reconcile, ok := reconcilers[out.Mode]
	if !ok {
		reconcile = reconcileProgressive
	}
	reconcile(ctx, ev, &out)
	return out
}

// reconcileProgressive corrects every month against the year-to-date formula:
//
//	delta(i) = due(0..i) − granted(0..i-1) − face(i)
//
// Applied reductions telescope, so granted(0..i-1) is due(0..i-1). A month
// whose cumulative due failed leaves the following month without a
// reference; every other month is computed independently.
func reconcileProgressive(ctx context.Context, ev *Evaluator, s *YearState) {
	granted := generic.ZeroEuros()
	grantedKnown := true
	var lastFailed generic.Month

	for _, m := range generic.AllMonths() {
		rec := &s.Months[m]

		face, faceErr := ev.EvaluateMonth(ctx, s, m)
		due, dueErr := ev.EvaluateCumulative(ctx, s, m)
		if faceErr == nil {
			rec.FaceValue = face
			rec.Reduction = face
		}
		if dueErr == nil {
			rec.CumulativeDue = due
		}

		switch {
		case faceErr != nil:
			rec.Err = faceErr
		case dueErr != nil:
			rec.Err = dueErr
		case !grantedKnown:
			rec.Err = &generic.DependencyError{Month: m, FailedMonth: lastFailed}
		default:
			rec.Delta = due.Sub(granted).Sub(face.Total)
			rec.Reduction = face.WithDelta(rec.Delta)
		}

		if dueErr != nil {
			grantedKnown = false
			lastFailed = m
			continue
		}
		granted = due
		grantedKnown = true
	}
}

// reconcileAnnual leaves every month at face value and attributes the whole
// correction to the regularisation month:
//
//	delta(r) = due(0..r) − Σ face(0..r)
//
// Months after r keep a zero delta.
func reconcileAnnual(ctx context.Context, ev *Evaluator, s *YearState) {
	granted := generic.ZeroEuros()
	failed := false
	var firstFailed generic.Month

	for _, m := range generic.AllMonths() {
		rec := &s.Months[m]
		face, err := ev.EvaluateMonth(ctx, s, m)
		if err != nil {
			rec.Err = err
			if !failed && m <= s.RegularisationMonth {
				failed = true
				firstFailed = m
			}
			continue
		}
		rec.FaceValue = face
		rec.Reduction = face
		if m <= s.RegularisationMonth {
			granted = granted.Add(face.Total)
		}
	}

	r := s.RegularisationMonth
	rec := &s.Months[r]
	due, err := ev.EvaluateCumulative(ctx, s, r)
	if err == nil {
		rec.CumulativeDue = due
	}
	switch {
	case rec.Err != nil:
	case err != nil:
		rec.Err = err
	case failed:
		rec.Err = &generic.DependencyError{Month: r, FailedMonth: firstFailed}
	default:
		rec.Delta = due.Sub(granted)
		rec.Reduction = rec.FaceValue.WithDelta(rec.Delta)
	}
}
