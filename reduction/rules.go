package reduction

import "github.com/warp/reduction-engine/generic"

// =============================================================================
// RULE IDENTIFIERS - Contract with the rule evaluation port
// =============================================================================

// Targets asked of the port.
const (
	RuleReduction           generic.RuleID = "reduction_generale"
	RuleRetirementShare     generic.RuleID = "reduction_generale.part_retraite"
	RuleUrssafShare         generic.RuleID = "reduction_generale.part_urssaf"
	RuleUnemploymentShare   generic.RuleID = "reduction_generale.part_chomage"
	RuleCumulativeReduction generic.RuleID = "reduction_generale.cumulee"
	RuleCoefficient         generic.RuleID = "reduction_generale.coefficient"
	RuleCeiling             generic.RuleID = "reduction_generale.plafond"
)

// Situation inputs bound by the evaluator.
const (
	// Gross remuneration of the evaluated period (one month, or the
	// cumulative total for RuleCumulativeReduction).
	InputGrossRemuneration generic.RuleID = "remuneration_brute"

	// Company headcount; the port derives the rate band from it.
	InputHeadcount generic.RuleID = "entreprise.effectif"

	InputYear       generic.RuleID = "periode.annee"
	InputFirstMonth generic.RuleID = "periode.mois"
	InputMonthCount generic.RuleID = "periode.nombre_mois"

	// decimal.Decimal for one month, []decimal.Decimal (one per month of the
	// period) for cumulative targets.
	InputOvertimeHours generic.RuleID = "heures_supplementaires"

	InputPaidLeaveFund generic.RuleID = "caisse_conges_payes"
)

// breakdownRules are the sub-components asked for once the total applies.
var breakdownRules = []generic.RuleID{
	RuleRetirementShare,
	RuleUrssafShare,
	RuleUnemploymentShare,
}
