/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built simulations that demonstrate the reconciliation
	behavior. Each scenario opens a new simulation, writes its inputs
	through the orchestrator, and leaves it open for further edits.

AVAILABLE SCENARIOS:

	uniforme-1900:           1900 € every month, up to 50 employees
	grande-entreprise:       Same salary above 50 employees (higher rate)
	pic-fevrier:             A 3000 € February spike, progressive regularisation
	pic-fevrier-annuelle:    The same spike absorbed by the December correction
	heures-supplementaires:  2100 € with overtime hours raising the SMIC reference
	caisse-conges-payes:     1900 € for an employer affiliated to a paid-leave fund
	stagiaire:               Internship contract, reduction inapplicable

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "pic-fevrier", "year": 2024}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add a loader to 'scenarioLoaders'

SEE ALSO:
  - handlers.go: Simulation lifecycle handlers
  - reduction/orchestrator.go: The edits loaders perform
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/reduction-engine/generic"
	"github.com/warp/reduction-engine/observability/metrics"
	"github.com/warp/reduction-engine/reduction"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "uniforme-1900",
		Name:        "Salaire uniforme",
		Description: "1900 € brut chaque mois, moins de 50 salariés",
		Category:    "mensuel",
	},
	{
		ID:          "grande-entreprise",
		Name:        "Grande entreprise",
		Description: "1900 € brut chaque mois, 50 salariés et plus",
		Category:    "mensuel",
	},
	{
		ID:          "pic-fevrier",
		Name:        "Prime en février",
		Description: "3000 € en février, 1900 € sinon, régularisation progressive",
		Category:    "regularisation",
	},
	{
		ID:          "pic-fevrier-annuelle",
		Name:        "Prime en février, régularisation annuelle",
		Description: "3000 € en février, 1900 € sinon, correction portée en décembre",
		Category:    "regularisation",
	},
	{
		ID:          "heures-supplementaires",
		Name:        "Heures supplémentaires",
		Description: "2100 € brut et 28,15 heures supplémentaires chaque mois",
		Category:    "options",
	},
	{
		ID:          "caisse-conges-payes",
		Name:        "Caisse de congés payés",
		Description: "1900 € brut chaque mois, employeur affilié à une caisse de congés payés",
		Category:    "options",
	},
	{
		ID:          "stagiaire",
		Name:        "Stagiaire",
		Description: "Contrat de stage, réduction non applicable",
		Category:    "exclusion",
	},
}

type scenarioLoader func(ctx context.Context, o *reduction.Orchestrator) error

var scenarioLoaders = map[string]scenarioLoader{
	"uniforme-1900":          loadUniformScenario,
	"grande-entreprise":      loadLargeCompanyScenario,
	"pic-fevrier":            loadSpikeScenario,
	"pic-fevrier-annuelle":   loadAnnualSpikeScenario,
	"heures-supplementaires": loadOvertimeScenario,
	"caisse-conges-payes":    loadPaidLeaveFundScenario,
	"stagiaire":              loadInternScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario opens a new simulation populated by a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	year := req.Year
	if year == 0 {
		year = h.DefaultYear
	}
	o := h.newOrchestrator(ctx, year, generic.DisplayMonthByMonth)
	if err := load(ctx, o); err != nil {
		writeDomainError(w, err)
		return
	}

	id := generic.SimulationID(uuid.NewString())
	h.open(id, o)
	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID, "simulation", id, "year", year)
	writeJSON(w, http.StatusCreated, toViewDTO(id, o.CurrentView()))
}

// Reset closes every open simulation and, when the store supports it,
// clears stored ones. For demos and tests only.
// POST /api/scenarios/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if resetter, ok := h.Store.(interface{ Reset(context.Context) error }); ok {
		if err := resetter.Reset(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
			return
		}
	}

	h.mu.Lock()
	h.sessions = make(map[generic.SimulationID]*session)
	h.currentScenario = ""
	h.mu.Unlock()
	metrics.SetSimulationsActive(0)

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadUniformScenario(ctx context.Context, o *reduction.Orchestrator) error {
	_, err := o.SetMonthlyRemuneration(ctx, decimal.NewFromInt(1900))
	return err
}

func loadLargeCompanyScenario(ctx context.Context, o *reduction.Orchestrator) error {
	if _, err := o.SetCompanySize(ctx, reduction.SizeOver50); err != nil {
		return err
	}
	return loadUniformScenario(ctx, o)
}

func loadSpikeScenario(ctx context.Context, o *reduction.Orchestrator) error {
	if err := loadUniformScenario(ctx, o); err != nil {
		return err
	}
	_, err := o.SetMonthRemuneration(ctx, int(generic.February), decimal.NewFromInt(3000))
	return err
}

func loadAnnualSpikeScenario(ctx context.Context, o *reduction.Orchestrator) error {
	if _, err := o.SetRegularisationMode(ctx, reduction.ModeAnnual); err != nil {
		return err
	}
	return loadSpikeScenario(ctx, o)
}

func loadOvertimeScenario(ctx context.Context, o *reduction.Orchestrator) error {
	if _, err := o.SetMonthlyRemuneration(ctx, decimal.NewFromInt(2100)); err != nil {
		return err
	}
	hours := decimal.RequireFromString("28.15")
	for _, m := range generic.AllMonths() {
		if _, err := o.SetMonthOption(ctx, int(m), string(reduction.OptionOvertimeHours), hours); err != nil {
			return err
		}
	}
	return nil
}

func loadPaidLeaveFundScenario(ctx context.Context, o *reduction.Orchestrator) error {
	if _, err := o.SetPaidLeaveFund(ctx, true); err != nil {
		return err
	}
	return loadUniformScenario(ctx, o)
}

func loadInternScenario(ctx context.Context, o *reduction.Orchestrator) error {
	if _, err := o.SetBinding(ctx, "contrat", "stage"); err != nil {
		return err
	}
	return loadUniformScenario(ctx, o)
}
