/*
handlers.go - HTTP API handlers for the réduction générale simulator

PURPOSE:
  Exposes simulation years via REST API. Each open simulation is one
  reduction.Orchestrator held in memory; handlers parse the request,
  delegate to the orchestrator and serialize the resulting view.

ENDPOINTS:
  Simulations:
    GET    /api/simulations                       List open simulations
    POST   /api/simulations                       Create a simulation
    GET    /api/simulations/{id}?mode=            View (mensuel|annuel|mois_par_mois)
    DELETE /api/simulations/{id}                  Close (and delete if saved)

  Edits (all return the reconciled view):
    PUT    /api/simulations/{id}/months/{month}/remuneration
    PUT    /api/simulations/{id}/months/{month}/options/{key}
    DELETE /api/simulations/{id}/months/{month}/options/{key}
    PUT    /api/simulations/{id}/remuneration/monthly
    PUT    /api/simulations/{id}/remuneration/annual
    PUT    /api/simulations/{id}/company-size
    PUT    /api/simulations/{id}/paid-leave-fund
    PUT    /api/simulations/{id}/regularisation
    POST   /api/simulations/{id}/regularisation/trigger
    PUT    /api/simulations/{id}/bindings
    PUT    /api/simulations/{id}/year
    PUT    /api/simulations/{id}/display-mode

  Persistence:
    POST   /api/simulations/{id}/save             Persist inputs
    GET    /api/simulations/{id}/export?format=   XLSX or PDF download
    GET    /api/saved                             List saved simulations
    POST   /api/saved/{id}/restore                Reopen a saved simulation
    DELETE /api/saved/{id}                        Delete a saved simulation
    POST   /api/restore                           Open a simulation from snapshot JSON

REQUEST FLOW:
  1. Parse HTTP request
  2. Look up the simulation
  3. Call the orchestrator (validation, reconciliation)
  4. Serialize the view

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, month out of range, invalid snapshot
  - 404: Simulation not found
  - 502: Rule evaluation port failure
  - 500: Internal errors
  A month the port failed on does not fail the request: the view carries
  the month's error next to every month that did compute.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/reduction-engine/export"
	"github.com/warp/reduction-engine/generic"
	"github.com/warp/reduction-engine/observability/metrics"
	"github.com/warp/reduction-engine/reduction"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Port        generic.RuleEvaluator
	Store       generic.YearStore
	Logger      *slog.Logger
	DefaultYear int

	// now is replaced in tests.
	now func() time.Time

	mu       sync.RWMutex
	sessions map[generic.SimulationID]*session

	// Track currently loaded scenario
	currentScenario string
}

// session is one open simulation.
type session struct {
	orch     *reduction.Orchestrator
	lastUsed time.Time
}

// NewHandler creates a new handler. logger may be nil.
func NewHandler(port generic.RuleEvaluator, store generic.YearStore, logger *slog.Logger, defaultYear int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Port:        port,
		Store:       store,
		Logger:      logger,
		DefaultYear: defaultYear,
		now:         time.Now,
		sessions:    make(map[generic.SimulationID]*session),
	}
}

func (h *Handler) newOrchestrator(ctx context.Context, year int, display generic.DisplayMode) *reduction.Orchestrator {
	return reduction.NewOrchestrator(ctx, h.Port, year,
		reduction.WithLogger(h.Logger),
		reduction.WithDisplayMode(display))
}

// open registers an orchestrator under id.
func (h *Handler) open(id generic.SimulationID, o *reduction.Orchestrator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[id] = &session{orch: o, lastUsed: h.now()}
	metrics.SetSimulationsActive(len(h.sessions))
}

// lookup returns the orchestrator for id and marks it used.
func (h *Handler) lookup(id generic.SimulationID) (*reduction.Orchestrator, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		return nil, false
	}
	s.lastUsed = h.now()
	return s.orch, true
}

func (h *Handler) close(id generic.SimulationID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[id]; !ok {
		return false
	}
	delete(h.sessions, id)
	metrics.SetSimulationsActive(len(h.sessions))
	return true
}

// EvictIdle closes simulations unused since before cutoff and returns their IDs.
func (h *Handler) EvictIdle(cutoff time.Time) []generic.SimulationID {
	h.mu.Lock()
	defer h.mu.Unlock()
	var evicted []generic.SimulationID
	for id, s := range h.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(h.sessions, id)
			evicted = append(evicted, id)
		}
	}
	metrics.SetSimulationsActive(len(h.sessions))
	return evicted
}

// =============================================================================
// SIMULATION HANDLERS
// =============================================================================

// ListSimulations returns the open simulations.
// GET /api/simulations
func (h *Handler) ListSimulations(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	dtos := make([]SimulationDTO, 0, len(h.sessions))
	for id, s := range h.sessions {
		v := s.orch.CurrentView()
		dtos = append(dtos, SimulationDTO{
			ID:                 string(id),
			Year:               v.Year,
			CompanySize:        string(v.CompanySize),
			RegularisationMode: string(v.RegularisationMode),
			DisplayMode:        string(v.DisplayMode),
			AnnualRemuneration: v.AnnualRemuneration.Float64(),
			LastUsed:           s.lastUsed,
		})
	}
	h.mu.RUnlock()

	sort.Slice(dtos, func(i, j int) bool { return dtos[i].ID < dtos[j].ID })
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSimulation opens a new simulation.
// POST /api/simulations
func (h *Handler) CreateSimulation(w http.ResponseWriter, r *http.Request) {
	var req CreateSimulationRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ctx := r.Context()

	year := req.Year
	if year == 0 {
		year = h.DefaultYear
	}
	display := generic.DisplayMonthly
	if req.DisplayMode != "" {
		d, err := generic.ParseDisplayMode(req.DisplayMode)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		display = d
	}

	o := h.newOrchestrator(ctx, year, display)
	if err := applyCreateRequest(ctx, o, req); err != nil {
		writeDomainError(w, err)
		return
	}

	id := generic.SimulationID(uuid.NewString())
	h.open(id, o)
	h.Logger.Info("simulation created", "simulation", id, "year", year)
	writeJSON(w, http.StatusCreated, toViewDTO(id, o.CurrentView()))
}

func applyCreateRequest(ctx context.Context, o *reduction.Orchestrator, req CreateSimulationRequest) error {
	if req.CompanySize != "" {
		size, err := reduction.ParseCompanySize(req.CompanySize)
		if err != nil {
			return err
		}
		if _, err := o.SetCompanySize(ctx, size); err != nil {
			return err
		}
	}
	if req.RegularisationMode != "" {
		mode, err := reduction.ParseRegularisationMode(req.RegularisationMode)
		if err != nil {
			return err
		}
		if _, err := o.SetRegularisationMode(ctx, mode); err != nil {
			return err
		}
	}
	if req.PaidLeaveFund {
		if _, err := o.SetPaidLeaveFund(ctx, true); err != nil {
			return err
		}
	}
	if req.MonthlyRemuneration != nil {
		amount, err := toDecimal(*req.MonthlyRemuneration)
		if err != nil {
			return err
		}
		if _, err := o.SetMonthlyRemuneration(ctx, amount); err != nil {
			return err
		}
	}
	return nil
}

// GetSimulation returns the simulation view, in the display mode given by
// ?mode= or the simulation's current one.
// GET /api/simulations/{id}
func (h *Handler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	id, o, ok := h.simulation(w, r)
	if !ok {
		return
	}
	view := o.CurrentView()
	if raw := r.URL.Query().Get("mode"); raw != "" {
		mode, err := generic.ParseDisplayMode(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if view, err = o.View(mode); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toViewDTO(id, view))
}

// DeleteSimulation closes an open simulation and removes its saved copy.
// DELETE /api/simulations/{id}
func (h *Handler) DeleteSimulation(w http.ResponseWriter, r *http.Request) {
	id := generic.SimulationID(chi.URLParam(r, "id"))
	closed := h.close(id)

	err := h.Store.Delete(r.Context(), id)
	if err != nil && !(generic.IsNotFound(err) && closed) {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EDIT HANDLERS
// =============================================================================

// SetMonthRemuneration sets one month's gross remuneration.
// PUT /api/simulations/{id}/months/{month}/remuneration
func (h *Handler) SetMonthRemuneration(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	h.edit(w, r, &req, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		month, err := monthParam(r)
		if err != nil {
			return reduction.View{}, err
		}
		amount, err := toDecimal(req.Amount)
		if err != nil {
			return reduction.View{}, err
		}
		return o.SetMonthRemuneration(ctx, month, amount)
	})
}

// SetMonthOption sets an option override on one month.
// PUT /api/simulations/{id}/months/{month}/options/{key}
func (h *Handler) SetMonthOption(w http.ResponseWriter, r *http.Request) {
	var req OptionRequest
	h.edit(w, r, &req, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		month, err := monthParam(r)
		if err != nil {
			return reduction.View{}, err
		}
		value, err := toDecimal(req.Value)
		if err != nil {
			return reduction.View{}, err
		}
		return o.SetMonthOption(ctx, month, chi.URLParam(r, "key"), value)
	})
}

// ClearMonthOption removes an option override from one month.
// DELETE /api/simulations/{id}/months/{month}/options/{key}
func (h *Handler) ClearMonthOption(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, nil, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		month, err := monthParam(r)
		if err != nil {
			return reduction.View{}, err
		}
		return o.ClearMonthOption(ctx, month, chi.URLParam(r, "key"))
	})
}

// SetMonthlyRemuneration writes the same amount into every month.
// PUT /api/simulations/{id}/remuneration/monthly
func (h *Handler) SetMonthlyRemuneration(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	h.edit(w, r, &req, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		amount, err := toDecimal(req.Amount)
		if err != nil {
			return reduction.View{}, err
		}
		return o.SetMonthlyRemuneration(ctx, amount)
	})
}

// SetAnnualRemuneration spreads an annual amount over the twelve months.
// PUT /api/simulations/{id}/remuneration/annual
func (h *Handler) SetAnnualRemuneration(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	h.edit(w, r, &req, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		amount, err := toDecimal(req.Amount)
		if err != nil {
			return reduction.View{}, err
		}
		return o.SetAnnualRemuneration(ctx, amount)
	})
}

// SetCompanySize switches the headcount band.
// PUT /api/simulations/{id}/company-size
func (h *Handler) SetCompanySize(w http.ResponseWriter, r *http.Request) {
	var req CompanySizeRequest
	h.edit(w, r, &req, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		size, err := reduction.ParseCompanySize(req.CompanySize)
		if err != nil {
			return reduction.View{}, err
		}
		return o.SetCompanySize(ctx, size)
	})
}

// SetPaidLeaveFund sets the caisse de congés payés affiliation for the year.
// PUT /api/simulations/{id}/paid-leave-fund
func (h *Handler) SetPaidLeaveFund(w http.ResponseWriter, r *http.Request) {
	var req PaidLeaveFundRequest
	h.edit(w, r, &req, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		return o.SetPaidLeaveFund(ctx, req.Enabled)
	})
}

// SetRegularisationMode switches between progressive and annual.
// PUT /api/simulations/{id}/regularisation
func (h *Handler) SetRegularisationMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	h.edit(w, r, &req, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		mode, err := reduction.ParseRegularisationMode(req.Mode)
		if err != nil {
			return reduction.View{}, err
		}
		return o.SetRegularisationMode(ctx, mode)
	})
}

// TriggerAnnualRegularisation moves the annual correction to a month.
// POST /api/simulations/{id}/regularisation/trigger
func (h *Handler) TriggerAnnualRegularisation(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	h.edit(w, r, &req, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		return o.TriggerAnnualRegularisation(ctx, req.Month)
	})
}

// SetBinding sets a year-wide rule input such as the contract type.
// PUT /api/simulations/{id}/bindings
func (h *Handler) SetBinding(w http.ResponseWriter, r *http.Request) {
	var req BindingRequest
	h.edit(w, r, &req, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		return o.SetBinding(ctx, req.Key, req.Value)
	})
}

// SetYear changes the simulated year; every month is re-evaluated.
// PUT /api/simulations/{id}/year
func (h *Handler) SetYear(w http.ResponseWriter, r *http.Request) {
	var req YearRequest
	h.edit(w, r, &req, func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		return o.SetYear(ctx, req.Year)
	})
}

// SetDisplayMode switches the projection without touching stored values.
// PUT /api/simulations/{id}/display-mode
func (h *Handler) SetDisplayMode(w http.ResponseWriter, r *http.Request) {
	var req DisplayModeRequest
	h.edit(w, r, &req, func(_ context.Context, o *reduction.Orchestrator) (reduction.View, error) {
		mode, err := generic.ParseDisplayMode(req.DisplayMode)
		if err != nil {
			return reduction.View{}, err
		}
		return o.SetDisplayMode(mode)
	})
}

// edit decodes the body into req (when non-nil), runs fn against the
// simulation and writes the resulting view.
func (h *Handler) edit(w http.ResponseWriter, r *http.Request, req any,
	fn func(ctx context.Context, o *reduction.Orchestrator) (reduction.View, error)) {
	id, o, ok := h.simulation(w, r)
	if !ok {
		return
	}
	if req != nil {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	view, err := fn(r.Context(), o)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(id, view))
}

// =============================================================================
// PERSISTENCE HANDLERS
// =============================================================================

// SaveSimulation persists the simulation inputs under its ID.
// POST /api/simulations/{id}/save
func (h *Handler) SaveSimulation(w http.ResponseWriter, r *http.Request) {
	id, o, ok := h.simulation(w, r)
	if !ok {
		return
	}
	snap := o.Snapshot(id)
	if err := h.Store.Save(r.Context(), snap); err != nil {
		h.Logger.Error("save failed", "simulation", id, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(snap.Summary()))
}

// ExportSimulation renders the month-by-month view as a file.
// GET /api/simulations/{id}/export?format=xlsx|pdf
func (h *Handler) ExportSimulation(w http.ResponseWriter, r *http.Request) {
	id, o, ok := h.simulation(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(export.FormatXLSX)
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view, err := o.View(generic.DisplayMonthByMonth)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	data, err := export.Render(format, view)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render export", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="reduction-%d-%s.%s"`, view.Year, id, format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ListSaved returns stored simulations, newest first.
// GET /api/saved
func (h *Handler) ListSaved(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Store.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]SummaryDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RestoreSaved reopens a stored simulation under its own ID. Derived
// values are recomputed; nothing but inputs is read from storage.
// POST /api/saved/{id}/restore
func (h *Handler) RestoreSaved(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.SimulationID(chi.URLParam(r, "id"))
	snap, err := h.Store.Load(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.restore(w, r, id, snap)
}

// DeleteSaved removes a stored simulation. An open copy stays open.
// DELETE /api/saved/{id}
func (h *Handler) DeleteSaved(w http.ResponseWriter, r *http.Request) {
	id := generic.SimulationID(chi.URLParam(r, "id"))
	if err := h.Store.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreSnapshot opens a simulation from a snapshot document. The
// snapshot's own ID is ignored; a fresh one is assigned.
// POST /api/restore
func (h *Handler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	snap, err := generic.DecodeSnapshot(data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.restore(w, r, generic.SimulationID(uuid.NewString()), snap)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request, id generic.SimulationID, snap generic.YearSnapshot) {
	ctx := r.Context()
	o := h.newOrchestrator(ctx, snap.Year, snap.DisplayMode)
	view, err := o.Restore(ctx, snap)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.open(id, o)
	h.Logger.Info("simulation restored", "simulation", id, "year", snap.Year)
	writeJSON(w, http.StatusOK, toViewDTO(id, view))
}

// ListOptions returns the month option overrides that can be set.
// GET /api/options
func (h *Handler) ListOptions(w http.ResponseWriter, r *http.Request) {
	defs := reduction.ListOptions()
	dtos := make([]OptionDTO, len(defs))
	for i, d := range defs {
		dtos[i] = OptionDTO{Key: string(d.Key), Description: d.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// simulation resolves {id}, writing a 404 when it isn't open.
func (h *Handler) simulation(w http.ResponseWriter, r *http.Request) (generic.SimulationID, *reduction.Orchestrator, bool) {
	id := generic.SimulationID(chi.URLParam(r, "id"))
	o, ok := h.lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Simulation not found", generic.ErrSimulationNotFound)
		return id, nil, false
	}
	return id, o, true
}

func monthParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "month")
	month, err := strconv.Atoi(raw)
	if err != nil {
		if m, ok := generic.MonthByName(raw); ok {
			return int(m), nil
		}
		return 0, &generic.InvalidInputError{Field: "month", Reason: fmt.Sprintf("not a month: %q", raw)}
	}
	return month, nil
}

// decodeOptionalBody accepts an empty body as the zero request.
func decodeOptionalBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsPortFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	writeError(w, status, http.StatusText(status), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
