/*
handlers_test.go - HTTP tests for the simulation API

Tests for:
- Simulation lifecycle (create, edit, view, delete)
- Error mapping (400 / 404)
- Persistence (save, list, restore, snapshot import)
- Exports
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reduction-engine/generic"
	"github.com/warp/reduction-engine/observability/metrics"
	"github.com/warp/reduction-engine/rules"
	"github.com/warp/reduction-engine/store/sqlite"
)

type testServer struct {
	handler *Handler
	router  *chi.Mux
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine, err := rules.NewDefaultEngine()
	require.NoError(t, err)

	h := NewHandler(engine, store, nil, 2025)
	return &testServer{handler: h, router: NewRouter(h, []string{"*"})}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) ViewDTO {
	t.Helper()
	var v ViewDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// create opens a simulation with a uniform monthly remuneration.
func (s *testServer) create(t *testing.T, year int, monthly float64) ViewDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/simulations", CreateSimulationRequest{
		Year:                year,
		DisplayMode:         string(generic.DisplayMonthByMonth),
		MonthlyRemuneration: &monthly,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(t, rec)
}

func simPath(id string, suffix string) string {
	return "/api/simulations/" + id + suffix
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestCreateSimulation_UniformSalary(t *testing.T) {
	// GIVEN: a server
	s := setupTestServer(t)

	// WHEN: creating a 2025 simulation at 1900 € per month
	monthly := 1900.0
	rec := s.do(t, http.MethodPost, "/api/simulations", CreateSimulationRequest{MonthlyRemuneration: &monthly})

	// THEN: the monthly view shows the reference reduction
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, 2025, v.Year, "default year")
	assert.Equal(t, "mensuel", v.DisplayMode)
	assert.InDelta(t, 1900, v.Remuneration, 0.001)
	assert.InDelta(t, 523.26, v.Reduction.Total, 0.001)
	assert.InDelta(t, 98.46, v.Reduction.Retirement, 0.001)
	assert.InDelta(t, 424.80, v.Reduction.Urssaf, 0.001)
	assert.InDelta(t, 66.35, v.Reduction.Unemployment, 0.001)
	assert.Empty(t, v.Months, "months only in mois_par_mois")
}

func TestCreateSimulation_EmptyBody(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/simulations", nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, "moins_de_50", v.CompanySize)
	assert.Equal(t, "progressive", v.RegularisationMode)
	assert.Zero(t, v.Reduction.Total)
}

func TestCreateSimulation_InvalidCompanySize(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/simulations", CreateSimulationRequest{CompanySize: "enorme"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpikeInFebruary_ProgressiveRegularisation(t *testing.T) {
	// GIVEN: 2024 at 1900 € per month
	s := setupTestServer(t)
	sim := s.create(t, 2024, 1900)

	// WHEN: February becomes 3000 €, addressed by month name
	rec := s.do(t, http.MethodPut, simPath(sim.ID, "/months/f%C3%A9vrier/remuneration"), AmountRequest{Amount: 3000})

	// THEN: the spike is regularised month by month
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	require.Len(t, v.Months, 12)
	assert.InDelta(t, 3000, v.Months[1].GrossRemuneration, 0.001)
	assert.False(t, v.Months[1].FaceValue.Eligible)
	assert.InDelta(t, -92.12, v.Months[1].Delta, 0.001)
	assert.InDelta(t, -92.12, v.Months[1].Reduction.Total, 0.001)
	assert.InDelta(t, 493.57, v.Months[2].Reduction.Total, 0.001)
	assert.InDelta(t, 523.62, v.Months[11].Reduction.Total, 0.001)
	assert.InDelta(t, 0.36, v.Months[11].Delta, 0.001)
	assert.InDelta(t, 5396.62, v.Months[11].CumulativeDue, 0.001)
}

func TestGetSimulation_ModeQuery(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2025, 1900)

	rec := s.do(t, http.MethodGet, simPath(sim.ID, "?mode=annuel"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeView(t, rec)
	assert.Equal(t, "annuel", v.DisplayMode)
	assert.InDelta(t, 22800, v.Remuneration, 0.001)

	rec = s.do(t, http.MethodGet, simPath(sim.ID, "?mode=hebdomadaire"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the query doesn't change the simulation's own display mode
	rec = s.do(t, http.MethodGet, simPath(sim.ID, ""), nil)
	assert.Equal(t, "mois_par_mois", decodeView(t, rec).DisplayMode)
}

func TestAnnualRemuneration_Truncated(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2025, 0)

	rec := s.do(t, http.MethodPut, simPath(sim.ID, "/remuneration/annual"), AmountRequest{Amount: 23000})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.InDelta(t, 1916.66, v.Months[0].GrossRemuneration, 0.001)
	assert.InDelta(t, 22999.92, v.AnnualRemuneration, 0.001)
}

func TestCompanySize_Switch(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2025, 1900)

	rec := s.do(t, http.MethodPut, simPath(sim.ID, "/company-size"), CompanySizeRequest{CompanySize: "plus_de_50"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, "plus_de_50", v.CompanySize)
	assert.InDelta(t, 529.72, v.Months[0].Reduction.Total, 0.001)
}

func TestRegularisationMode_AnnualAndTrigger(t *testing.T) {
	// GIVEN: the February spike in 2024
	s := setupTestServer(t)
	sim := s.create(t, 2024, 1900)
	rec := s.do(t, http.MethodPut, simPath(sim.ID, "/months/1/remuneration"), AmountRequest{Amount: 3000})
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: switching to annual regularisation
	rec = s.do(t, http.MethodPut, simPath(sim.ID, "/regularisation"), ModeRequest{Mode: "annuelle"})

	// THEN: only December carries a delta
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	for i := 0; i < 11; i++ {
		assert.Zero(t, v.Months[i].Delta, "month %d", i)
	}
	assert.InDelta(t, -90.77, v.Months[11].Delta, 0.001)
	assert.InDelta(t, 432.49, v.Months[11].Reduction.Total, 0.001)

	// WHEN: the correction is triggered in June
	rec = s.do(t, http.MethodPost, simPath(sim.ID, "/regularisation/trigger"), TriggerRequest{Month: 5})

	// THEN: June absorbs the correction for January..June
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v = decodeView(t, rec)
	assert.Equal(t, 5, v.RegularisationMonth)
	assert.InDelta(t, -92.15, v.Months[5].Delta, 0.001)
	assert.InDelta(t, 401.28, v.Months[5].Reduction.Total, 0.001)
	assert.Zero(t, v.Months[11].Delta)
}

func TestMonthOptions_SetAndClear(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2024, 2100)

	rec := s.do(t, http.MethodPut, simPath(sim.ID, "/months/0/options/heures_supplementaires"), OptionRequest{Value: 28.15})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.InDelta(t, 28.15, v.Months[0].Options["heures_supplementaires"], 0.001)
	assert.InDelta(t, 666.33, v.Months[0].FaceValue.Total, 0.001)

	rec = s.do(t, http.MethodDelete, simPath(sim.ID, "/months/0/options/heures_supplementaires"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v = decodeView(t, rec)
	assert.Empty(t, v.Months[0].Options)
	assert.InDelta(t, 387.03, v.Months[0].FaceValue.Total, 0.001)
}

func TestPaidLeaveFund_AppliesToWholeYear(t *testing.T) {
	// GIVEN: a uniform 1900€ simulation in 2025
	s := setupTestServer(t)
	sim := s.create(t, 2025, 1900)

	// WHEN: the employer is affiliated to a caisse de congés payés
	rec := s.do(t, http.MethodPut, simPath(sim.ID, "/paid-leave-fund"), PaidLeaveFundRequest{Enabled: true})

	// THEN: every month carries the uplift without any clawback
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.True(t, v.PaidLeaveFund)
	for _, m := range v.Months {
		assert.InDelta(t, 581.40, m.Reduction.Total, 0.001, m.Name)
		assert.Zero(t, m.Delta, m.Name)
	}
}

func TestCeiling_ShownPerMonth(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2024, 1900)

	rec := s.do(t, http.MethodPut, simPath(sim.ID, "/months/1/remuneration"), AmountRequest{Amount: 3000})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.False(t, v.Months[1].FaceValue.Eligible)
	assert.InDelta(t, 2827.07, v.Months[1].FaceValue.Ceiling, 0.001)
	assert.InDelta(t, 2882.88, v.Months[11].FaceValue.Ceiling, 0.001)
}

func TestBinding_InternshipExcluded(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2025, 1900)

	rec := s.do(t, http.MethodPut, simPath(sim.ID, "/bindings"), BindingRequest{Key: "contrat", Value: "stage"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Zero(t, v.Reduction.Total)
	assert.False(t, v.Months[0].Reduction.Eligible)
	assert.Empty(t, v.Errors, "inapplicable is not a failure")
}

func TestSetYear_UnsupportedYearCarriedByView(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2025, 1900)

	rec := s.do(t, http.MethodPut, simPath(sim.ID, "/year"), YearRequest{Year: 1999})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Len(t, v.FailedMonths, 12)
	assert.NotEmpty(t, v.Errors)
	assert.NotEmpty(t, v.Months[0].Error)
}

func TestSetDisplayMode(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2025, 1900)

	rec := s.do(t, http.MethodPut, simPath(sim.ID, "/display-mode"), DisplayModeRequest{DisplayMode: "annuel"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, "annuel", v.DisplayMode)
	assert.InDelta(t, 6279.12, v.Reduction.Total, 0.001)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestEdit_Errors(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2025, 1900)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"month out of range", http.MethodPut, simPath(sim.ID, "/months/12/remuneration"), AmountRequest{Amount: 1}, http.StatusBadRequest},
		{"month not a number", http.MethodPut, simPath(sim.ID, "/months/trois/remuneration"), AmountRequest{Amount: 1}, http.StatusBadRequest},
		{"negative amount", http.MethodPut, simPath(sim.ID, "/months/0/remuneration"), AmountRequest{Amount: -1}, http.StatusBadRequest},
		{"unknown option", http.MethodPut, simPath(sim.ID, "/months/0/options/prime"), OptionRequest{Value: 1}, http.StatusBadRequest},
		{"paid leave fund is not a month option", http.MethodPut, simPath(sim.ID, "/months/0/options/caisse_conges_payes"), OptionRequest{Value: 1}, http.StatusBadRequest},
		{"negative overtime", http.MethodPut, simPath(sim.ID, "/months/0/options/heures_supplementaires"), OptionRequest{Value: -2}, http.StatusBadRequest},
		{"malformed body", http.MethodPut, simPath(sim.ID, "/remuneration/monthly"), "{", http.StatusBadRequest},
		{"unknown mode", http.MethodPut, simPath(sim.ID, "/regularisation"), ModeRequest{Mode: "trimestrielle"}, http.StatusBadRequest},
		{"trigger out of range", http.MethodPost, simPath(sim.ID, "/regularisation/trigger"), TriggerRequest{Month: -1}, http.StatusBadRequest},
		{"reserved binding", http.MethodPut, simPath(sim.ID, "/bindings"), BindingRequest{Key: "remuneration_brute", Value: 1}, http.StatusBadRequest},
		{"unknown simulation", http.MethodPut, simPath("missing", "/remuneration/monthly"), AmountRequest{Amount: 1}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}

	// THEN: no rejected edit changed the simulation
	v := decodeView(t, s.do(t, http.MethodGet, simPath(sim.ID, ""), nil))
	for _, m := range v.Months {
		assert.InDelta(t, 1900, m.GrossRemuneration, 0.001)
		assert.Empty(t, m.Options)
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(generic.ErrSimulationNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(&generic.IndexOutOfRangeError{Index: 12}))
	assert.Equal(t, http.StatusBadRequest, statusFor(generic.ErrInvalidSnapshot))
	assert.Equal(t, http.StatusBadGateway, statusFor(generic.ErrPortUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestSaveListRestoreDelete(t *testing.T) {
	// GIVEN: a 2024 simulation with the February spike, saved
	s := setupTestServer(t)
	sim := s.create(t, 2024, 1900)
	s.do(t, http.MethodPut, simPath(sim.ID, "/months/1/remuneration"), AmountRequest{Amount: 3000})

	rec := s.do(t, http.MethodPost, simPath(sim.ID, "/save"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/saved", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var saved []SummaryDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	require.Len(t, saved, 1)
	assert.Equal(t, sim.ID, saved[0].ID)
	assert.InDelta(t, 23900, saved[0].AnnualRemuneration, 0.001)

	// WHEN: the simulation is closed and restored from storage
	rec = s.do(t, http.MethodDelete, simPath(sim.ID, ""), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/saved", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Empty(t, saved, "closing a simulation deletes its saved copy")

	rec = s.do(t, http.MethodPost, "/api/saved/"+sim.ID+"/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, simPath(sim.ID, ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestoreSaved_RecomputesDerivedValues(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2024, 1900)
	s.do(t, http.MethodPut, simPath(sim.ID, "/months/1/remuneration"), AmountRequest{Amount: 3000})
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, simPath(sim.ID, "/save"), nil).Code)

	// WHEN: the open copy is edited, then the saved one restored
	s.do(t, http.MethodPut, simPath(sim.ID, "/remuneration/monthly"), AmountRequest{Amount: 2500})
	rec := s.do(t, http.MethodPost, "/api/saved/"+sim.ID+"/restore", nil)

	// THEN: the saved inputs come back with their reconciled reductions
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, sim.ID, v.ID)
	assert.Equal(t, "mois_par_mois", v.DisplayMode)
	assert.InDelta(t, -92.12, v.Months[1].Delta, 0.001)
	assert.InDelta(t, 523.62, v.Months[11].Reduction.Total, 0.001)

	rec = s.do(t, http.MethodDelete, "/api/saved/"+sim.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/saved/"+sim.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestoreSnapshot(t *testing.T) {
	s := setupTestServer(t)
	snap := generic.YearSnapshot{
		ID:                  "ignored",
		Year:                2025,
		CompanySize:         "plus_de_50",
		RegularisationMode:  "progressive",
		RegularisationMonth: generic.December,
		SavedAt:             time.Now(),
	}
	for _, m := range generic.AllMonths() {
		snap.Months = append(snap.Months, generic.MonthSnapshot{Month: m, GrossRemuneration: decimal.NewFromInt(1900)})
	}
	data, err := generic.EncodeSnapshot(snap)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/restore", data)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.NotEqual(t, "ignored", v.ID)
	assert.InDelta(t, 529.72, v.Reduction.Total, 0.001)

	snap.Months = snap.Months[:11]
	data, err = generic.EncodeSnapshot(snap)
	require.NoError(t, err)
	rec = s.do(t, http.MethodPost, "/api/restore", data)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// EXPORT AND MISC
// =============================================================================

func TestExportSimulation(t *testing.T) {
	s := setupTestServer(t)
	sim := s.create(t, 2024, 1900)

	rec := s.do(t, http.MethodGet, simPath(sim.ID, "/export?format=xlsx"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "reduction-2024-")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip")

	rec = s.do(t, http.MethodGet, simPath(sim.ID, "/export?format=pdf"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = s.do(t, http.MethodGet, simPath(sim.ID, "/export?format=csv"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOptions(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/options", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var options []OptionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &options))
	require.Len(t, options, 1)
	assert.Equal(t, "heures_supplementaires", options[0].Key)
}

func TestListSimulations(t *testing.T) {
	s := setupTestServer(t)
	a := s.create(t, 2024, 1900)
	b := s.create(t, 2025, 2000)

	rec := s.do(t, http.MethodGet, "/api/simulations", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var sims []SimulationDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sims))
	require.Len(t, sims, 2)
	ids := []string{sims[0].ID, sims[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Init()
	s := setupTestServer(t)
	s.create(t, 2025, 1900)

	rec := s.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reduction_recompute_total")
}
