/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario opens a simulation with the expected inputs
	and reconciled reductions, so scenarios double as end-to-end checks.
*/
package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, s *testServer, id string, year int) ViewDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id, Year: year})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(t, rec)
}

func TestScenarios_AllLoad(t *testing.T) {
	// GIVEN: every listed scenario
	s := setupTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ScenarioDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, len(scenarioLoaders))

	for _, sc := range list {
		t.Run(sc.ID, func(t *testing.T) {
			// WHEN: loading it
			v := loadScenario(t, s, sc.ID, 0)

			// THEN: a complete month-by-month simulation is opened
			assert.Equal(t, 2025, v.Year)
			assert.Equal(t, "mois_par_mois", v.DisplayMode)
			assert.Len(t, v.Months, 12)
			assert.Empty(t, v.Errors)
		})
	}
}

func TestScenario_Uniform(t *testing.T) {
	s := setupTestServer(t)

	v := loadScenario(t, s, "uniforme-1900", 2025)

	for _, m := range v.Months {
		assert.InDelta(t, 523.26, m.FaceValue.Total, 0.001, m.Name)
	}
	assert.InDelta(t, 6279.12, v.Months[11].CumulativeDue, 0.001)
}

func TestScenario_LargeCompany(t *testing.T) {
	s := setupTestServer(t)

	v := loadScenario(t, s, "grande-entreprise", 2025)

	assert.Equal(t, "plus_de_50", v.CompanySize)
	assert.InDelta(t, 529.72, v.Months[0].Reduction.Total, 0.001)
}

func TestScenario_SpikeProgressive(t *testing.T) {
	s := setupTestServer(t)

	v := loadScenario(t, s, "pic-fevrier", 2024)

	assert.InDelta(t, 493.43, v.Months[0].Reduction.Total, 0.001)
	assert.InDelta(t, -92.12, v.Months[1].Reduction.Total, 0.001)
	assert.InDelta(t, 493.57, v.Months[2].Reduction.Total, 0.001)
	assert.InDelta(t, 523.62, v.Months[11].Reduction.Total, 0.001)
}

func TestScenario_SpikeAnnual(t *testing.T) {
	s := setupTestServer(t)

	v := loadScenario(t, s, "pic-fevrier-annuelle", 2024)

	assert.Equal(t, "annuelle", v.RegularisationMode)
	assert.Zero(t, v.Months[1].Delta, "the spike month keeps its face value")
	assert.InDelta(t, -90.77, v.Months[11].Delta, 0.001)
}

func TestScenario_Overtime(t *testing.T) {
	s := setupTestServer(t)

	v := loadScenario(t, s, "heures-supplementaires", 2024)

	assert.InDelta(t, 28.15, v.Months[0].Options["heures_supplementaires"], 0.001)
	assert.InDelta(t, 666.33, v.Months[0].Reduction.Total, 0.001)
}

func TestScenario_PaidLeaveFund(t *testing.T) {
	s := setupTestServer(t)

	v := loadScenario(t, s, "caisse-conges-payes", 2025)

	assert.True(t, v.PaidLeaveFund)
	assert.InDelta(t, 581.40, v.Months[0].Reduction.Total, 0.001)
	assert.InDelta(t, 6976.80, v.Months[11].CumulativeDue, 0.001)
}

func TestScenario_Intern(t *testing.T) {
	s := setupTestServer(t)

	v := loadScenario(t, s, "stagiaire", 2025)

	for _, m := range v.Months {
		assert.False(t, m.Reduction.Eligible, m.Name)
		assert.Zero(t, m.Reduction.Total, m.Name)
	}
}

func TestScenario_UnknownAndCurrentAndReset(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "inconnu"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())

	loadScenario(t, s, "pic-fevrier", 2024)
	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	var current ScenarioDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.Equal(t, "pic-fevrier", current.ID)

	// WHEN: resetting
	rec = s.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: no simulation stays open
	rec = s.do(t, http.MethodGet, "/api/simulations", nil)
	var sims []SimulationDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sims))
	assert.Empty(t, sims)
}
