package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reduction-engine/generic"
	"github.com/warp/reduction-engine/store/postgres"
)

func newMock(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return postgres.NewFromDB(db), mock
}

func snapshot(id string, savedAt time.Time) generic.YearSnapshot {
	snap := generic.YearSnapshot{
		ID:                  generic.SimulationID(id),
		Year:                2024,
		CompanySize:         "moins_de_50",
		RegularisationMode:  "progressive",
		RegularisationMonth: generic.December,
		DisplayMode:         generic.DisplayMonthByMonth,
		SavedAt:             savedAt,
	}
	for _, m := range generic.AllMonths() {
		snap.Months = append(snap.Months, generic.MonthSnapshot{
			Month:             m,
			GrossRemuneration: decimal.NewFromInt(1900),
		})
	}
	return snap
}

func TestStore_Save(t *testing.T) {
	// GIVEN: a valid snapshot
	store, mock := newMock(t)
	savedAt := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	snap := snapshot("sim-1", savedAt)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulations")).
		WithArgs("sim-1", 2024, "moins_de_50", "progressive", 11, "mois_par_mois", false, nil, savedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM simulation_months WHERE simulation_id = $1")).
		WithArgs("sim-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulation_months (simulation_id, month, gross_remuneration, options) VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)")).
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectCommit()

	// WHEN: it is saved
	err := store.Save(context.Background(), snap)

	// THEN: the simulation is upserted and the months replaced in one transaction
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveWritesBindingsAndPaidLeaveFund(t *testing.T) {
	// GIVEN: a snapshot carrying a decimal binding and the paid-leave fund
	store, mock := newMock(t)
	savedAt := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	snap := snapshot("sim-1", savedAt)
	snap.Bindings = map[string]any{"taux_at": decimal.RequireFromString("0.0123")}
	snap.PaidLeaveFund = true

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulations")).
		WithArgs("sim-1", 2024, "moins_de_50", "progressive", 11, "mois_par_mois", true, `{"taux_at":0.0123}`, savedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM simulation_months").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO simulation_months").WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectCommit()

	// WHEN: it is saved
	err := store.Save(context.Background(), snap)

	// THEN: the binding is a JSON number, not a quoted string
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveRollsBackOnMonthFailure(t *testing.T) {
	store, mock := newMock(t)
	snap := snapshot("sim-1", time.Now())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO simulations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM simulation_months").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO simulation_months").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), snap)

	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveRejectsInvalidSnapshot(t *testing.T) {
	store, mock := newMock(t)
	snap := snapshot("sim-1", time.Now())
	snap.Months[3].GrossRemuneration = decimal.NewFromInt(-1)

	err := store.Save(context.Background(), snap)

	assert.ErrorIs(t, err, generic.ErrInvalidSnapshot)
	assert.NoError(t, mock.ExpectationsWereMet(), "no statement reaches the database")
}

func TestStore_Load(t *testing.T) {
	// GIVEN: a stored simulation with bindings and one month option
	store, mock := newMock(t)
	savedAt := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM simulations WHERE id = $1")).
		WithArgs("sim-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "year", "company_size", "regularisation_mode",
			"regularisation_month", "display_mode", "paid_leave_fund", "bindings", "saved_at"}).
			AddRow("sim-1", 2024, "plus_de_50", "annuelle", 5, nil, true, []byte(`{"contrat":"cdi","taux":0.5}`), savedAt))

	months := sqlmock.NewRows([]string{"month", "gross_remuneration", "options"})
	for i := 0; i < 12; i++ {
		var options []byte
		if i == 4 {
			options = []byte(`{"heures_supplementaires":"28.15"}`)
		}
		months.AddRow(i, "1900.00", options)
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM simulation_months WHERE simulation_id = $1 ORDER BY month")).
		WithArgs("sim-1").
		WillReturnRows(months)

	// WHEN: it is loaded
	snap, err := store.Load(context.Background(), "sim-1")

	// THEN: the snapshot is rebuilt and structurally valid
	require.NoError(t, err)
	require.NoError(t, snap.Validate())
	assert.Equal(t, generic.June, snap.RegularisationMonth)
	assert.Equal(t, generic.DisplayMode(""), snap.DisplayMode)
	assert.True(t, snap.PaidLeaveFund)
	assert.Equal(t, "cdi", snap.Bindings["contrat"])
	assert.Equal(t, json.Number("0.5"), snap.Bindings["taux"])
	assert.True(t, snap.Months[4].Options["heures_supplementaires"].Equal(decimal.RequireFromString("28.15")))
	assert.True(t, snap.Months[11].GrossRemuneration.Equal(decimal.NewFromInt(1900)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("FROM simulations WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Load(context.Background(), "missing")

	assert.ErrorIs(t, err, generic.ErrSimulationNotFound)
}

func TestStore_List(t *testing.T) {
	store, mock := newMock(t)
	t0 := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY s.saved_at DESC, s.id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "year", "company_size", "regularisation_mode", "saved_at", "sum"}).
			AddRow("new", 2025, "moins_de_50", "progressive", t0.Add(time.Hour), "24000.00").
			AddRow("old", 2024, "moins_de_50", "annuelle", t0, "22800.00"))

	list, err := store.List(context.Background())

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, generic.SimulationID("new"), list[0].ID)
	assert.True(t, list[1].AnnualRemuneration.Equal(generic.Euros(22800)))
	assert.Equal(t, "annuelle", list[1].RegularisationMode)
}

func TestStore_Delete(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM simulations WHERE id = $1")).
		WithArgs("sim-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM simulations WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.Delete(context.Background(), "sim-1"))
	assert.ErrorIs(t, store.Delete(context.Background(), "missing"), generic.ErrSimulationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Migrate(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS simulations").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
