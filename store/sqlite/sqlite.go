/*
Package sqlite provides a SQLite-backed implementation of generic.YearStore.

PURPOSE:
  Persists the inputs of simulation years so a simulation survives a
  restart. Only inputs are stored; reductions and regularisation deltas are
  recomputed by a full reconciliation pass on every restore.

KEY TABLES:
  simulations:       One row per simulation (year-wide parameters)
  simulation_months: Twelve rows per simulation (remuneration, options)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL, database-level
  concurrency control handles this instead (see store/postgres).

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/reduction.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - generic/store.go: Interface definition
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/reduction-engine/generic"
	"github.com/warp/reduction-engine/observability/metrics"
)

const driverName = "sqlite"

// Store implements generic.YearStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ generic.YearStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS simulations (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		company_size TEXT NOT NULL,
		regularisation_mode TEXT NOT NULL,
		regularisation_month INTEGER NOT NULL DEFAULT 11,
		display_mode TEXT,
		paid_leave_fund INTEGER NOT NULL DEFAULT 0,
		bindings_json TEXT,
		saved_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_simulations_saved_at
		ON simulations(saved_at);

	CREATE TABLE IF NOT EXISTS simulation_months (
		simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
		month INTEGER NOT NULL CHECK (month BETWEEN 0 AND 11),
		gross_remuneration TEXT NOT NULL,
		options_json TEXT,
		PRIMARY KEY (simulation_id, month)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// YEAR STORE
// =============================================================================

// Save upserts the simulation and replaces its months.
func (s *Store) Save(ctx context.Context, snap generic.YearSnapshot) (err error) {
	defer observe("save", time.Now(), &err)
	if err := snap.Validate(); err != nil {
		return err
	}
	bindings, err := encodeBindings(snap.Bindings)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO simulations (id, year, company_size, regularisation_mode, regularisation_month, display_mode, paid_leave_fund, bindings_json, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			year = excluded.year,
			company_size = excluded.company_size,
			regularisation_mode = excluded.regularisation_mode,
			regularisation_month = excluded.regularisation_month,
			display_mode = excluded.display_mode,
			paid_leave_fund = excluded.paid_leave_fund,
			bindings_json = excluded.bindings_json,
			saved_at = excluded.saved_at
	`, string(snap.ID), snap.Year, snap.CompanySize, snap.RegularisationMode, int(snap.RegularisationMonth),
		nullString(string(snap.DisplayMode)), snap.PaidLeaveFund, bindings, snap.SavedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save simulation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM simulation_months WHERE simulation_id = ?`, string(snap.ID)); err != nil {
		return err
	}
	for _, m := range snap.Months {
		options, err := encodeOptions(m.Options)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO simulation_months (simulation_id, month, gross_remuneration, options_json)
			VALUES (?, ?, ?, ?)
		`, string(snap.ID), int(m.Month), m.GrossRemuneration.String(), options)
		if err != nil {
			return fmt.Errorf("save month %s: %w", m.Month, err)
		}
	}
	return tx.Commit()
}

// Load returns a stored simulation or generic.ErrSimulationNotFound.
func (s *Store) Load(ctx context.Context, id generic.SimulationID) (snap generic.YearSnapshot, err error) {
	defer observe("load", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		month    int
		display  sql.NullString
		bindings sql.NullString
		savedAt  string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, year, company_size, regularisation_mode, regularisation_month, display_mode, paid_leave_fund, bindings_json, saved_at
		FROM simulations WHERE id = ?
	`, string(id)).Scan(&snap.ID, &snap.Year, &snap.CompanySize, &snap.RegularisationMode, &month, &display,
		&snap.PaidLeaveFund, &bindings, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.YearSnapshot{}, generic.ErrSimulationNotFound
	}
	if err != nil {
		return generic.YearSnapshot{}, err
	}
	snap.RegularisationMonth = generic.Month(month)
	snap.DisplayMode = generic.DisplayMode(display.String)
	snap.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
	if snap.Bindings, err = decodeBindings(bindings.String); err != nil {
		return generic.YearSnapshot{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT month, gross_remuneration, options_json
		FROM simulation_months WHERE simulation_id = ? ORDER BY month
	`, string(id))
	if err != nil {
		return generic.YearSnapshot{}, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMonth(rows)
		if err != nil {
			return generic.YearSnapshot{}, err
		}
		snap.Months = append(snap.Months, m)
	}
	return snap, rows.Err()
}

// List returns summaries, newest first.
func (s *Store) List(ctx context.Context) (result []generic.SnapshotSummary, err error) {
	defer observe("list", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.year, s.company_size, s.regularisation_mode, s.saved_at, m.gross_remuneration
		FROM simulations s
		LEFT JOIN simulation_months m ON m.simulation_id = s.id
		ORDER BY s.saved_at DESC, s.id, m.month
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result = []generic.SnapshotSummary{}
	for rows.Next() {
		var (
			sum     generic.SnapshotSummary
			savedAt string
			amount  sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.Year, &sum.CompanySize, &sum.RegularisationMode, &savedAt, &amount); err != nil {
			return nil, err
		}
		if n := len(result); n == 0 || result[n-1].ID != sum.ID {
			sum.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
			sum.AnnualRemuneration = generic.ZeroEuros()
			result = append(result, sum)
		}
		if amount.Valid {
			d, err := decimal.NewFromString(amount.String)
			if err != nil {
				return nil, err
			}
			last := &result[len(result)-1]
			last.AnnualRemuneration = last.AnnualRemuneration.Add(generic.EurosFromDecimal(d))
		}
	}
	return result, rows.Err()
}

// Delete removes a simulation and its months.
func (s *Store) Delete(ctx context.Context, id generic.SimulationID) (err error) {
	defer observe("delete", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM simulations WHERE id = ?`, string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.ErrSimulationNotFound
	}
	return nil
}

// Reset clears all data. For demo scenarios and tests only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"simulation_months", "simulations"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func scanMonth(rows *sql.Rows) (generic.MonthSnapshot, error) {
	var (
		m       generic.MonthSnapshot
		month   int
		amount  string
		options sql.NullString
	)
	if err := rows.Scan(&month, &amount, &options); err != nil {
		return m, err
	}
	m.Month = generic.Month(month)
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return m, fmt.Errorf("month %d remuneration: %w", month, err)
	}
	m.GrossRemuneration = d
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &m.Options); err != nil {
			return m, fmt.Errorf("month %d options: %w", month, err)
		}
	}
	return m, nil
}

func encodeOptions(options map[string]decimal.Decimal) (sql.NullString, error) {
	if len(options) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(options)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func encodeBindings(bindings map[string]any) (sql.NullString, error) {
	if len(bindings) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(generic.JSONBindings(bindings))
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeBindings keeps numbers as json.Number so decimals survive exactly.
func decodeBindings(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("bindings: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func observe(op string, start time.Time, err *error) {
	metrics.ObserveStore(driverName, op, *err, time.Since(start))
}
