/*
store.go - Persistence interface for simulation years

PURPOSE:
  Defines the interface between the orchestrator layer and the database.
  The core only asks that a saved year comes back structurally valid; it
  recomputes every derived value on restore.

KEY INTERFACES:
  YearStore: Save / Load / List / Delete of YearSnapshot values

SEMANTICS:
  - Save is an upsert keyed by SimulationID; months are replaced as a whole
  - Load returns ErrSimulationNotFound for unknown IDs
  - List is ordered by most recent SavedAt first

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL

SEE ALSO:
  - snapshot.go: YearSnapshot type and validation
*/
package generic

import "context"

// =============================================================================
// YEAR STORE
// =============================================================================

type YearStore interface {
	// Save persists a snapshot, replacing any previous one with the same ID.
	Save(ctx context.Context, snapshot YearSnapshot) error

	// Load returns the snapshot for id or ErrSimulationNotFound.
	Load(ctx context.Context, id SimulationID) (YearSnapshot, error)

	// List returns summaries of all stored simulations, newest first.
	List(ctx context.Context) ([]SnapshotSummary, error)

	// Delete removes a simulation. Deleting an unknown ID returns ErrSimulationNotFound.
	Delete(ctx context.Context, id SimulationID) error
}
