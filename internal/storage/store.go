// Package storage defines the persistence interface for the sandbox event
// journal. Two backends are provided: SQLite (default, zero-config) and
// PostgreSQL (production).
//
// The sandbox registry itself is deliberately not persisted; only the
// append-only event trail survives restarts.
package storage

import (
	"context"

	"github.com/jkaninda/repobox/internal/sandbox"
)

// Store is the persistence interface for the event journal.
// Both SQLite and PostgreSQL backends implement it.
type Store interface {
	// Events returns the event journal. The returned store shares the
	// backend's connection.
	Events() EventStore

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name ("sqlite" or "postgres").
	Driver() string
}

// EventStore is the append-only sandbox event journal. Append matches
// sandbox.Journal, so an EventStore plugs directly into the Manager.
type EventStore interface {
	Append(ctx context.Context, event sandbox.Event) error

	// ListBySandbox returns events for one sandbox, newest first.
	// Limit defaults to 100 when non-positive.
	ListBySandbox(ctx context.Context, sandboxID string, limit int) ([]sandbox.Event, error)
}

// DriverSQLite is the SQLite driver name.
const DriverSQLite = "sqlite"

// DriverPostgres is the PostgreSQL driver name.
const DriverPostgres = "postgres"
