// Package store provides the ledger and cache storage interfaces and their SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/ratemykey/internal/model"
)

// DefaultLedgerCap is the maximum number of actions kept per actor.
const DefaultLedgerCap = 1000

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AppendParams holds parameters for recording an action.
type AppendParams struct {
	Context string
	Key     string
	Action  string
	Now     time.Time
	Cap     int // 0 means DefaultLedgerCap
}

// Ledger is the per-context append-only action history.
type Ledger interface {
	// AppendAction pushes an action onto the actor's list, creating the record
	// if needed. Returns the number of records affected.
	AppendAction(ctx context.Context, p AppendParams) (int64, error)

	// QueryWindow returns every actor with at least one action touched after since.
	QueryWindow(ctx context.Context, ns string, since time.Time) ([]model.LedgerEntry, error)

	// QueryKey returns a single actor touched after since, or ErrNotFound.
	QueryKey(ctx context.Context, ns, key string, since time.Time) (*model.LedgerEntry, error)

	// Histogram counts every action of every actor touched after since.
	Histogram(ctx context.Context, ns string, since time.Time) (map[string]uint64, error)

	// PruneOlderThan deletes actors last touched before cutoff.
	PruneOlderThan(ctx context.Context, ns string, cutoff time.Time) (int64, error)

	// FlushContext deletes every actor of a context.
	FlushContext(ctx context.Context, ns string) error
}

// Store is the full storage surface used by the service.
type Store interface {
	Ledger

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	// Close closes the store.
	Close() error
}
