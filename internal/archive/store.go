package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/nayuki/MamIRC-sub000/internal/event"
)

var (
	ErrClosed  = errors.New("archive: closed")
	ErrUnknown = errors.New("archive: unknown driver")
)

// Store is durable event storage. Implementations must be safe for
// concurrent use; Append is only ever called by one goroutine.
type Store interface {
	// Append commits events in one transaction.
	Append(ctx context.Context, events []event.Event) error
	// NextConnectionID returns max(connectionId)+1, or 0 when empty.
	NextConnectionID(ctx context.Context) (int64, error)
	// ReadConnection returns the events of connID with sequence < before,
	// in sequence order.
	ReadConnection(ctx context.Context, connID, before int64) ([]event.Event, error)
	// Scan visits events ordered by (connectionId, sequence).
	Scan(ctx context.Context, opts ScanOptions, fn func(event.Event) error) error
	// Connections summarizes every connection in the store.
	Connections(ctx context.Context) ([]ConnectionSummary, error)
	Close() error
}

// ScanOptions narrows a Scan.
type ScanOptions struct {
	// ConnectionID restricts the scan to one connection when >= 0.
	ConnectionID int64
	// FromConnection skips connections with smaller ids.
	FromConnection int64
	// Limit stops after that many events when > 0.
	Limit int
}

// AllConnections is the ScanOptions.ConnectionID wildcard.
const AllConnections int64 = -1

// ConnectionSummary describes one connection's slice of the log.
type ConnectionSummary struct {
	ConnectionID   int64
	Events         int64
	FirstTimestamp int64
	LastTimestamp  int64
	First          event.Event
	Last           event.Event
}

// Options selects and opens a Store.
type Options struct {
	Driver string // "sqlite" or "postgres"
	Path   string
	DSN    string
	// ReadOnly opens the store for queries only.
	ReadOnly bool
	// Migrate applies embedded schema migrations before use.
	Migrate bool
}

// Open returns a Store for opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		return openSQLite(ctx, opts)
	case "postgres":
		return openPostgres(ctx, opts)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknown, opts.Driver)
	}
}
