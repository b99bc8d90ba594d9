package archive

import (
	"context"
	"fmt"

	"github.com/nayuki/MamIRC-sub000/internal/event"
)

// Recovery is the archive state a Connector starts from.
type Recovery struct {
	NextConnectionID int64
	// Sealed lists connections that lacked a closed event and were sealed.
	Sealed []int64
}

// Recover seals connections left open by a previous Connector run with a
// Connection/closed event and returns the next connection id. It must run
// before any new connection is created.
func Recover(ctx context.Context, store Store, nowMs func() int64) (Recovery, error) {
	var rec Recovery
	conns, err := store.Connections(ctx)
	if err != nil {
		return rec, err
	}
	var seals []event.Event
	for _, c := range conns {
		if event.IsClosed(c.Last) {
			continue
		}
		ts := nowMs()
		if ts < c.LastTimestamp {
			ts = c.LastTimestamp
		}
		seals = append(seals, event.Event{
			ConnectionID: c.ConnectionID,
			Sequence:     c.Last.Sequence + 1,
			Timestamp:    ts,
			Type:         event.Connection,
			Line:         append([]byte(nil), event.ClosedLine...),
		})
		rec.Sealed = append(rec.Sealed, c.ConnectionID)
	}
	if len(seals) > 0 {
		if err := store.Append(ctx, seals); err != nil {
			return rec, fmt.Errorf("archive: seal unfinished connections: %w", err)
		}
	}
	rec.NextConnectionID, err = store.NextConnectionID(ctx)
	return rec, err
}
