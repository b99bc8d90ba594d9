package archive

import (
	"context"
	"fmt"

	"github.com/nayuki/MamIRC-sub000/internal/event"
)

// Problem is one integrity violation found by Check.
type Problem struct {
	ConnectionID int64
	Sequence     int64
	Message      string
}

func (p Problem) String() string {
	return fmt.Sprintf("connection %d, sequence %d: %s", p.ConnectionID, p.Sequence, p.Message)
}

type lifecycleState int

const (
	stateInit lifecycleState = iota
	stateConnecting
	stateOpened
	stateClosed
)

// connChecker validates one connection's events in order.
type connChecker struct {
	id      int64
	next    int64
	state   lifecycleState
	aborted bool
}

func (c *connChecker) check(ev event.Event, report func(Problem)) {
	if c.aborted {
		return
	}
	bad := func(msg string) { report(Problem{ConnectionID: c.id, Sequence: ev.Sequence, Message: msg}) }
	if ev.Sequence != c.next {
		bad(fmt.Sprintf("sequence gap, expected %d", c.next))
	}
	c.next = ev.Sequence + 1
	if !ev.Type.Valid() {
		bad(fmt.Sprintf("invalid event type %d", int(ev.Type)))
		return
	}
	if !event.CleanLine(ev.Line) {
		bad("payload contains NUL, CR or LF")
	}
	var lc event.Lifecycle
	if ev.Type == event.Connection {
		var err error
		if lc, err = event.ParseLifecycle(ev.Line); err != nil {
			bad("invalid connection event data")
			if c.state == stateInit {
				c.aborted = true
			}
			return
		}
	}
	switch c.state {
	case stateInit:
		if ev.Type != event.Connection || lc.Kind != event.KindConnect {
			bad(`expected "connect" event`)
			c.aborted = true
			return
		}
		c.state = stateConnecting
	case stateConnecting:
		switch {
		case ev.Type == event.Connection && lc.Kind == event.KindOpened:
			c.state = stateOpened
		case ev.Type == event.Connection && lc.Kind == event.KindDisconnect:
		case ev.Type == event.Connection && lc.Kind == event.KindClosed:
			c.state = stateClosed
		default:
			bad("event not allowed before the connection opened")
		}
	case stateOpened:
		switch {
		case ev.Type != event.Connection, lc.Kind == event.KindDisconnect:
		case lc.Kind == event.KindClosed:
			c.state = stateClosed
		default:
			bad("event not allowed while the connection is open")
		}
	case stateClosed:
		bad("event after closed")
	}
}

// Check scans the whole archive and reports every integrity problem: gaps
// in sequence numbers, invalid types or payloads, and lifecycle events out
// of order. It returns the number of events examined.
func Check(ctx context.Context, store Store, report func(Problem)) (int64, error) {
	var cur *connChecker
	var n int64
	err := store.Scan(ctx, ScanOptions{ConnectionID: AllConnections}, func(ev event.Event) error {
		n++
		if cur == nil || cur.id != ev.ConnectionID {
			if ev.ConnectionID < 0 {
				report(Problem{ConnectionID: ev.ConnectionID, Sequence: ev.Sequence, Message: "negative connection id"})
			}
			cur = &connChecker{id: ev.ConnectionID}
		}
		cur.check(ev, report)
		return nil
	})
	return n, err
}
