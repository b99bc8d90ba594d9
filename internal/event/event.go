// Package event defines the immutable Event record shared by the Connector,
// the archive and the Processor, together with its line encoding.
package event

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Type classifies an Event. The ordinals are part of the wire and storage
// formats.
type Type int

const (
	Connection Type = 0
	Receive    Type = 1
	Send       Type = 2
)

func (t Type) String() string {
	switch t {
	case Connection:
		return "connection"
	case Receive:
		return "receive"
	case Send:
		return "send"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// Valid reports whether t is one of the defined ordinals.
func (t Type) Valid() bool { return t >= Connection && t <= Send }

// Event is one sequenced occurrence on one IRC connection.
type Event struct {
	ConnectionID int64
	Sequence     int64
	Timestamp    int64 // milliseconds since the epoch
	Type         Type
	Line         []byte
}

var (
	ErrUncleanLine = errors.New("event: line contains NUL, CR or LF")
	ErrMalformed   = errors.New("event: malformed event line")
)

// CleanLine reports whether b can be carried as an event payload.
func CleanLine(b []byte) bool {
	return bytes.IndexAny(b, "\x00\r\n") < 0
}

// Format renders ev as "<connId> <seq> <timestampMs> <typeOrdinal> <line>".
func Format(ev Event) []byte {
	out := make([]byte, 0, len(ev.Line)+40)
	out = strconv.AppendInt(out, ev.ConnectionID, 10)
	out = append(out, ' ')
	out = strconv.AppendInt(out, ev.Sequence, 10)
	out = append(out, ' ')
	out = strconv.AppendInt(out, ev.Timestamp, 10)
	out = append(out, ' ')
	out = strconv.AppendInt(out, int64(ev.Type), 10)
	out = append(out, ' ')
	out = append(out, ev.Line...)
	return out
}

// Parse is the inverse of Format. The returned Line does not alias b.
func Parse(b []byte) (Event, error) {
	var ev Event
	fields := bytes.SplitN(b, []byte{' '}, 5)
	if len(fields) != 5 {
		return ev, fmt.Errorf("%w: expected 5 fields, got %d", ErrMalformed, len(fields))
	}
	var err error
	if ev.ConnectionID, err = parseNonNegative(fields[0]); err != nil {
		return ev, fmt.Errorf("%w: connection id: %v", ErrMalformed, err)
	}
	if ev.Sequence, err = parseNonNegative(fields[1]); err != nil {
		return ev, fmt.Errorf("%w: sequence: %v", ErrMalformed, err)
	}
	if ev.Timestamp, err = strconv.ParseInt(string(fields[2]), 10, 64); err != nil {
		return ev, fmt.Errorf("%w: timestamp: %v", ErrMalformed, err)
	}
	typ, err := strconv.Atoi(string(fields[3]))
	if err != nil || !Type(typ).Valid() {
		return ev, fmt.Errorf("%w: type %q", ErrMalformed, fields[3])
	}
	ev.Type = Type(typ)
	if !CleanLine(fields[4]) {
		return ev, ErrUncleanLine
	}
	ev.Line = append([]byte(nil), fields[4]...)
	return ev, nil
}

func parseNonNegative(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}
