package event

import (
	"bytes"
	"fmt"
	"strings"
)

// Kind is the verb of a Connection event payload.
type Kind string

const (
	KindConnect    Kind = "connect"
	KindOpened     Kind = "opened"
	KindDisconnect Kind = "disconnect"
	KindClosed     Kind = "closed"
)

// Lifecycle is a decoded Connection event payload.
type Lifecycle struct {
	Kind Kind
	// Profile is set for connect, Addr for opened.
	Profile string
	Addr    string
}

// ConnectLine returns the payload of the sequence-0 event of a connection.
func ConnectLine(profile string) []byte { return []byte("connect " + profile) }

// OpenedLine returns the payload recorded once the socket is established.
func OpenedLine(addr string) []byte { return []byte("opened " + addr) }

var (
	DisconnectLine = []byte("disconnect")
	ClosedLine     = []byte("closed")
)

// ParseLifecycle decodes the payload of a Connection event.
func ParseLifecycle(line []byte) (Lifecycle, error) {
	verb, rest, hasRest := bytes.Cut(line, []byte{' '})
	switch Kind(verb) {
	case KindConnect:
		if !hasRest || len(rest) == 0 {
			return Lifecycle{}, fmt.Errorf("%w: connect without profile", ErrMalformed)
		}
		return Lifecycle{Kind: KindConnect, Profile: string(rest)}, nil
	case KindOpened:
		if !hasRest || len(rest) == 0 || bytes.IndexByte(rest, ' ') >= 0 {
			return Lifecycle{}, fmt.Errorf("%w: opened %q", ErrMalformed, rest)
		}
		return Lifecycle{Kind: KindOpened, Addr: string(rest)}, nil
	case KindDisconnect, KindClosed:
		if hasRest {
			return Lifecycle{}, fmt.Errorf("%w: trailing data after %s", ErrMalformed, verb)
		}
		return Lifecycle{Kind: Kind(verb)}, nil
	default:
		return Lifecycle{}, fmt.Errorf("%w: unknown connection event %q", ErrMalformed, strings.TrimSpace(string(verb)))
	}
}

// IsClosed reports whether ev is the terminal event of its connection.
func IsClosed(ev Event) bool {
	return ev.Type == Connection && bytes.Equal(ev.Line, ClosedLine)
}
