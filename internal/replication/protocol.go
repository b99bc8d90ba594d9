package replication

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/nayuki/MamIRC-sub000/internal/event"
)

const (
	HeaderActiveConnections = "active-connections"
	HeaderLiveEvents        = "live-events"
)

var ErrMalformed = errors.New("replication: malformed line")

// Kind is an upstream command verb.
type Kind int

const (
	KindConnect Kind = iota + 1
	KindDisconnect
	KindSend
	KindTerminate
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	case KindSend:
		return "send"
	case KindTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Command is one line sent from the Processor to the Connector.
type Command struct {
	Kind Kind

	// connect
	Host    string
	Port    int
	TLS     bool
	Profile string

	// disconnect, send
	ConnectionID int64
	Line         []byte
}

func Connect(host string, port int, tls bool, profile string) Command {
	return Command{Kind: KindConnect, Host: host, Port: port, TLS: tls, Profile: profile}
}

func Disconnect(connID int64) Command {
	return Command{Kind: KindDisconnect, ConnectionID: connID}
}

func Send(connID int64, line []byte) Command {
	return Command{Kind: KindSend, ConnectionID: connID, Line: line}
}

func Terminate() Command { return Command{Kind: KindTerminate} }

// Encode renders c as a protocol line without terminator.
func (c Command) Encode() []byte {
	switch c.Kind {
	case KindConnect:
		return []byte("connect " + c.Host + " " + strconv.Itoa(c.Port) + " " + strconv.FormatBool(c.TLS) + " " + c.Profile)
	case KindDisconnect:
		return []byte("disconnect " + strconv.FormatInt(c.ConnectionID, 10))
	case KindSend:
		out := []byte("send " + strconv.FormatInt(c.ConnectionID, 10) + " ")
		return append(out, c.Line...)
	case KindTerminate:
		return []byte("terminate")
	default:
		return nil
	}
}

// ParseCommand parses one upstream line. The payload of a send command is
// taken verbatim from the remaining bytes.
func ParseCommand(line []byte) (Command, error) {
	parts := bytes.SplitN(line, []byte{' '}, 5)
	var c Command
	switch string(parts[0]) {
	case "terminate":
		if len(parts) != 1 {
			return c, fmt.Errorf("%w: terminate takes no arguments", ErrMalformed)
		}
		return Terminate(), nil

	case "connect":
		if len(parts) != 5 || len(parts[1]) == 0 || len(parts[4]) == 0 {
			return c, fmt.Errorf("%w: connect needs host, port, tls and profile", ErrMalformed)
		}
		port, err := strconv.Atoi(string(parts[2]))
		if err != nil || port < 1 || port > 65535 {
			return c, fmt.Errorf("%w: port %q", ErrMalformed, parts[2])
		}
		var tls bool
		switch string(parts[3]) {
		case "true":
			tls = true
		case "false":
		default:
			return c, fmt.Errorf("%w: tls flag %q", ErrMalformed, parts[3])
		}
		return Connect(string(parts[1]), port, tls, string(parts[4])), nil

	case "disconnect":
		if len(parts) != 2 {
			return c, fmt.Errorf("%w: disconnect needs a connection id", ErrMalformed)
		}
		id, err := parseID(parts[1])
		if err != nil {
			return c, err
		}
		return Disconnect(id), nil

	case "send":
		// re-split so the payload keeps its spaces
		fields := bytes.SplitN(line, []byte{' '}, 3)
		if len(fields) != 3 || len(fields[2]) == 0 {
			return c, fmt.Errorf("%w: send needs a connection id and a line", ErrMalformed)
		}
		id, err := parseID(fields[1])
		if err != nil {
			return c, err
		}
		if !event.CleanLine(fields[2]) {
			return c, fmt.Errorf("%w: %v", ErrMalformed, event.ErrUncleanLine)
		}
		return Send(id, append([]byte(nil), fields[2]...)), nil
	}
	return c, fmt.Errorf("%w: unknown command %q", ErrMalformed, parts[0])
}

func parseID(b []byte) (int64, error) {
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: connection id %q", ErrMalformed, b)
	}
	return id, nil
}

// ActiveConnection is one snapshot entry.
type ActiveConnection struct {
	ConnectionID int64
	NextSequence int64
}

// Snapshot lists the connections live at attach time, ascending by id.
type Snapshot []ActiveConnection

// Sort orders s by connection id.
func (s Snapshot) Sort() {
	sort.Slice(s, func(i, j int) bool { return s[i].ConnectionID < s[j].ConnectionID })
}

// Lines renders the snapshot block including both headers.
func (s Snapshot) Lines() [][]byte {
	out := make([][]byte, 0, len(s)+2)
	out = append(out, []byte(HeaderActiveConnections))
	for _, ac := range s {
		out = append(out, []byte(strconv.FormatInt(ac.ConnectionID, 10)+" "+strconv.FormatInt(ac.NextSequence, 10)))
	}
	return append(out, []byte(HeaderLiveEvents))
}

// LineSource yields lines; lineio.Reader satisfies it.
type LineSource interface {
	ReadLine() ([]byte, error)
}

// ReadSnapshot consumes the snapshot block from src. Entries are returned
// in ascending id order whatever order they arrived in.
func ReadSnapshot(src LineSource) (Snapshot, error) {
	first, err := src.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("replication: read snapshot header: %w", err)
	}
	if string(first) != HeaderActiveConnections {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrMalformed, HeaderActiveConnections, first)
	}
	var snap Snapshot
	seen := make(map[int64]bool)
	for {
		line, err := src.ReadLine()
		if err != nil {
			return nil, fmt.Errorf("replication: read snapshot: %w", err)
		}
		if string(line) == HeaderLiveEvents {
			break
		}
		parts := bytes.Split(line, []byte{' '})
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: snapshot entry %q", ErrMalformed, line)
		}
		id, err := parseID(parts[0])
		if err != nil {
			return nil, err
		}
		next, err := strconv.ParseInt(string(parts[1]), 10, 64)
		if err != nil || next < 0 {
			return nil, fmt.Errorf("%w: next sequence %q", ErrMalformed, parts[1])
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate connection %d in snapshot", ErrMalformed, id)
		}
		seen[id] = true
		snap = append(snap, ActiveConnection{ConnectionID: id, NextSequence: next})
	}
	snap.Sort()
	return snap, nil
}
