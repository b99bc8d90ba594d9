package session

import "github.com/nayuki/MamIRC-sub000/internal/replication"

// Update is one line destined for a message window. Party is a channel,
// a nickname, or "" for the network's server window.
type Update struct {
	Party string
	Kind  string
	Args  []string
}

// NoticeKind classifies a Notice.
type NoticeKind int

const (
	NoticeRegistered NoticeKind = iota + 1
	NoticeClosedExpectedly
	NoticeClosedUnexpectedly
	NoticeNicknamesExhausted
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeRegistered:
		return "registered"
	case NoticeClosedExpectedly:
		return "closed-expectedly"
	case NoticeClosedUnexpectedly:
		return "closed-unexpectedly"
	case NoticeNicknamesExhausted:
		return "nicknames-exhausted"
	default:
		return "unknown"
	}
}

// Notice tells the Processor about a session-level transition.
type Notice struct {
	Kind         NoticeKind
	Profile      string
	ConnectionID int64
}

// Output is everything one step of the state machine produced.
type Output struct {
	// Profile names the session the updates belong to.
	Profile  string
	Commands []replication.Command
	Updates  []Update
	Notices  []Notice
}

func (o *Output) command(c replication.Command) { o.Commands = append(o.Commands, c) }

func (o *Output) update(party, kind string, args ...string) {
	o.Updates = append(o.Updates, Update{Party: party, Kind: kind, Args: args})
}

func (o *Output) notice(k NoticeKind, s *State) {
	o.Notices = append(o.Notices, Notice{Kind: k, Profile: s.Profile, ConnectionID: s.ConnectionID})
}

// Merge appends other to o. An unset Profile is taken from other.
func (o *Output) Merge(other Output) {
	if o.Profile == "" {
		o.Profile = other.Profile
	}
	o.Commands = append(o.Commands, other.Commands...)
	o.Updates = append(o.Updates, other.Updates...)
	o.Notices = append(o.Notices, other.Notices...)
}

// Empty reports whether o carries nothing.
func (o Output) Empty() bool {
	return len(o.Commands) == 0 && len(o.Updates) == 0 && len(o.Notices) == 0
}
