package session

import (
	"fmt"

	"github.com/nayuki/MamIRC-sub000/internal/irc"
)

// Mode selects whether Apply may act on the world.
type Mode int

const (
	Replay Mode = iota
	Realtime
)

func (m Mode) String() string {
	if m == Realtime {
		return "realtime"
	}
	return "replay"
}

// Registration is the forward-only registration progress of a session.
type Registration int

const (
	Connecting Registration = iota
	Opened
	NickSent
	UserSent
	Registered
)

func (r Registration) String() string {
	switch r {
	case Connecting:
		return "connecting"
	case Opened:
		return "opened"
	case NickSent:
		return "nick-sent"
	case UserSent:
		return "user-sent"
	case Registered:
		return "registered"
	default:
		return fmt.Sprintf("registration(%d)", int(r))
	}
}

// Channel is one joined channel.
type Channel struct {
	Name       string
	Members    *irc.FoldMap[struct{}]
	Topic      string
	TopicSetBy string
	TopicSetAt int64 // milliseconds

	namesInProgress bool
	names           *irc.FoldMap[struct{}]
}

func newChannel(name string) *Channel {
	return &Channel{Name: name, Members: irc.NewFoldMap[struct{}](), names: irc.NewFoldMap[struct{}]()}
}

// State is the protocol-level view of one IRC connection.
type State struct {
	ConnectionID int64
	Profile      string
	Registration Registration
	// Nickname is empty while it is being negotiated.
	Nickname string
	// Rejected holds nicknames the server refused; nil once registered.
	Rejected     map[string]bool
	Channels     *irc.FoldMap[*Channel]
	SentNickServ bool
	// PendingPongs are PING tokens seen during replay and not yet answered.
	PendingPongs []string
	// DisconnectRequested marks a session the Processor has asked to close.
	DisconnectRequested bool
}

// NewState returns the state of a connection that has just been requested.
func NewState(connID int64, profile string) *State {
	return &State{
		ConnectionID: connID,
		Profile:      profile,
		Rejected:     make(map[string]bool),
		Channels:     irc.NewFoldMap[*Channel](),
	}
}

// setRegistration advances the registration state. Going backwards or
// standing still means the event stream is corrupt.
func (s *State) setRegistration(r Registration) {
	if r <= s.Registration {
		panic(fmt.Sprintf("session %d: registration cannot move from %s to %s", s.ConnectionID, s.Registration, r))
	}
	if r == Registered {
		s.Rejected = nil
	}
	s.Registration = r
}

// rejectNickname moves the current nickname to the rejected set.
func (s *State) rejectNickname() {
	if s.Nickname != "" && s.Rejected != nil {
		s.Rejected[s.Nickname] = true
	}
	s.Nickname = ""
}

// isMe reports whether nick is our current nickname.
func (s *State) isMe(nick string) bool {
	return s.Nickname != "" && irc.EqualFold(nick, s.Nickname)
}

// Clone returns a deep copy, used to compare replays.
func (s *State) Clone() *State {
	out := *s
	if s.Rejected != nil {
		out.Rejected = make(map[string]bool, len(s.Rejected))
		for k, v := range s.Rejected {
			out.Rejected[k] = v
		}
	}
	out.PendingPongs = append([]string(nil), s.PendingPongs...)
	out.Channels = irc.NewFoldMap[*Channel]()
	s.Channels.Range(func(name string, ch *Channel) bool {
		c := *ch
		c.Members = ch.Members.Clone()
		c.names = ch.names.Clone()
		out.Channels.Set(name, &c)
		return true
	})
	return &out
}
