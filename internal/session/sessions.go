package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nayuki/MamIRC-sub000/internal/config"
	"github.com/nayuki/MamIRC-sub000/internal/event"
	"github.com/nayuki/MamIRC-sub000/internal/irc"
	"github.com/nayuki/MamIRC-sub000/internal/replication"
)

var (
	ErrCatchupFinished   = errors.New("session: catchup already finished")
	ErrUnknownConnection = errors.New("session: event for unknown connection")
	ErrDuplicateSession  = errors.New("session: connection already has a session")
)

// Profiles maps profile names to their configuration.
type Profiles map[string]config.NetworkProfile

func (p Profiles) lookup(name string) *config.NetworkProfile {
	if prof, ok := p[name]; ok {
		return &prof
	}
	return nil
}

// Sessions owns the live session map and routes events through a Machine.
// It is not safe for concurrent use; the Processor actor owns it.
type Sessions struct {
	machine *Machine
	live    map[int64]*State
	// ended maps connections that were disconnected on purpose, and whose
	// closed event is still due, to their profile.
	ended    map[int64]string
	finished bool
}

func NewSessions(machine *Machine) *Sessions {
	return &Sessions{machine: machine, live: make(map[int64]*State), ended: make(map[int64]string)}
}

// Get returns the live session for id.
func (ss *Sessions) Get(id int64) (*State, bool) {
	st, ok := ss.live[id]
	return st, ok
}

// Len returns the number of live sessions.
func (ss *Sessions) Len() int { return len(ss.live) }

// IDs returns live connection ids in ascending order.
func (ss *Sessions) IDs() []int64 {
	ids := make([]int64, 0, len(ss.live))
	for id := range ss.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Finished reports whether FinishCatchup has run.
func (ss *Sessions) Finished() bool { return ss.finished }

// Apply routes ev to its session, creating the session on connect and
// dropping it on disconnect or closed. Events trailing a disconnected
// session are ignored until its closed event, which is reported as an
// expected close.
func (ss *Sessions) Apply(ev event.Event, profiles Profiles, mode Mode) (Output, error) {
	var out Output
	var lc event.Lifecycle
	if ev.Type == event.Connection {
		var err error
		if lc, err = event.ParseLifecycle(ev.Line); err != nil {
			return out, err
		}
		if lc.Kind == event.KindConnect {
			if _, ok := ss.live[ev.ConnectionID]; ok {
				return out, fmt.Errorf("%w: %d", ErrDuplicateSession, ev.ConnectionID)
			}
			ss.live[ev.ConnectionID] = NewState(ev.ConnectionID, lc.Profile)
		}
	}

	st, ok := ss.live[ev.ConnectionID]
	if !ok {
		profile, gone := ss.ended[ev.ConnectionID]
		if !gone {
			return out, fmt.Errorf("%w: %d", ErrUnknownConnection, ev.ConnectionID)
		}
		out.Profile = profile
		if lc.Kind == event.KindClosed {
			delete(ss.ended, ev.ConnectionID)
			out.update("", "CLOSED")
			out.Notices = append(out.Notices, Notice{Kind: NoticeClosedExpectedly, Profile: profile, ConnectionID: ev.ConnectionID})
		}
		return out, nil
	}

	out = ss.machine.Apply(st, profiles.lookup(st.Profile), ev, mode)
	out.Profile = st.Profile

	switch lc.Kind {
	case event.KindDisconnect:
		delete(ss.live, st.ConnectionID)
		ss.ended[st.ConnectionID] = st.Profile
	case event.KindClosed:
		delete(ss.live, st.ConnectionID)
		if st.DisconnectRequested {
			out.notice(NoticeClosedExpectedly, st)
		} else {
			out.notice(NoticeClosedUnexpectedly, st)
		}
	}
	return out, nil
}

// FinishCatchup resumes sessions that history left half-way: it drops
// duplicate connections per profile, continues registration where it
// stopped and answers PINGs seen during replay. It may run only once.
func (ss *Sessions) FinishCatchup(profiles Profiles) (Output, error) {
	var out Output
	if ss.finished {
		return out, ErrCatchupFinished
	}
	ss.finished = true

	ids := ss.IDs()
	keep := make(map[string]int64)
	for _, id := range ids {
		keep[ss.live[id].Profile] = id // ascending, so the highest wins
	}
	for _, id := range ids {
		st := ss.live[id]
		if keep[st.Profile] != id && !st.DisconnectRequested {
			out.command(replication.Disconnect(id))
			st.DisconnectRequested = true
		}
	}

	for _, id := range ids {
		st := ss.live[id]
		profile := profiles.lookup(st.Profile)
		if st.DisconnectRequested || profile == nil {
			continue
		}
		switch st.Registration {
		case Opened:
			if len(profile.Nicknames) > 0 {
				out.command(replication.Send(id, irc.Line("NICK", profile.Nicknames[0])))
			}
		case NickSent, UserSent:
			if st.Nickname == "" {
				nextNickOrDisconnect(st, profile, &out)
			} else if st.Registration == NickSent {
				out.command(userCommand(st, profile))
			}
		case Registered:
			identify(st, profile, &out)
		}
	}

	for _, id := range ids {
		st := ss.live[id]
		for _, token := range st.PendingPongs {
			out.command(replication.Send(id, irc.LineTrailing("PONG", token)))
		}
		st.PendingPongs = nil
	}
	return out, nil
}

// ApplyProfiles reconciles live sessions with the profile set: sessions of
// missing or disabled profiles are disconnected, registered sessions join
// missing channels, and enabled profiles without a session are connected
// to their first server. It returns the names of profiles that still have
// a session.
func (ss *Sessions) ApplyProfiles(profiles Profiles) (Output, map[string]bool) {
	var out Output
	active := make(map[string]bool)
	for _, id := range ss.IDs() {
		st := ss.live[id]
		if st.DisconnectRequested {
			continue
		}
		profile := profiles.lookup(st.Profile)
		if profile == nil || !profile.Connect {
			out.command(replication.Disconnect(id))
			st.DisconnectRequested = true
			continue
		}
		active[st.Profile] = true
		if st.Registration == Registered {
			joinMissing(st, profile, &out)
		}
	}

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := profiles[name]
		if active[name] || !p.Connect || len(p.Servers) == 0 {
			continue
		}
		srv := p.Servers[0]
		out.command(replication.Connect(srv.Host, srv.Port, srv.TLS, p.Name))
	}
	return out, active
}
